package rdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/prezsyncd/internal/vocab"
)

const sampleTurtle = `@prefix ex: <http://example.com/> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .

ex:scheme a ex:Thing ;
    ex:label "Scheme \"one\""@en ;
    ex:modified "2025-01-10"^^xsd:date ;
    ex:part [ ex:name "nested" ] .
`

func TestParseGraph_Turtle(t *testing.T) {
	g, err := ParseGraph(strings.NewReader(sampleTurtle), FormatTurtle)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	scheme := IRI("http://example.com/scheme")
	mod, ok := g.Value(scheme, IRI("http://example.com/modified"))
	require.True(t, ok)
	assert.Equal(t, "2025-01-10", mod.Value)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#date", mod.Datatype)

	label, ok := g.Value(scheme, IRI("http://example.com/label"))
	require.True(t, ok)
	assert.Equal(t, "en", label.Lang)
	assert.Equal(t, `Scheme "one"`, label.Value)

	part, ok := g.Value(scheme, IRI("http://example.com/part"))
	require.True(t, ok)
	assert.True(t, part.IsBlank())
	assert.Len(t, g.Objects(part, IRI("http://example.com/name")), 1)
}

func TestWriteTurtle_RoundTrip(t *testing.T) {
	g, err := ParseGraph(strings.NewReader(sampleTurtle), FormatTurtle)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTurtle(&buf, g))

	back, err := ParseGraph(&buf, FormatTurtle)
	require.NoError(t, err)

	a, err := CanonicalLines(datasetOf(g))
	require.NoError(t, err)
	b, err := CanonicalLines(datasetOf(back))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteTurtle_PrefixesFirst(t *testing.T) {
	m := IRI("http://example.com/manifest")
	res := Blank("r1")
	g := NewGraph(
		T(m, IRI(vocab.RDFType), IRI(vocab.Manifest)),
		T(m, IRI(vocab.ProfHasResource), res),
		T(res, IRI(vocab.ProfHasRole), IRI(vocab.MRR+"ResourceData")),
		T(res, IRI(vocab.ProfHasArtifact), Literal("vocabs/*.ttl")),
		T(IRI("http://other.example/x"), IRI("http://other.example/p"), Literal("o")),
	)

	var buf bytes.Buffer
	require.NoError(t, WriteTurtle(&buf, g))
	out := buf.String()

	assert.Contains(t, out, "@prefix prof:")
	assert.Contains(t, out, "@prefix mrr:")
	assert.Contains(t, out, "mrr:ResourceData")

	inBody := false
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "@prefix ") {
			assert.False(t, inBody, "prefix directive after a statement: %q", line)
			continue
		}
		if strings.TrimSpace(line) != "" {
			inBody = true
		}
	}

	back, err := ParseGraph(strings.NewReader(out), FormatTurtle)
	require.NoError(t, err)
	assert.Equal(t, g.Len(), back.Len())
}

func TestParseDataset_NQuads(t *testing.T) {
	src := `<http://example.com/s> <http://example.com/p> "o" <http://example.com/g1> .
<http://example.com/s> <http://example.com/p> "d" .
`
	ds, err := ParseDataset(strings.NewReader(src), FormatNQuads)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	g, ok := ds.Lookup(IRI("http://example.com/g1"))
	require.True(t, ok)
	assert.Equal(t, 1, g.Len())

	names := ds.Names()
	require.Len(t, names, 2)
	assert.True(t, names[0].IsAny(), "default graph sorts first")
}

func TestFormatForPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.ttl":     FormatTurtle,
		"b/c.nt":    FormatNTriples,
		"d.nq":      FormatNQuads,
		"e.rdf":     FormatRDFXML,
		"F.TTL":     FormatTurtle,
		"g.turtle":  FormatTurtle,
		"h.owl":     FormatRDFXML,
		"i/j/k.xml": FormatRDFXML,
	} {
		got, err := FormatForPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatForPath("x.trig")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGraph_MatchRemoveClone(t *testing.T) {
	s := IRI("http://example.com/s")
	p := IRI("http://example.com/p")
	g := NewGraph(T(s, p, Literal("a")), T(s, p, Literal("b")), T(s, IRI("http://example.com/q"), Literal("c")))

	assert.Len(t, g.Match(s, p, Any), 2)
	assert.Len(t, g.Match(Any, Any, Any), 3)

	c := g.Clone()
	c.Remove(s, p, Any)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 3, g.Len(), "clone must not share storage")

	v, ok := g.FirstValue(s, "http://example.com/missing", "http://example.com/q")
	require.True(t, ok)
	assert.Equal(t, "c", v.Value)
}

func TestGraph_UnionRelabelsBlankNodes(t *testing.T) {
	p := IRI("http://example.com/p")
	a := NewGraph(T(Blank("b0"), p, Literal("a")))
	b := NewGraph(T(Blank("b0"), p, Literal("b")))

	a.Union(b)
	subjects := a.Subjects(p, Any)
	assert.Len(t, subjects, 2, "same label from different documents must stay distinct")
}

func TestCanonicalLines_BlankLabelsDoNotMatter(t *testing.T) {
	p := IRI("http://example.com/p")
	q := IRI("http://example.com/q")
	g := IRI("http://example.com/graph")

	one := NewDataset()
	one.Add(Quad{Triple: T(IRI("http://example.com/s"), p, Blank("first")), G: g})
	one.Add(Quad{Triple: T(Blank("first"), q, Literal("v")), G: g})

	two := NewDataset()
	two.Add(Quad{Triple: T(IRI("http://example.com/s"), p, Blank("zz9")), G: g})
	two.Add(Quad{Triple: T(Blank("zz9"), q, Literal("v")), G: g})

	a, err := CanonicalLines(one)
	require.NoError(t, err)
	b, err := CanonicalLines(two)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 2)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	g, err := ParseGraph(strings.NewReader(sampleTurtle), FormatTurtle)
	require.NoError(t, err)

	once, err := Canonicalize(datasetOf(g))
	require.NoError(t, err)
	twice, err := Canonicalize(once)
	require.NoError(t, err)

	assert.Equal(t, once.NQuads(), twice.NQuads())
}

func TestCanonicalLines_Empty(t *testing.T) {
	lines, err := CanonicalLines(NewDataset())
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTerm_NQuadsEscaping(t *testing.T) {
	assert.Equal(t, `"a\"b\\c\nd"`, Literal("a\"b\\c\nd").NQuads())
	assert.Equal(t, `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`, TypedLiteral("1", "http://www.w3.org/2001/XMLSchema#integer").NQuads())
	assert.Equal(t, `"x"`, TypedLiteral("x", "http://www.w3.org/2001/XMLSchema#string").NQuads())
	assert.Equal(t, `"hi"@en`, LangLiteral("hi", "EN").NQuads())
	assert.Equal(t, "_:abc", Blank("_:abc").NQuads())
}

func datasetOf(g *Graph) *Dataset {
	ds := NewDataset()
	for _, t := range g.Triples() {
		ds.Add(Quad{Triple: t})
	}
	return ds
}
