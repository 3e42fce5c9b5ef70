package rdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	knakk "github.com/knakk/rdf"

	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Format is an RDF serialization.
type Format int

const (
	FormatTurtle Format = iota + 1
	FormatNTriples
	FormatNQuads
	FormatRDFXML
)

// ErrUnsupportedFormat is returned for file types with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported RDF format")

// FormatForPath picks a format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttl", ".turtle":
		return FormatTurtle, nil
	case ".nt":
		return FormatNTriples, nil
	case ".nq":
		return FormatNQuads, nil
	case ".rdf", ".owl", ".xml":
		return FormatRDFXML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// IsQuads reports whether the format carries graph names.
func (f Format) IsQuads() bool { return f == FormatNQuads }

// MediaType returns the HTTP content type of the format.
func (f Format) MediaType() string {
	switch f {
	case FormatTurtle:
		return "text/turtle"
	case FormatNTriples:
		return "application/n-triples"
	case FormatNQuads:
		return "application/n-quads"
	case FormatRDFXML:
		return "application/rdf+xml"
	default:
		return "application/octet-stream"
	}
}

// FormatForMediaType maps an HTTP content type, parameters allowed, to a
// format.
func FormatForMediaType(ct string) (Format, error) {
	mt := strings.TrimSpace(strings.ToLower(strings.SplitN(ct, ";", 2)[0]))
	switch mt {
	case "text/turtle", "application/x-turtle":
		return FormatTurtle, nil
	case "application/n-triples", "text/plain":
		return FormatNTriples, nil
	case "application/n-quads":
		return FormatNQuads, nil
	case "application/rdf+xml", "application/xml", "text/xml":
		return FormatRDFXML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
	}
}

func (f Format) knakk() knakk.Format {
	switch f {
	case FormatNTriples:
		return knakk.NTriples
	case FormatNQuads:
		return knakk.NQuads
	case FormatRDFXML:
		return knakk.RDFXML
	default:
		return knakk.Turtle
	}
}

// ParseGraph decodes a triples document. Quads documents are flattened
// into a single graph.
func ParseGraph(r io.Reader, f Format) (*Graph, error) {
	if f.IsQuads() {
		ds, err := ParseDataset(r, f)
		if err != nil {
			return nil, err
		}
		g := NewGraph()
		for _, q := range ds.Quads() {
			g.Add(q.Triple)
		}
		return g, nil
	}

	g := NewGraph()
	dec := knakk.NewTripleDecoder(r, f.knakk())
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode triple: %w", err)
		}
		tr, err := fromKnakkTriple(t)
		if err != nil {
			return nil, err
		}
		g.Add(tr)
	}
	return g, nil
}

// ParseDataset decodes a document into a dataset. Triples documents land in
// the default graph.
func ParseDataset(r io.Reader, f Format) (*Dataset, error) {
	if !f.IsQuads() {
		g, err := ParseGraph(r, f)
		if err != nil {
			return nil, err
		}
		ds := NewDataset()
		for _, t := range g.Triples() {
			ds.Add(Quad{Triple: t})
		}
		return ds, nil
	}

	ds := NewDataset()
	dec := knakk.NewQuadDecoder(r, knakk.NQuads)
	for {
		q, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode quad: %w", err)
		}
		tr, err := fromKnakkTriple(q.Triple)
		if err != nil {
			return nil, err
		}
		var name Term
		if q.Ctx != nil {
			if name, err = fromKnakk(q.Ctx); err != nil {
				return nil, err
			}
		}
		ds.Add(Quad{Triple: tr, G: name})
	}
	return ds, nil
}

// turtlePrefixes are bound before any generated nsN prefix.
var turtlePrefixes = map[string]string{
	vocab.Prof:    "prof",
	vocab.MRR:     "mrr",
	vocab.MVT:     "mvt",
	vocab.Prez:    "prez",
	vocab.Schema:  "schema",
	vocab.DCAT:    "dcat",
	vocab.DCTerms: "dcterms",
	vocab.SKOS:    "skos",
	vocab.OWL:     "owl",
	vocab.RDFS:    "rdfs",
	vocab.XSD:     "xsd",
	vocab.Olis:    "olis",
	vocab.SH:      "sh",
}

// WriteTurtle serializes a graph as Turtle. All prefix directives are
// written before the first statement.
func WriteTurtle(w io.Writer, g *Graph) error {
	var buf bytes.Buffer
	enc := knakk.NewTripleEncoder(&buf, knakk.Turtle)
	for ns, prefix := range turtlePrefixes {
		enc.Namespaces[ns] = prefix
	}
	for _, t := range g.Triples() {
		kt, err := toKnakkTriple(t)
		if err != nil {
			return err
		}
		if err := enc.Encode(kt); err != nil {
			return fmt.Errorf("failed to encode triple: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode turtle: %w", err)
	}

	// the encoder emits a directive where a namespace is first used
	var prefixes, body []string
	for _, line := range strings.SplitAfter(buf.String(), "\n") {
		if strings.HasPrefix(line, "@prefix ") {
			prefixes = append(prefixes, line)
			continue
		}
		body = append(body, line)
	}
	sort.Strings(prefixes)
	out := strings.Join(prefixes, "")
	if len(prefixes) > 0 {
		out += "\n"
	}
	out += strings.Join(body, "")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err := io.WriteString(w, out)
	return err
}

// WriteNQuads writes the dataset as sorted N-Quads.
func WriteNQuads(w io.Writer, d *Dataset) error {
	_, err := io.WriteString(w, d.NQuads())
	return err
}

func fromKnakkTriple(t knakk.Triple) (Triple, error) {
	s, err := fromKnakk(t.Subj)
	if err != nil {
		return Triple{}, err
	}
	p, err := fromKnakk(t.Pred)
	if err != nil {
		return Triple{}, err
	}
	o, err := fromKnakk(t.Obj)
	if err != nil {
		return Triple{}, err
	}
	return Triple{S: s, P: p, O: o}, nil
}

func fromKnakk(t knakk.Term) (Term, error) {
	switch v := t.(type) {
	case knakk.IRI:
		return IRI(v.String()), nil
	case knakk.Blank:
		return Blank(v.String()), nil
	case knakk.Literal:
		if lang := v.Lang(); lang != "" {
			return LangLiteral(v.String(), lang), nil
		}
		return TypedLiteral(v.String(), v.DataType.String()), nil
	default:
		return Term{}, fmt.Errorf("unsupported term %T", t)
	}
}

func toKnakkTriple(t Triple) (knakk.Triple, error) {
	s, err := toKnakk(t.S)
	if err != nil {
		return knakk.Triple{}, err
	}
	p, err := toKnakk(t.P)
	if err != nil {
		return knakk.Triple{}, err
	}
	o, err := toKnakk(t.O)
	if err != nil {
		return knakk.Triple{}, err
	}
	subj, ok := s.(knakk.Subject)
	if !ok {
		return knakk.Triple{}, fmt.Errorf("term %s cannot be a subject", t.S)
	}
	pred, ok := p.(knakk.Predicate)
	if !ok {
		return knakk.Triple{}, fmt.Errorf("term %s cannot be a predicate", t.P)
	}
	obj, ok := o.(knakk.Object)
	if !ok {
		return knakk.Triple{}, fmt.Errorf("term %s cannot be an object", t.O)
	}
	return knakk.Triple{Subj: subj, Pred: pred, Obj: obj}, nil
}

func toKnakk(t Term) (knakk.Term, error) {
	switch t.Kind {
	case KindIRI:
		return knakk.NewIRI(t.Value)
	case KindBlank:
		return knakk.NewBlank(t.Value)
	case KindLiteral:
		if t.Lang != "" {
			return knakk.NewLangLiteral(t.Value, t.Lang)
		}
		if t.Datatype != "" {
			dt, err := knakk.NewIRI(t.Datatype)
			if err != nil {
				return nil, err
			}
			return knakk.NewTypedLiteral(t.Value, dt), nil
		}
		return knakk.NewLiteral(t.Value)
	default:
		return nil, fmt.Errorf("cannot serialize wildcard term")
	}
}
