package changelog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// ErrNoVirtualGraph is returned when a dataset's system graph has no
// olis:VirtualGraph node to address it by.
var ErrNoVirtualGraph = errors.New("no virtual graph in system graph")

// Body is a patch transaction and its size.
type Body struct {
	Text    string
	Adds    int
	Removes int
}

// IsEmpty reports whether the body changes nothing.
func (b Body) IsEmpty() bool { return b.Adds == 0 && b.Removes == 0 }

// CanonicalQuads canonicalizes every graph of ds on its own and returns
// the sorted N-Quads lines. Blank node labels are scoped by graph name, so
// a change in one graph never relabels blank nodes in another.
func CanonicalQuads(ds *rdf.Dataset) ([]string, error) {
	var out []string
	for _, name := range ds.Names() {
		g, _ := ds.Lookup(name)
		single := rdf.NewDataset()
		for _, t := range g.Triples() {
			single.Add(rdf.Quad{Triple: t, G: name})
		}
		canon, err := rdf.Canonicalize(single)
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", name.Value, err)
		}
		sum := blake3.Sum256([]byte(name.NQuads()))
		scope := fmt.Sprintf("g%x", sum[:4])
		for _, q := range canon.Quads() {
			q.S = scoped(q.S, scope)
			q.O = scoped(q.O, scope)
			q.G = scoped(q.G, scope)
			out = append(out, q.NQuads())
		}
	}
	sort.Strings(out)
	return out, nil
}

// scoped prefixes a blank node label with scope
func scoped(t rdf.Term, scope string) rdf.Term {
	if !t.IsBlank() {
		return t
	}
	return rdf.Blank(scope + t.Value)
}

// AddPatch returns a body adding every quad of ds.
func AddPatch(ds *rdf.Dataset) (Body, error) {
	quads, err := CanonicalQuads(ds)
	if err != nil {
		return Body{}, err
	}
	return render(nil, quads), nil
}

// DiffPatch returns a body turning previous into current.
func DiffPatch(current, previous *rdf.Dataset) (Body, error) {
	cur, err := CanonicalQuads(current)
	if err != nil {
		return Body{}, fmt.Errorf("current dataset: %w", err)
	}
	prev, err := CanonicalQuads(previous)
	if err != nil {
		return Body{}, fmt.Errorf("previous dataset: %w", err)
	}
	return render(subtract(prev, cur), subtract(cur, prev)), nil
}

// subtract returns the lines of a not in b; both are sorted.
func subtract(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, l := range b {
		in[l] = true
	}
	var out []string
	for _, l := range a {
		if !in[l] {
			out = append(out, l)
		}
	}
	return out
}

func render(removes, adds []string) Body {
	var sb strings.Builder
	sb.WriteString("TX .\n")
	for _, l := range removes {
		sb.WriteString("D ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	for _, l := range adds {
		sb.WriteString("A ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteString("TC .\n")
	return Body{Text: sb.String(), Adds: len(adds), Removes: len(removes)}
}

// VirtualGraph returns the IRI of the virtual graph declared in the
// system graph of ds.
func VirtualGraph(ds *rdf.Dataset) (string, error) {
	system, ok := ds.Lookup(rdf.IRI(vocab.OlisSystemGraph))
	if !ok {
		return "", ErrNoVirtualGraph
	}
	for _, s := range system.Subjects(rdf.IRI(vocab.RDFType), rdf.IRI(vocab.OlisVirtualGraph)) {
		if s.IsIRI() {
			return s.Value, nil
		}
	}
	return "", ErrNoVirtualGraph
}

// RecordCommit annotates the virtual graph of ds with the commit hash:
//
//	vg schema:version [ schema:additionalType mvt:GitCommitHash ; schema:value "hash" ]
func RecordCommit(ds *rdf.Dataset, commit string) error {
	vg, err := VirtualGraph(ds)
	if err != nil {
		return err
	}
	system := ds.Graph(rdf.IRI(vocab.OlisSystemGraph))
	marker := rdf.NewBlank()
	system.Add(rdf.T(rdf.IRI(vg), rdf.IRI(vocab.SchemaVersion), marker))
	system.Add(rdf.T(marker, rdf.IRI(vocab.SchemaAdditionalType), rdf.IRI(vocab.MVTGitCommitHash)))
	system.Add(rdf.T(marker, rdf.IRI(vocab.SchemaValue), rdf.Literal(commit)))
	return nil
}

// CommitMarkers returns the commit hashes recorded for vg in a system
// graph, sorted.
func CommitMarkers(system *rdf.Graph, vg string) []string {
	var out []string
	for _, v := range system.Objects(rdf.IRI(vg), rdf.IRI(vocab.SchemaVersion)) {
		if !system.Has(rdf.T(v, rdf.IRI(vocab.SchemaAdditionalType), rdf.IRI(vocab.MVTGitCommitHash))) {
			continue
		}
		if hash, ok := system.Value(v, rdf.IRI(vocab.SchemaValue)); ok && hash.IsLiteral() {
			out = append(out, hash.Value)
		}
	}
	sort.Strings(out)
	return out
}
