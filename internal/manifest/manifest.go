// Package manifest loads Prez manifests, resolves their declared artifacts
// into descriptors with identity and version metadata, and writes updated
// manifest and catalogue snapshots back to storage.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/version"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// ErrNoManifestRoot is returned when a document has no node typed prez:Manifest.
var ErrNoManifestRoot = errors.New("no prez:Manifest node found")

// Manifest is an immutable snapshot of a manifest document.
type Manifest struct {
	// Path is the absolute location of the manifest file.
	Path string
	// Root is the directory relative artifact paths are resolved against.
	Root  string
	Node  rdf.Term
	graph *rdf.Graph
}

// New wraps a parsed manifest graph.
func New(path string, g *rdf.Graph) (*Manifest, error) {
	roots := g.Subjects(rdf.IRI(vocab.RDFType), rdf.IRI(vocab.Manifest))
	switch len(roots) {
	case 0:
		return nil, fmt.Errorf("%s: %w", path, ErrNoManifestRoot)
	case 1:
	default:
		return nil, fmt.Errorf("%s: expected one prez:Manifest node, found %d", path, len(roots))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Path:  abs,
		Root:  filepath.Dir(abs),
		Node:  roots[0],
		graph: g.Clone(),
	}, nil
}

// Graph returns a copy of the manifest graph.
func (m *Manifest) Graph() *rdf.Graph { return m.graph.Clone() }

// Resource is one prof:hasResource entry of the manifest.
type Resource struct {
	Node       rdf.Term
	Role       vocab.Role
	Artifacts  []ArtifactRef
	ConformsTo []string
	Sync       bool
}

// ArtifactRef is either a LiteralRef or a StructuredRef.
type ArtifactRef interface {
	// Location is the path, glob or URL the reference points at.
	Location() string
	isArtifactRef()
}

// LiteralRef is a plain path, glob or URL given as a literal or an IRI.
type LiteralRef struct {
	Value string
}

func (r LiteralRef) Location() string { return r.Value }
func (LiteralRef) isArtifactRef()     {}

// IsGlob reports whether the value is a glob pattern.
func (r LiteralRef) IsGlob() bool { return strings.Contains(r.Value, "*") }

// StructuredRef is an artifact node carrying an explicit content location
// and, usually, an explicit main entity.
type StructuredRef struct {
	Node            rdf.Term
	ContentLocation string
	MainEntity      string
	ConformsTo      []string
	Indicators      version.Indicators
	// Sync is nil when the node does not say.
	Sync *bool
}

func (r StructuredRef) Location() string { return r.ContentLocation }
func (StructuredRef) isArtifactRef()     {}

// Resources lists the manifest resources, CatalogueData first and the rest
// ordered by role and first artifact location.
func (m *Manifest) Resources() ([]Resource, error) {
	var out []Resource
	for _, node := range m.graph.Objects(m.Node, rdf.IRI(vocab.ProfHasResource)) {
		r, err := m.resource(node)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Role == vocab.RoleCatalogueData, out[j].Role == vocab.RoleCatalogueData
		if ci != cj {
			return ci
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return firstLocation(out[i]) < firstLocation(out[j])
	})
	return out, nil
}

func firstLocation(r Resource) string {
	if len(r.Artifacts) == 0 {
		return ""
	}
	return r.Artifacts[0].Location()
}

func (m *Manifest) resource(node rdf.Term) (Resource, error) {
	roles := m.graph.Objects(node, rdf.IRI(vocab.ProfHasRole))
	if len(roles) != 1 {
		return Resource{}, fmt.Errorf("resource %s: expected exactly one prof:hasRole, found %d", node, len(roles))
	}
	role, err := vocab.ParseRole(roles[0].Value)
	if err != nil {
		return Resource{}, fmt.Errorf("resource %s: %w", node, err)
	}

	r := Resource{
		Node:       node,
		Role:       role,
		ConformsTo: iriValues(m.graph.Objects(node, rdf.IRI(vocab.DCTermsConformsTo))),
		Sync:       true,
	}
	if v, ok := boolValue(m.graph, node, vocab.Sync); ok {
		r.Sync = v
	}

	for _, a := range m.graph.Objects(node, rdf.IRI(vocab.ProfHasArtifact)) {
		ref, err := m.artifactRef(a)
		if err != nil {
			return Resource{}, fmt.Errorf("resource %s: %w", node, err)
		}
		r.Artifacts = append(r.Artifacts, ref)
	}
	sort.SliceStable(r.Artifacts, func(i, j int) bool {
		return r.Artifacts[i].Location() < r.Artifacts[j].Location()
	})
	return r, nil
}

func (m *Manifest) artifactRef(a rdf.Term) (ArtifactRef, error) {
	if a.IsLiteral() {
		return LiteralRef{Value: a.Value}, nil
	}

	loc, ok := m.graph.Value(a, rdf.IRI(vocab.SchemaContentLocation))
	if !ok {
		if a.IsIRI() {
			return LiteralRef{Value: a.Value}, nil
		}
		return nil, fmt.Errorf("artifact node %s has no schema:contentLocation", a)
	}

	ref := StructuredRef{
		Node:            a,
		ContentLocation: loc.Value,
		ConformsTo:      iriValues(m.graph.Objects(a, rdf.IRI(vocab.DCTermsConformsTo))),
	}
	if me, ok := m.graph.Value(a, rdf.IRI(vocab.SchemaMainEntity)); ok {
		ref.MainEntity = me.Value
	}
	ind, err := indicatorsAt(m.graph, a)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", loc.Value, err)
	}
	ref.Indicators = ind
	if v, ok := boolValue(m.graph, a, vocab.Sync); ok {
		ref.Sync = &v
	}
	return ref, nil
}

// CatalogueResource returns the CatalogueData resource, if any.
func (m *Manifest) CatalogueResource() (Resource, bool, error) {
	rs, err := m.Resources()
	if err != nil {
		return Resource{}, false, err
	}
	for _, r := range rs {
		if r.Role == vocab.RoleCatalogueData {
			return r, true, nil
		}
	}
	return Resource{}, false, nil
}

// WithResource returns a new snapshot with an extra resource holding one
// structured artifact.
func (m *Manifest) WithResource(role vocab.Role, contentLocation, mainEntity string) *Manifest {
	g := m.graph.Clone()
	res := rdf.NewBlank()
	art := rdf.NewBlank()
	g.Add(rdf.T(m.Node, rdf.IRI(vocab.ProfHasResource), res))
	g.Add(rdf.T(res, rdf.IRI(vocab.ProfHasRole), rdf.IRI(string(role))))
	g.Add(rdf.T(res, rdf.IRI(vocab.ProfHasArtifact), art))
	g.Add(rdf.T(art, rdf.IRI(vocab.SchemaContentLocation), rdf.Literal(contentLocation)))
	if mainEntity != "" {
		g.Add(rdf.T(art, rdf.IRI(vocab.SchemaMainEntity), rdf.IRI(mainEntity)))
	}
	return &Manifest{Path: m.Path, Root: m.Root, Node: m.Node, graph: g}
}

// RelPath expresses an absolute path relative to the manifest root, using
// forward slashes. Paths outside the root are returned unchanged.
func (m *Manifest) RelPath(abs string) string {
	rel, err := filepath.Rel(m.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// AbsPath resolves a manifest-relative location.
func (m *Manifest) AbsPath(loc string) string {
	if filepath.IsAbs(loc) {
		return filepath.Clean(loc)
	}
	return filepath.Join(m.Root, filepath.FromSlash(loc))
}

func iriValues(ts []rdf.Term) []string {
	var out []string
	for _, t := range ts {
		if t.IsIRI() || t.IsLiteral() {
			out = append(out, t.Value)
		}
	}
	sort.Strings(out)
	return out
}

func boolValue(g *rdf.Graph, s rdf.Term, pred string) (bool, bool) {
	v, ok := g.Value(s, rdf.IRI(pred))
	if !ok || !v.IsLiteral() {
		return false, false
	}
	switch strings.ToLower(v.Value) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
