package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

var (
	// ErrMainEntityNotFound means no node of a recognised class was found.
	ErrMainEntityNotFound = errors.New("main entity not found")
	// ErrMainEntityAmbiguous means more than one candidate node was found.
	ErrMainEntityAmbiguous = errors.New("main entity ambiguous")
	// ErrUnknownProfile is returned for a conformance claim that is neither
	// built in nor dereferenceable.
	ErrUnknownProfile = errors.New("unknown conformance profile")
)

// ResolutionError reports a failure to resolve one artifact.
type ResolutionError struct {
	Location   string
	Role       vocab.Role
	Candidates int
	Err        error
}

func (e *ResolutionError) Error() string {
	if errors.Is(e.Err, ErrMainEntityAmbiguous) || errors.Is(e.Err, ErrMainEntityNotFound) {
		return fmt.Sprintf("%s: %v (%d candidates)", e.Location, e.Err, e.Candidates)
	}
	return fmt.Sprintf("%s: %v", e.Location, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// EntityMatcher finds candidate main entities in artifact content.
type EntityMatcher interface {
	Name() string
	Match(g *rdf.Graph) []rdf.Term
}

// ClassMatcher matches IRI nodes typed with Class.
type ClassMatcher struct {
	Class string
}

func (m ClassMatcher) Name() string { return m.Class }

func (m ClassMatcher) Match(g *rdf.Graph) []rdf.Term {
	var out []rdf.Term
	for _, s := range g.Subjects(rdf.IRI(vocab.RDFType), rdf.IRI(m.Class)) {
		if s.IsIRI() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// DefaultMatchers is the priority-ordered list of classes a main entity is
// recognised by.
func DefaultMatchers() []EntityMatcher {
	return classMatchers(
		vocab.SKOSConceptScheme,
		vocab.OWLOntology,
		vocab.DCATResource,
		vocab.SchemaCreativeWork,
		vocab.SchemaDataset,
		vocab.SchemaDefinedTerm,
	)
}

// CatalogueMatchers recognise the root node of a catalogue artifact.
func CatalogueMatchers() []EntityMatcher {
	return classMatchers(vocab.DCATCatalog, vocab.SchemaDataCatalog)
}

func classMatchers(classes ...string) []EntityMatcher {
	out := make([]EntityMatcher, 0, len(classes))
	for _, c := range classes {
		out = append(out, ClassMatcher{Class: c})
	}
	return out
}

// FindMainEntity applies matchers in order. The first matcher with any
// candidate decides: one candidate resolves, more than one is ambiguous.
func FindMainEntity(g *rdf.Graph, matchers []EntityMatcher) (string, int, error) {
	for _, m := range matchers {
		cands := m.Match(g)
		switch len(cands) {
		case 0:
			continue
		case 1:
			return cands[0].Value, 1, nil
		default:
			return "", len(cands), fmt.Errorf("%w: %d nodes typed %s", ErrMainEntityAmbiguous, len(cands), m.Name())
		}
	}
	return "", 0, ErrMainEntityNotFound
}

// Profiles maps conformance claims to the classes their validators target.
type Profiles struct {
	fs      afero.Fs
	fetcher Fetcher

	mu    sync.Mutex
	known map[string][]string
}

// NewProfiles returns a registry seeded with the built-in profiles. Unknown
// profile IRIs are dereferenced with fetcher; claims that are not URLs are
// read from fs.
func NewProfiles(fs afero.Fs, fetcher Fetcher) *Profiles {
	return &Profiles{
		fs:      fs,
		fetcher: fetcher,
		known: map[string][]string{
			vocab.ProfileVocPub:    {vocab.SKOSConceptScheme},
			vocab.ProfileIDNCP:     {vocab.SchemaDataset},
			vocab.ProfileGeoSPARQL: {vocab.GeoFeatureCollection},
		},
	}
}

// Register adds or replaces the target classes of a profile.
func (p *Profiles) Register(profile string, classes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[profile] = classes
}

// TargetClasses returns the sh:targetClass values for a claim. root is
// the directory local validator paths are resolved against.
func (p *Profiles) TargetClasses(ctx context.Context, claim, root string) ([]string, error) {
	p.mu.Lock()
	classes, ok := p.known[claim]
	p.mu.Unlock()
	if ok {
		return classes, nil
	}

	var (
		g   *rdf.Graph
		err error
	)
	if isURL(claim) {
		if p.fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, claim)
		}
		g, err = p.fetcher.Fetch(ctx, claim)
	} else {
		g, err = readGraph(p.fs, absUnder(root, claim))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownProfile, claim, err)
	}

	for _, t := range g.Match(rdf.Any, rdf.IRI(vocab.SHTargetClass), rdf.Any) {
		if t.O.IsIRI() {
			classes = append(classes, t.O.Value)
		}
	}
	sort.Strings(classes)
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: %s declares no sh:targetClass", ErrUnknownProfile, claim)
	}

	p.Register(claim, classes...)
	return classes, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
