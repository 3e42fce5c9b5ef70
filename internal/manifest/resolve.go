package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/version"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Location is where an artifact lives: a local file or a URL.
type Location struct {
	Path string
	URL  string
}

// IsRemote reports whether the artifact is addressed by URL.
func (l Location) IsRemote() bool { return l.URL != "" }

func (l Location) String() string {
	if l.IsRemote() {
		return l.URL
	}
	return l.Path
}

// Descriptor is one resolved artifact.
type Descriptor struct {
	Location Location
	// Key identifies the artifact in reports: the path relative to the
	// manifest root, or the URL.
	Key        string
	Role       vocab.Role
	MainEntity string
	ConformsTo []string
	Indicators version.Indicators
	Sync       bool
	Resource   rdf.Term
}

// Resolver expands a manifest into artifact descriptors.
type Resolver struct {
	fs       afero.Fs
	fetcher  Fetcher
	matchers []EntityMatcher
	profiles *Profiles
	logger   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMatchers replaces the default entity matchers.
func WithMatchers(m ...EntityMatcher) ResolverOption {
	return func(r *Resolver) { r.matchers = m }
}

// WithProfiles replaces the default profile registry.
func WithProfiles(p *Profiles) ResolverOption {
	return func(r *Resolver) { r.profiles = p }
}

// NewResolver creates a resolver reading local artifacts from fsys and
// remote ones through fetcher.
func NewResolver(fsys afero.Fs, fetcher Fetcher, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fs:       fsys,
		fetcher:  fetcher,
		matchers: DefaultMatchers(),
		logger:   logger,
	}
	for _, o := range opts {
		o(r)
	}
	if r.profiles == nil {
		r.profiles = NewProfiles(fsys, fetcher)
	}
	return r
}

// Resolve returns a descriptor for every artifact of m, CatalogueData
// first. Artifacts that fail to resolve are left out and their
// *ResolutionError values are combined into the returned error.
func (r *Resolver) Resolve(ctx context.Context, m *Manifest) ([]Descriptor, error) {
	resources, err := m.Resources()
	if err != nil {
		return nil, err
	}

	var (
		out  []Descriptor
		errs error
	)
	for _, res := range resources {
		for _, ref := range res.Artifacts {
			locs, err := r.expand(m, ref)
			if err != nil {
				errs = multierr.Append(errs, &ResolutionError{Location: ref.Location(), Role: res.Role, Err: err})
				continue
			}
			for _, loc := range locs {
				d, err := r.describe(ctx, m, res, ref, loc)
				if err != nil {
					r.logger.Warn("failed to resolve artifact", "artifact", loc.String(), "error", err)
					errs = multierr.Append(errs, err)
					continue
				}
				r.logger.Debug("resolved artifact",
					"artifact", d.Key,
					"role", d.Role.Short(),
					"main_entity", d.MainEntity)
				out = append(out, d)
			}
		}
	}
	return out, errs
}

// expand turns one reference into concrete locations.
func (r *Resolver) expand(m *Manifest, ref ArtifactRef) ([]Location, error) {
	loc := ref.Location()
	if isURL(loc) {
		return []Location{{URL: loc}}, nil
	}
	lit, ok := ref.(LiteralRef)
	if !ok || !lit.IsGlob() {
		return []Location{{Path: m.AbsPath(loc)}}, nil
	}

	matches, err := r.glob(m.Root, loc)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q matched no files", loc)
	}
	out := make([]Location, 0, len(matches))
	for _, p := range matches {
		out = append(out, Location{Path: p})
	}
	return out, nil
}

// glob splits pattern at its first '*': the directory part of the prefix
// is the search root and the rest is matched with doublestar semantics.
func (r *Resolver) glob(root, pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	star := strings.Index(pattern, "*")
	base, rest := path.Split(pattern[:star])
	rest += pattern[star:]

	dir := absUnder(root, base)
	fsys := afero.NewIOFS(afero.NewBasePathFs(r.fs, dir))
	matches, err := doublestar.Glob(fsys, rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to expand glob %q: %w", pattern, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) describe(ctx context.Context, m *Manifest, res Resource, ref ArtifactRef, loc Location) (Descriptor, error) {
	key := loc.URL
	if !loc.IsRemote() {
		key = m.RelPath(loc.Path)
	}
	d := Descriptor{
		Location:   loc,
		Key:        key,
		Role:       res.Role,
		ConformsTo: res.ConformsTo,
		Sync:       res.Sync,
		Resource:   res.Node,
	}

	var explicit version.Indicators
	if s, ok := ref.(StructuredRef); ok {
		d.MainEntity = s.MainEntity
		explicit = s.Indicators
		if len(s.ConformsTo) > 0 {
			d.ConformsTo = s.ConformsTo
		}
		if s.Sync != nil {
			d.Sync = *s.Sync
		}
	}

	// Labels and models are loaded without identity or version checks.
	if !res.Role.RequiresIdentity() {
		d.Indicators = explicit
		return d, nil
	}

	g, err := r.content(ctx, loc)
	if err != nil {
		return d, &ResolutionError{Location: key, Role: res.Role, Err: err}
	}

	if d.MainEntity == "" {
		matchers, err := r.matchersFor(ctx, m, res.Role, d.ConformsTo)
		if err != nil {
			return d, &ResolutionError{Location: key, Role: res.Role, Err: err}
		}
		me, n, err := FindMainEntity(g, matchers)
		if err != nil {
			return d, &ResolutionError{Location: key, Role: res.Role, Candidates: n, Err: err}
		}
		d.MainEntity = me
	}

	content, err := IndicatorsOf(g, d.MainEntity)
	if err != nil {
		return d, &ResolutionError{Location: key, Role: res.Role, Err: err}
	}
	d.Indicators = mergeIndicators(content, explicit)

	if d.Indicators.IsEmpty() && !loc.IsRemote() {
		if fi, err := r.fs.Stat(loc.Path); err == nil {
			size := fi.Size()
			d.Indicators.FileSize = &size
		}
	}
	return d, nil
}

// matchersFor narrows entity matching to the target classes of the
// conformance claims, if any.
func (r *Resolver) matchersFor(ctx context.Context, m *Manifest, role vocab.Role, claims []string) ([]EntityMatcher, error) {
	if role == vocab.RoleCatalogueData {
		return append(CatalogueMatchers(), r.matchers...), nil
	}
	if len(claims) == 0 {
		return r.matchers, nil
	}
	var classes []string
	for _, c := range claims {
		cs, err := r.profiles.TargetClasses(ctx, c, m.Root)
		if err != nil {
			return nil, err
		}
		classes = append(classes, cs...)
	}
	return classMatchers(classes...), nil
}

// Content reads the artifact at loc as a single graph.
func (r *Resolver) Content(ctx context.Context, loc Location) (*rdf.Graph, error) {
	return r.content(ctx, loc)
}

func (r *Resolver) content(ctx context.Context, loc Location) (*rdf.Graph, error) {
	if loc.IsRemote() {
		if r.fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", loc.URL)
		}
		return r.fetcher.Fetch(ctx, loc.URL)
	}
	return readGraph(r.fs, loc.Path)
}
