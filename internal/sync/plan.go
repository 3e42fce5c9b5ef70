package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/sparql"
	"github.com/schaermu/prezsyncd/internal/version"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Direction is the action planned for one artifact
type Direction string

const (
	DirectionUpload      Direction = "upload"
	DirectionDownload    Direction = "download"
	DirectionSame        Direction = "same"
	DirectionAddRemotely Direction = "add-remotely"
	DirectionAddLocally  Direction = "add-locally"
)

// Remote is the triple store capability the planner and executor need
type Remote interface {
	GraphExists(ctx context.Context, graph string) (bool, error)
	Select(ctx context.Context, query string) ([]sparql.Binding, error)
	GetGraph(ctx context.Context, graph string) (*rdf.Graph, error)
	ReplaceGraph(ctx context.Context, graph string, g *rdf.Graph, appendOnly bool) error
	DropGraph(ctx context.Context, graph string) error
}

// ContentReader reads an artifact's triples
type ContentReader interface {
	Content(ctx context.Context, loc manifest.Location) (*rdf.Graph, error)
}

// Entry is the planned action for one artifact or remote-only entity
type Entry struct {
	// Key is the manifest-relative artifact path, or the entity IRI for
	// add-locally entries
	Key        string
	MainEntity string
	// Graph is the remote named graph holding the artifact
	Graph      string
	Direction  Direction
	Sync       bool
	Descriptor *manifest.Descriptor
}

// Plan represents the sync operations to perform
type Plan struct {
	Entries []Entry
}

// Catalogue returns the entry of the CatalogueData artifact, if any
func (p *Plan) Catalogue() (*Entry, bool) {
	for i := range p.Entries {
		if d := p.Entries[i].Descriptor; d != nil && d.Role == vocab.RoleCatalogueData {
			return &p.Entries[i], true
		}
	}
	return nil, false
}

// Count returns the number of entries per direction
func (p *Plan) Count() map[Direction]int {
	out := make(map[Direction]int)
	for _, e := range p.Entries {
		out[e.Direction]++
	}
	return out
}

// holdAddLocally excludes add-locally entries from the write phases and
// returns how many were held. They stay in the report.
func (p *Plan) holdAddLocally() int {
	n := 0
	for i := range p.Entries {
		if p.Entries[i].Direction == DirectionAddLocally && p.Entries[i].Sync {
			p.Entries[i].Sync = false
			n++
		}
	}
	return n
}

// Status is the reported state of one entry
type Status struct {
	MainEntity string    `json:"main_entity"`
	Direction  Direction `json:"direction"`
	Sync       bool      `json:"sync"`
}

// Report maps artifact keys (or entity IRIs) to their status
type Report map[string]Status

// Report builds the status report for the plan
func (p *Plan) Report() Report {
	out := make(Report, len(p.Entries))
	for _, e := range p.Entries {
		out[e.Key] = Status{MainEntity: e.MainEntity, Direction: e.Direction, Sync: e.Sync}
	}
	return out
}

// Planner computes sync directions by comparing local and remote state
type Planner struct {
	remote       Remote
	content      ContentReader
	incomparable Direction
	logger       *slog.Logger
}

// NewPlanner creates a planner. content is used to compare local and remote
// triples when version indicators are incomparable.
func NewPlanner(remote Remote, content ContentReader, policy config.IncomparablePolicy, logger *slog.Logger) *Planner {
	dir := DirectionUpload
	switch policy {
	case config.IncomparableDownload:
		dir = DirectionDownload
	case config.IncomparableSame:
		dir = DirectionSame
	}
	return &Planner{remote: remote, content: content, incomparable: dir, logger: logger}
}

// Plan computes a direction for every identity-bearing descriptor, then adds
// remote catalogue members unknown locally. descs must list CatalogueData
// first, as manifest.Resolver does.
func (p *Planner) Plan(ctx context.Context, descs []manifest.Descriptor) (*Plan, error) {
	plan := &Plan{}
	local := make(map[string]bool)

	for i := range descs {
		d := &descs[i]
		if d.MainEntity != "" {
			local[d.MainEntity] = true
		}
		if !d.Role.RequiresIdentity() {
			continue
		}

		entry, err := p.planArtifact(ctx, d)
		if err != nil {
			return nil, err
		}
		plan.Entries = append(plan.Entries, entry)
	}

	catalogue, ok := plan.Catalogue()
	if !ok {
		p.logger.Warn("manifest has no catalogue, skipping remote-only discovery")
		return plan, nil
	}

	parts, err := p.remoteParts(ctx, catalogue.MainEntity)
	if err != nil {
		return nil, err
	}
	for _, iri := range parts {
		if local[iri] {
			continue
		}
		p.logger.Debug("remote entity unknown locally", "main_entity", iri)
		plan.Entries = append(plan.Entries, Entry{
			Key:        iri,
			MainEntity: iri,
			Graph:      iri,
			Direction:  DirectionAddLocally,
			Sync:       true,
		})
	}
	return plan, nil
}

func (p *Planner) planArtifact(ctx context.Context, d *manifest.Descriptor) (Entry, error) {
	entry := Entry{
		Key:        d.Key,
		MainEntity: d.MainEntity,
		Graph:      d.MainEntity,
		Sync:       d.Sync,
		Descriptor: d,
	}

	known, err := p.remote.GraphExists(ctx, d.MainEntity)
	if err != nil {
		return entry, fmt.Errorf("failed to check remote graph %s: %w", d.MainEntity, err)
	}
	if !known && d.Role == vocab.RoleCatalogueData {
		suffixed := d.MainEntity + vocab.CatalogueGraphSuffix
		known, err = p.remote.GraphExists(ctx, suffixed)
		if err != nil {
			return entry, fmt.Errorf("failed to check remote graph %s: %w", suffixed, err)
		}
		entry.Graph = suffixed
	}

	if !known {
		entry.Direction = DirectionAddRemotely
		return entry, nil
	}

	remote, err := p.remoteIndicators(ctx, entry.Graph, d.MainEntity)
	if err != nil {
		return entry, err
	}

	cmp := version.Compare(d.Indicators, remote)
	switch cmp {
	case version.First:
		entry.Direction = DirectionUpload
	case version.Second:
		entry.Direction = DirectionDownload
	case version.Neither:
		entry.Direction = DirectionSame
	default:
		entry.Direction, err = p.resolveIncomparable(ctx, d, entry.Graph)
		if err != nil {
			return entry, err
		}
	}

	p.logger.Debug("compared versions",
		"artifact", d.Key,
		"local", d.Indicators.String(),
		"remote", remote.String(),
		"comparison", cmp.String(),
		"direction", entry.Direction)
	return entry, nil
}

// resolveIncomparable treats identical canonical content as unchanged and
// otherwise applies the configured policy.
func (p *Planner) resolveIncomparable(ctx context.Context, d *manifest.Descriptor, graph string) (Direction, error) {
	if p.content == nil {
		return p.incomparable, nil
	}
	local, err := p.content.Content(ctx, d.Location)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", d.Key, err)
	}
	remote, err := p.remote.GetGraph(ctx, graph)
	if err != nil {
		return "", fmt.Errorf("failed to fetch remote graph %s: %w", graph, err)
	}
	same, err := sameContent(local, remote)
	if err != nil {
		return "", err
	}
	if same {
		return DirectionSame, nil
	}
	return p.incomparable, nil
}

func sameContent(a, b *rdf.Graph) (bool, error) {
	if a.Len() != b.Len() {
		return false, nil
	}
	ca, err := rdf.CanonicalLines(graphDataset(a))
	if err != nil {
		return false, err
	}
	cb, err := rdf.CanonicalLines(graphDataset(b))
	if err != nil {
		return false, err
	}
	if len(ca) != len(cb) {
		return false, nil
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false, nil
		}
	}
	return true, nil
}

func graphDataset(g *rdf.Graph) *rdf.Dataset {
	d := rdf.NewDataset()
	for _, t := range g.Triples() {
		d.Add(rdf.Quad{Triple: t})
	}
	return d
}

func (p *Planner) remoteIndicators(ctx context.Context, graph, entity string) (version.Indicators, error) {
	rows, err := p.remote.Select(ctx, fmt.Sprintf(
		"SELECT ?p ?o WHERE { GRAPH <%s> { <%s> ?p ?o } }", graph, entity))
	if err != nil {
		return version.Indicators{}, fmt.Errorf("failed to query remote version of %s: %w", entity, err)
	}
	g := rdf.NewGraph()
	for _, r := range rows {
		g.Add(rdf.T(rdf.IRI(entity), r["p"], r["o"]))
	}
	ind, err := manifest.IndicatorsOf(g, entity)
	if err != nil {
		p.logger.Warn("ignoring unreadable remote version indicators", "main_entity", entity, "error", err)
		return version.Indicators{}, nil
	}
	return ind, nil
}

func (p *Planner) remoteParts(ctx context.Context, catalogue string) ([]string, error) {
	rows, err := p.remote.Select(ctx, fmt.Sprintf(
		"SELECT DISTINCT ?part WHERE { GRAPH ?g { <%s> <%s>|<%s> ?part } }",
		catalogue, vocab.SchemaHasPart, vocab.DCTermsHasPart))
	if err != nil {
		return nil, fmt.Errorf("failed to query remote catalogue members: %w", err)
	}
	var out []string
	for _, r := range rows {
		if t, ok := r["part"]; ok && t.IsIRI() {
			out = append(out, t.Value)
		}
	}
	return out, nil
}
