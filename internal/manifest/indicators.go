package manifest

import (
	"fmt"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/version"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

var (
	datePredicates       = []string{vocab.SchemaDateModified, vocab.DCTermsModified}
	versionPredicates    = []string{vocab.SchemaVersion, vocab.OWLVersionInfo}
	versionIRIPredicates = []string{vocab.OWLVersionIRI}
)

// IndicatorsOf reads the version indicators attached to entity in g.
func IndicatorsOf(g *rdf.Graph, entity string) (version.Indicators, error) {
	return indicatorsAt(g, rdf.IRI(entity))
}

func indicatorsAt(g *rdf.Graph, node rdf.Term) (version.Indicators, error) {
	var ind version.Indicators
	if v, ok := g.FirstValue(node, datePredicates...); ok {
		d, err := version.ParseDate(v.Value)
		if err != nil {
			return ind, fmt.Errorf("invalid modified date on %s: %w", node, err)
		}
		ind.ModifiedDate = d
	}
	if v, ok := g.FirstValue(node, versionIRIPredicates...); ok {
		ind.VersionIRI = v.Value
	}
	if v, ok := g.FirstValue(node, versionPredicates...); ok && !v.IsBlank() {
		ind.Version = v.Value
	}
	return ind, nil
}

// mergeIndicators overlays the fields set in explicit onto content.
func mergeIndicators(content, explicit version.Indicators) version.Indicators {
	out := content
	if !explicit.ModifiedDate.IsZero() {
		out.ModifiedDate = explicit.ModifiedDate
	}
	if explicit.Version != "" {
		out.Version = explicit.Version
	}
	if explicit.VersionIRI != "" {
		out.VersionIRI = explicit.VersionIRI
	}
	return out
}
