package manifest

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityViolation Severity = "violation"
	SeverityWarning   Severity = "warning"
)

// Diagnostic is one validation finding.
type Diagnostic struct {
	Severity Severity
	Focus    string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Focus, d.Message)
}

// Report is the outcome of validating a manifest.
type Report struct {
	Diagnostics []Diagnostic
}

// Conforms reports whether the manifest has no violations.
func (r Report) Conforms() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityViolation {
			return false
		}
	}
	return true
}

func (r *Report) add(sev Severity, focus, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: sev, Focus: focus, Message: fmt.Sprintf(format, args...)})
}

// Validator checks a manifest before it is used.
type Validator interface {
	Validate(ctx context.Context, m *Manifest) (Report, error)
}

// StructuralValidator checks manifest shape and that local artifacts exist.
type StructuralValidator struct {
	fs afero.Fs
}

// NewStructuralValidator creates a validator reading artifacts from fs.
func NewStructuralValidator(fs afero.Fs) *StructuralValidator {
	return &StructuralValidator{fs: fs}
}

// Validate implements Validator.
func (v *StructuralValidator) Validate(_ context.Context, m *Manifest) (Report, error) {
	var rep Report
	g := m.graph
	resources := g.Objects(m.Node, rdf.IRI(vocab.ProfHasResource))
	if len(resources) == 0 {
		rep.add(SeverityWarning, m.Node.String(), "manifest declares no resources")
	}

	catalogues := 0
	for _, res := range resources {
		focus := res.String()
		roles := g.Objects(res, rdf.IRI(vocab.ProfHasRole))
		switch len(roles) {
		case 0:
			rep.add(SeverityViolation, focus, "resource has no prof:hasRole")
		case 1:
			role, err := vocab.ParseRole(roles[0].Value)
			if err != nil {
				rep.add(SeverityViolation, focus, "%v", err)
			} else if role == vocab.RoleCatalogueData {
				catalogues++
			}
		default:
			rep.add(SeverityViolation, focus, "resource has %d roles, expected exactly one", len(roles))
		}

		artifacts := g.Objects(res, rdf.IRI(vocab.ProfHasArtifact))
		if len(artifacts) == 0 {
			rep.add(SeverityViolation, focus, "resource has no prof:hasArtifact")
		}
		for _, a := range artifacts {
			ref, err := m.artifactRef(a)
			if err != nil {
				rep.add(SeverityViolation, focus, "%v", err)
				continue
			}
			v.checkLocation(&rep, m, ref)
		}
	}
	if catalogues > 1 {
		rep.add(SeverityViolation, m.Node.String(), "manifest declares %d CatalogueData resources, at most one is allowed", catalogues)
	}
	return rep, nil
}

func (v *StructuralValidator) checkLocation(rep *Report, m *Manifest, ref ArtifactRef) {
	loc := ref.Location()
	if isURL(loc) {
		return
	}
	if lit, ok := ref.(LiteralRef); ok && lit.IsGlob() {
		r := &Resolver{fs: v.fs}
		matches, err := r.glob(m.Root, loc)
		if err != nil {
			rep.add(SeverityViolation, loc, "%v", err)
		} else if len(matches) == 0 {
			rep.add(SeverityViolation, loc, "glob matches no files")
		}
		return
	}
	path := m.AbsPath(loc)
	ok, err := afero.Exists(v.fs, path)
	if err != nil || !ok {
		rep.add(SeverityViolation, loc, "artifact file does not exist")
		return
	}
	if _, err := rdf.FormatForPath(path); err != nil {
		rep.add(SeverityWarning, loc, "unrecognised RDF file extension")
	}
}
