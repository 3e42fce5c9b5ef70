// Package version compares the version indicators of two copies of an
// artifact to decide which one is more recent.
package version

import (
	"fmt"
	"strings"
	"time"
)

// Indicators are the recency hints attached to an artifact. Empty strings
// and a zero ModifiedDate mean "not present"; values are never guessed.
type Indicators struct {
	ModifiedDate time.Time `json:"modified_date,omitempty"`
	Version      string    `json:"version,omitempty"`
	VersionIRI   string    `json:"version_iri,omitempty"`
	// FileSize is informational only and does not take part in Compare.
	FileSize *int64 `json:"file_size,omitempty"`
}

// IsEmpty reports whether no content-based indicator is present.
func (i Indicators) IsEmpty() bool {
	return i.ModifiedDate.IsZero() && i.Version == "" && i.VersionIRI == ""
}

func (i Indicators) String() string {
	var parts []string
	if !i.ModifiedDate.IsZero() {
		parts = append(parts, "modified="+i.ModifiedDate.Format(time.RFC3339))
	}
	if i.VersionIRI != "" {
		parts = append(parts, "version_iri="+i.VersionIRI)
	}
	if i.Version != "" {
		parts = append(parts, "version="+i.Version)
	}
	if i.FileSize != nil {
		parts = append(parts, fmt.Sprintf("size=%d", *i.FileSize))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// Comparison is the outcome of Compare.
type Comparison int

const (
	// Incomparable means no field was present on both sides.
	Incomparable Comparison = iota
	// First means the first indicators are more recent.
	First
	// Second means the second indicators are more recent.
	Second
	// Neither means both are equally recent.
	Neither
)

func (c Comparison) String() string {
	switch c {
	case First:
		return "first"
	case Second:
		return "second"
	case Neither:
		return "neither"
	default:
		return "incomparable"
	}
}

// Invert swaps First and Second.
func (c Comparison) Invert() Comparison {
	switch c {
	case First:
		return Second
	case Second:
		return First
	default:
		return c
	}
}

// Compare decides which of a and b is more recent. Fields are tried in the
// order modified date, version IRI, version string; the first field present
// on both sides decides. A field present on only one side is skipped.
func Compare(a, b Indicators) Comparison {
	if !a.ModifiedDate.IsZero() && !b.ModifiedDate.IsZero() {
		switch {
		case a.ModifiedDate.After(b.ModifiedDate):
			return First
		case a.ModifiedDate.Before(b.ModifiedDate):
			return Second
		default:
			return Neither
		}
	}
	if a.VersionIRI != "" && b.VersionIRI != "" {
		return compareStrings(a.VersionIRI, b.VersionIRI)
	}
	if a.Version != "" && b.Version != "" {
		return compareStrings(a.Version, b.Version)
	}
	return Incomparable
}

func compareStrings(a, b string) Comparison {
	switch strings.Compare(a, b) {
	case 1:
		return First
	case -1:
		return Second
	default:
		return Neither
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// ParseDate parses xsd:date and xsd:dateTime lexical forms. Values without
// a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
