package rdf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/piprate/json-gold/ld"
)

const nquadsMediaType = "application/n-quads"

// CanonicalLines returns the URDNA2015 canonical N-Quads of the dataset, one
// quad per element, sorted. Blank nodes are relabelled _:c14n0, _:c14n1, ...
// so structurally identical datasets yield identical lines regardless of the
// labels they were parsed with.
func CanonicalLines(d *Dataset) ([]string, error) {
	if d.Len() == 0 {
		return nil, nil
	}

	opts := ld.NewJsonLdOptions("")
	opts.Algorithm = "URDNA2015"
	opts.InputFormat = nquadsMediaType
	opts.Format = nquadsMediaType

	out, err := ld.NewJsonLdProcessor().Normalize(d.NQuads(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize dataset: %w", err)
	}
	s, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("canonicalization returned %T, expected N-Quads text", out)
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return lines, nil
}

// Canonicalize returns a copy of the dataset with canonical blank node labels.
func Canonicalize(d *Dataset) (*Dataset, error) {
	lines, err := CanonicalLines(d)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return NewDataset(), nil
	}
	return ParseDataset(strings.NewReader(strings.Join(lines, "\n")+"\n"), FormatNQuads)
}
