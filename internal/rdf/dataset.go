package rdf

import (
	"sort"
	"strings"
)

// Dataset is a default graph plus a set of named graphs.
type Dataset struct {
	graphs map[Term]*Graph
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{graphs: make(map[Term]*Graph)}
}

// Graph returns the graph with the given name, creating it if needed. Any
// names the default graph.
func (d *Dataset) Graph(name Term) *Graph {
	g, ok := d.graphs[name]
	if !ok {
		g = NewGraph()
		d.graphs[name] = g
	}
	return g
}

// Lookup returns the named graph if present.
func (d *Dataset) Lookup(name Term) (*Graph, bool) {
	g, ok := d.graphs[name]
	return g, ok
}

// Add inserts a quad.
func (d *Dataset) Add(q Quad) {
	d.Graph(q.G).Add(q.Triple)
}

// Names returns the non-empty graph names in a stable order, the default
// graph (Any) first when present.
func (d *Dataset) Names() []Term {
	var names []Term
	for n, g := range d.graphs {
		if g.Len() > 0 {
			names = append(names, n)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].IsAny() != names[j].IsAny() {
			return names[i].IsAny()
		}
		return names[i].NQuads() < names[j].NQuads()
	})
	return names
}

// Quads returns every quad in a stable order.
func (d *Dataset) Quads() []Quad {
	var out []Quad
	for _, n := range d.Names() {
		for _, t := range d.graphs[n].Triples() {
			out = append(out, Quad{Triple: t, G: n})
		}
	}
	return out
}

// Len returns the number of quads.
func (d *Dataset) Len() int {
	n := 0
	for _, g := range d.graphs {
		n += g.Len()
	}
	return n
}

// NQuads serializes the dataset as N-Quads, one quad per line, sorted.
func (d *Dataset) NQuads() string {
	lines := make([]string, 0, d.Len())
	for _, q := range d.Quads() {
		lines = append(lines, q.NQuads())
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
