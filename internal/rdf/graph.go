package rdf

import (
	"sort"
	"strings"
)

// Graph is a set of triples.
type Graph struct {
	triples map[string]Triple
}

// NewGraph returns an empty graph, optionally seeded with triples.
func NewGraph(ts ...Triple) *Graph {
	g := &Graph{triples: make(map[string]Triple, len(ts))}
	for _, t := range ts {
		g.Add(t)
	}
	return g
}

// Add inserts a triple; duplicates are ignored.
func (g *Graph) Add(t Triple) {
	g.triples[t.NTriples()] = t
}

// Remove deletes every triple matching the pattern.
func (g *Graph) Remove(s, p, o Term) {
	for k, t := range g.triples {
		if t.S.matches(s) && t.P.matches(p) && t.O.matches(o) {
			delete(g.triples, k)
		}
	}
}

// Has reports whether the exact triple is in the graph.
func (g *Graph) Has(t Triple) bool {
	_, ok := g.triples[t.NTriples()]
	return ok
}

// Len returns the number of triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns all triples in a stable order.
func (g *Graph) Triples() []Triple {
	keys := make([]string, 0, len(g.triples))
	for k := range g.triples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Triple, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.triples[k])
	}
	return out
}

// Match returns the triples matching the pattern, Any being a wildcard.
func (g *Graph) Match(s, p, o Term) []Triple {
	var out []Triple
	for _, t := range g.Triples() {
		if t.S.matches(s) && t.P.matches(p) && t.O.matches(o) {
			out = append(out, t)
		}
	}
	return out
}

// Objects returns the objects of s p ?o.
func (g *Graph) Objects(s, p Term) []Term {
	var out []Term
	for _, t := range g.Match(s, p, Any) {
		out = append(out, t.O)
	}
	return out
}

// Subjects returns the distinct subjects of ?s p o.
func (g *Graph) Subjects(p, o Term) []Term {
	seen := make(map[Term]bool)
	var out []Term
	for _, t := range g.Match(Any, p, o) {
		if !seen[t.S] {
			seen[t.S] = true
			out = append(out, t.S)
		}
	}
	return out
}

// Value returns the first object of s p ?o.
func (g *Graph) Value(s, p Term) (Term, bool) {
	objs := g.Objects(s, p)
	if len(objs) == 0 {
		return Term{}, false
	}
	return objs[0], true
}

// FirstValue returns the first object found for s under any of the
// predicates, tried in order.
func (g *Graph) FirstValue(s Term, preds ...string) (Term, bool) {
	for _, p := range preds {
		if v, ok := g.Value(s, IRI(p)); ok {
			return v, true
		}
	}
	return Term{}, false
}

// Clone returns an independent copy.
func (g *Graph) Clone() *Graph {
	c := &Graph{triples: make(map[string]Triple, len(g.triples))}
	for k, t := range g.triples {
		c.triples[k] = t
	}
	return c
}

// Union adds all triples of other, relabelling its blank nodes so they
// cannot collide with blank nodes already present.
func (g *Graph) Union(other *Graph) {
	relabel := make(map[string]Term)
	fresh := func(t Term) Term {
		if !t.IsBlank() {
			return t
		}
		if n, ok := relabel[t.Value]; ok {
			return n
		}
		n := NewBlank()
		relabel[t.Value] = n
		return n
	}
	for _, t := range other.Triples() {
		g.Add(Triple{S: fresh(t.S), P: t.P, O: fresh(t.O)})
	}
}

// NTriples serializes the graph as sorted N-Triples.
func (g *Graph) NTriples() string {
	var sb strings.Builder
	for _, t := range g.Triples() {
		sb.WriteString(t.NTriples())
		sb.WriteByte('\n')
	}
	return sb.String()
}
