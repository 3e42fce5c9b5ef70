// Package rdf is a small in-memory RDF model: terms, triples, quads, graphs
// and datasets, with parsing and serialization backed by knakk/rdf and
// dataset canonicalization backed by json-gold.
package rdf

import (
	"strings"

	"github.com/google/uuid"

	"github.com/schaermu/prezsyncd/internal/vocab"
)

// TermKind identifies the kind of an RDF term. The zero value is used as a
// wildcard in pattern matching.
type TermKind int

const (
	KindAny TermKind = iota
	KindIRI
	KindBlank
	KindLiteral
)

// Term is an IRI, blank node or literal.
type Term struct {
	Kind TermKind
	// Value is the IRI, the blank node label (without "_:") or the lexical
	// form of a literal.
	Value    string
	Datatype string
	Lang     string
}

// Any matches every term in Graph.Match.
var Any = Term{}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank node with the given label.
func Blank(label string) Term { return Term{Kind: KindBlank, Value: strings.TrimPrefix(label, "_:")} }

// NewBlank returns a blank node with a fresh, globally unique label.
func NewBlank() Term {
	return Blank("b" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Literal returns a plain (xsd:string) literal.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// TypedLiteral returns a literal with an explicit datatype.
func TypedLiteral(v, datatype string) Term {
	if datatype == vocab.XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// LangLiteral returns a language-tagged literal.
func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang)}
}

func (t Term) IsIRI() bool     { return t.Kind == KindIRI }
func (t Term) IsBlank() bool   { return t.Kind == KindBlank }
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }
func (t Term) IsAny() bool     { return t.Kind == KindAny }

// Equal reports term equality.
func (t Term) Equal(o Term) bool { return t == o }

// matches reports whether t satisfies the pattern p.
func (t Term) matches(p Term) bool {
	return p.Kind == KindAny || t == p
}

// NQuads returns the N-Triples / N-Quads encoding of the term.
func (t Term) NQuads() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" && t.Datatype != vocab.XSDString {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return "?"
	}
}

func (t Term) String() string { return t.NQuads() }

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string { return literalEscaper.Replace(s) }

// Triple is a subject/predicate/object statement.
type Triple struct {
	S, P, O Term
}

// T is shorthand for building a triple.
func T(s, p, o Term) Triple { return Triple{S: s, P: p, O: o} }

// NTriples returns the triple as one N-Triples line without the trailing newline.
func (t Triple) NTriples() string {
	return t.S.NQuads() + " " + t.P.NQuads() + " " + t.O.NQuads() + " ."
}

// Quad is a triple placed in a named graph. A zero G means the default graph.
type Quad struct {
	Triple
	G Term
}

// NQuads returns the quad as one N-Quads line without the trailing newline.
func (q Quad) NQuads() string {
	if q.G.IsAny() {
		return q.Triple.NTriples()
	}
	return q.S.NQuads() + " " + q.P.NQuads() + " " + q.O.NQuads() + " " + q.G.NQuads() + " ."
}
