package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/schaermu/prezsyncd/internal/rdf"
)

// FakeStore is an in-memory triple store served over HTTP. It understands
// the Graph Store Protocol and the fixed query shapes issued by the sync
// and change-log engines.
type FakeStore struct {
	mu     sync.Mutex
	graphs map[string]*rdf.Graph
	ops    []string
	fail   map[string]int
	server *httptest.Server
}

var (
	askGraphRe = regexp.MustCompile(`(?is)^\s*ASK\s*\{\s*GRAPH\s*<([^>]+)>\s*\{\s*\?s\s+\?p\s+\?o\s*\}\s*\}\s*$`)
	entityRe   = regexp.MustCompile(`(?is)^\s*SELECT\s+\?p\s+\?o\s+WHERE\s*\{\s*GRAPH\s*<([^>]+)>\s*\{\s*<([^>]+)>\s+\?p\s+\?o\s*\}\s*\}\s*$`)
	hasPartRe  = regexp.MustCompile(`(?is)^\s*SELECT\s+DISTINCT\s+\?part\s+WHERE\s*\{\s*GRAPH\s+\?g\s*\{\s*<([^>]+)>\s+<([^>]+)>\s*\|\s*<([^>]+)>\s+\?part\s*\}\s*\}\s*$`)
	dropRe     = regexp.MustCompile(`(?is)^\s*DROP\s+SILENT\s+GRAPH\s*<([^>]+)>\s*$`)
)

// NewFakeStore starts a fake store that is shut down when the test ends.
func NewFakeStore(t testing.TB) *FakeStore {
	t.Helper()
	f := &FakeStore{
		graphs: make(map[string]*rdf.Graph),
		fail:   make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the endpoint for queries, updates and graph store requests.
func (f *FakeStore) URL() string { return f.server.URL + "/ds" }

// SetGraph replaces a named graph.
func (f *FakeStore) SetGraph(name string, g *rdf.Graph) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphs[name] = g.Clone()
}

// Graph returns a copy of a named graph, empty if missing.
func (f *FakeStore) Graph(name string) *rdf.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.graphs[name]; ok {
		return g.Clone()
	}
	return rdf.NewGraph()
}

// GraphNames lists the non-empty named graphs.
func (f *FakeStore) GraphNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name, g := range f.graphs {
		if g.Len() > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// FailWrites makes every write to graph answer with status.
func (f *FakeStore) FailWrites(graph string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[graph] = status
}

// Ops returns the write operations seen so far, e.g. "PUT <g>" or
// "DROP <g>".
func (f *FakeStore) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// ResetOps clears the operation log.
func (f *FakeStore) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

func (f *FakeStore) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if graph := r.URL.Query().Get("graph"); graph != "" {
		f.serveGraphStore(w, r, graph)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q := r.PostForm.Get("query"); q != "" {
		f.serveQuery(w, q)
		return
	}
	if u := r.PostForm.Get("update"); u != "" {
		f.serveUpdate(w, u)
		return
	}
	http.Error(w, "missing query or update", http.StatusBadRequest)
}

func (f *FakeStore) serveGraphStore(w http.ResponseWriter, r *http.Request, graph string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodGet {
		if status, ok := f.fail[graph]; ok {
			http.Error(w, "injected failure", status)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		g, ok := f.graphs[graph]
		if !ok || g.Len() == 0 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/n-triples")
		_, _ = io.WriteString(w, g.NTriples())
	case http.MethodPut, http.MethodPost:
		format, err := rdf.FormatForMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		g, err := rdf.ParseGraph(r.Body, format)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if existing, ok := f.graphs[graph]; ok && r.Method == http.MethodPost {
			for _, t := range g.Triples() {
				existing.Add(t)
			}
		} else {
			f.graphs[graph] = g
		}
		f.ops = append(f.ops, fmt.Sprintf("%s <%s>", r.Method, graph))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(f.graphs, graph)
		f.ops = append(f.ops, fmt.Sprintf("DELETE <%s>", graph))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *FakeStore) serveQuery(w http.ResponseWriter, q string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m := askGraphRe.FindStringSubmatch(q); m != nil {
		g, ok := f.graphs[m[1]]
		writeJSON(w, map[string]any{"head": map[string]any{}, "boolean": ok && g.Len() > 0})
		return
	}

	if m := entityRe.FindStringSubmatch(q); m != nil {
		var rows []map[string]any
		if g, ok := f.graphs[m[1]]; ok {
			for _, t := range g.Match(rdf.IRI(m[2]), rdf.Any, rdf.Any) {
				rows = append(rows, map[string]any{"p": jsonTerm(t.P), "o": jsonTerm(t.O)})
			}
		}
		writeSelect(w, []string{"p", "o"}, rows)
		return
	}

	if m := hasPartRe.FindStringSubmatch(q); m != nil {
		seen := make(map[string]bool)
		var rows []map[string]any
		for _, name := range sortedKeys(f.graphs) {
			for _, pred := range []string{m[2], m[3]} {
				for _, o := range f.graphs[name].Objects(rdf.IRI(m[1]), rdf.IRI(pred)) {
					if !seen[o.Value] {
						seen[o.Value] = true
						rows = append(rows, map[string]any{"part": jsonTerm(o)})
					}
				}
			}
		}
		writeSelect(w, []string{"part"}, rows)
		return
	}

	http.Error(w, "unsupported query shape: "+strings.TrimSpace(q), http.StatusBadRequest)
}

func (f *FakeStore) serveUpdate(w http.ResponseWriter, u string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := dropRe.FindStringSubmatch(u)
	if m == nil {
		http.Error(w, "unsupported update: "+strings.TrimSpace(u), http.StatusBadRequest)
		return
	}
	if status, ok := f.fail[m[1]]; ok {
		http.Error(w, "injected failure", status)
		return
	}
	delete(f.graphs, m[1])
	f.ops = append(f.ops, fmt.Sprintf("DROP <%s>", m[1]))
	w.WriteHeader(http.StatusNoContent)
}

func jsonTerm(t rdf.Term) map[string]string {
	switch {
	case t.IsIRI():
		return map[string]string{"type": "uri", "value": t.Value}
	case t.IsBlank():
		return map[string]string{"type": "bnode", "value": t.Value}
	default:
		out := map[string]string{"type": "literal", "value": t.Value}
		if t.Lang != "" {
			out["xml:lang"] = t.Lang
		} else if t.Datatype != "" {
			out["datatype"] = t.Datatype
		}
		return out
	}
}

func writeSelect(w http.ResponseWriter, vars []string, rows []map[string]any) {
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, map[string]any{
		"head":    map[string]any{"vars": vars},
		"results": map[string]any{"bindings": rows},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/sparql-results+json")
	_ = json.NewEncoder(w).Encode(v)
}

func sortedKeys(m map[string]*rdf.Graph) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
