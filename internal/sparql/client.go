// Package sparql is a small client for a remote triple store speaking the
// SPARQL 1.1 Protocol and the Graph Store HTTP Protocol.
package sparql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schaermu/prezsyncd/internal/rdf"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Options configure a Client.
type Options struct {
	Username string
	Password string
	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration
	// UpdateURL and GraphStoreURL default to the query endpoint.
	UpdateURL     string
	GraphStoreURL string
	HTTPClient    *http.Client
}

// Client talks to one SPARQL endpoint.
type Client struct {
	queryURL  string
	updateURL string
	gspURL    string
	username  string
	password  string
	http      *http.Client
	logger    *slog.Logger
}

// New creates a client for endpoint.
func New(endpoint string, opts Options, logger *slog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		queryURL:  endpoint,
		updateURL: opts.UpdateURL,
		gspURL:    opts.GraphStoreURL,
		username:  opts.Username,
		password:  opts.Password,
		http:      hc,
		logger:    logger,
	}
	if c.updateURL == "" {
		c.updateURL = endpoint
	}
	if c.gspURL == "" {
		c.gspURL = endpoint
	}
	return c
}

// Endpoint returns the query endpoint URL.
func (c *Client) Endpoint() string { return c.queryURL }

// Binding is one row of a SELECT result.
type Binding map[string]rdf.Term

type resultsDoc struct {
	Boolean *bool `json:"boolean"`
	Results struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	} `json:"results"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
	Lang     string `json:"xml:lang"`
}

func (j jsonTerm) term() rdf.Term {
	switch j.Type {
	case "uri":
		return rdf.IRI(j.Value)
	case "bnode":
		return rdf.Blank(j.Value)
	default:
		if j.Lang != "" {
			return rdf.LangLiteral(j.Value, j.Lang)
		}
		if j.Datatype != "" {
			return rdf.TypedLiteral(j.Value, j.Datatype)
		}
		return rdf.Literal(j.Value)
	}
}

// Ask runs an ASK query.
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	var doc resultsDoc
	if err := c.query(ctx, "ask", query, "application/sparql-results+json", func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&doc)
	}); err != nil {
		return false, err
	}
	if doc.Boolean == nil {
		return false, fmt.Errorf("ask: response carries no boolean")
	}
	return *doc.Boolean, nil
}

// Select runs a SELECT query.
func (c *Client) Select(ctx context.Context, query string) ([]Binding, error) {
	var doc resultsDoc
	if err := c.query(ctx, "select", query, "application/sparql-results+json", func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&doc)
	}); err != nil {
		return nil, err
	}
	out := make([]Binding, 0, len(doc.Results.Bindings))
	for _, row := range doc.Results.Bindings {
		b := make(Binding, len(row))
		for k, v := range row {
			b[k] = v.term()
		}
		out = append(out, b)
	}
	return out, nil
}

// Construct runs a CONSTRUCT or DESCRIBE query.
func (c *Client) Construct(ctx context.Context, query string) (*rdf.Graph, error) {
	var g *rdf.Graph
	err := c.query(ctx, "construct", query, "application/n-triples", func(r io.Reader) error {
		var err error
		g, err = rdf.ParseGraph(r, rdf.FormatNTriples)
		return err
	})
	return g, err
}

func (c *Client) query(ctx context.Context, op, query, accept string, decode func(io.Reader) error) error {
	form := url.Values{"query": {query}}
	req, err := c.newRequest(ctx, http.MethodPost, c.queryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)

	c.logger.Debug("sparql query", "op", op, "query", query)
	return c.do(req, op, func(resp *http.Response) error {
		if err := decode(resp.Body); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", op, err)
		}
		return nil
	})
}

// Update runs a SPARQL Update request.
func (c *Client) Update(ctx context.Context, update string) error {
	form := url.Values{"update": {update}}
	req, err := c.newRequest(ctx, http.MethodPost, c.updateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("sparql update", "update", update)
	return c.do(req, "update", nil)
}

// GraphExists reports whether the named graph holds at least one triple.
func (c *Client) GraphExists(ctx context.Context, graph string) (bool, error) {
	return c.Ask(ctx, fmt.Sprintf("ASK { GRAPH <%s> { ?s ?p ?o } }", graph))
}

// DropGraph removes the named graph; a missing graph is not an error.
func (c *Client) DropGraph(ctx context.Context, graph string) error {
	return c.Update(ctx, fmt.Sprintf("DROP SILENT GRAPH <%s>", graph))
}

// GetGraph fetches the named graph. A missing graph yields an empty graph.
func (c *Client) GetGraph(ctx context.Context, graph string) (*rdf.Graph, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.graphURL(graph), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/n-triples")

	g := rdf.NewGraph()
	err = c.do(req, "get graph", func(resp *http.Response) error {
		format, ferr := rdf.FormatForMediaType(resp.Header.Get("Content-Type"))
		if ferr != nil {
			format = rdf.FormatNTriples
		}
		parsed, perr := rdf.ParseGraph(resp.Body, format)
		if perr != nil {
			return fmt.Errorf("get graph: failed to parse %s: %w", graph, perr)
		}
		g = parsed
		return nil
	})
	var se *StatusError
	if err != nil && errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return rdf.NewGraph(), nil
	}
	return g, err
}

// ReplaceGraph writes g into the named graph, replacing its contents
// unless appendOnly is set.
func (c *Client) ReplaceGraph(ctx context.Context, graph string, g *rdf.Graph, appendOnly bool) error {
	method := http.MethodPut
	op := "replace graph"
	if appendOnly {
		method = http.MethodPost
		op = "append graph"
	}
	req, err := c.newRequest(ctx, method, c.graphURL(graph), bytes.NewBufferString(g.NTriples()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/n-triples")

	c.logger.Debug("graph store write", "op", op, "graph", graph, "triples", g.Len())
	return c.do(req, op, nil)
}

func (c *Client) graphURL(graph string) string {
	sep := "?"
	if strings.Contains(c.gspURL, "?") {
		sep = "&"
	}
	return c.gspURL + sep + url.Values{"graph": {graph}}.Encode()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, handle func(*http.Response) error) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if handle == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return handle(resp)
}
