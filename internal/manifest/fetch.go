package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/rdf"
)

// Fetcher dereferences remote RDF documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*rdf.Graph, error)
}

// HTTPFetcher fetches RDF over HTTP with content negotiation.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher using client, or a client with a 30s
// timeout when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

const acceptRDF = "text/turtle, application/n-triples;q=0.9, application/n-quads;q=0.8, application/rdf+xml;q=0.7"

// Fetch GETs url and parses the body according to its content type, falling
// back to the URL's extension and then Turtle.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*rdf.Graph, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", acceptRDF)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("failed to fetch %s: status %d: %s", url, resp.StatusCode, body)
	}

	format, err := rdf.FormatForMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		if format, err = rdf.FormatForPath(url); err != nil {
			format = rdf.FormatTurtle
		}
	}
	g, err := rdf.ParseGraph(resp.Body, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return g, nil
}

func readGraph(fs afero.Fs, path string) (*rdf.Graph, error) {
	format, err := rdf.FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	g, err := rdf.ParseGraph(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return g, nil
}

func readDataset(fs afero.Fs, path string) (*rdf.Dataset, error) {
	format, err := rdf.FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	d, err := rdf.ParseDataset(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return d, nil
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
