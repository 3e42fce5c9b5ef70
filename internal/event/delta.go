package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DeltaError is a non-2xx reply from the patch log server.
type DeltaError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *DeltaError) Error() string {
	return fmt.Sprintf("rdf delta %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Delta publishes patches to an RDF Delta patch log server.
type Delta struct {
	baseURL    string
	datasource string
	client     *http.Client
	logger     *slog.Logger
}

// NewDelta creates a publisher appending to datasource on the server at
// baseURL. A nil client gets a 30s timeout.
func NewDelta(baseURL, datasource string, client *http.Client, logger *slog.Logger) *Delta {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Delta{
		baseURL:    strings.TrimRight(baseURL, "/"),
		datasource: datasource,
		client:     client,
		logger:     logger,
	}
}

type rpcRequest struct {
	OpID      string         `json:"opid"`
	Operation string         `json:"operation"`
	Arg       map[string]any `json:"arg"`
}

type datasourceDescription struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

type logDescription struct {
	Latest  string `json:"latest"`
	Version int    `json:"version"`
}

// LatestPatchID returns the id of the newest patch in the datasource log,
// or "" for an empty log.
func (d *Delta) LatestPatchID(ctx context.Context) (string, error) {
	var ds datasourceDescription
	if err := d.rpc(ctx, "describe_datasource", map[string]any{"name": d.datasource}, &ds); err != nil {
		return "", err
	}
	if ds.ID == "" {
		return "", fmt.Errorf("datasource %q not found", d.datasource)
	}

	var log logDescription
	if err := d.rpc(ctx, "describe_log", map[string]any{"datasource": ds.ID}, &log); err != nil {
		return "", err
	}
	return trimID(log.Latest), nil
}

// Publish appends the patch to the datasource log
func (d *Delta) Publish(ctx context.Context, p Patch) error {
	target := d.baseURL + "/" + url.PathEscape(d.datasource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(p.Text()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypePatch)

	if err := d.do(req, "append", nil); err != nil {
		return err
	}
	d.logger.Info("published patch to rdf delta",
		"datasource", d.datasource,
		"patch_id", p.ID,
		"prev", p.Prev)
	return nil
}

func (d *Delta) rpc(ctx context.Context, op string, arg map[string]any, out any) error {
	body, err := json.Marshal(rpcRequest{Operation: op, Arg: arg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/$/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return d.do(req, op, out)
}

func (d *Delta) do(req *http.Request, op string, out any) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("rdf delta %s request failed: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeltaError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
