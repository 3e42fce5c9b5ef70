package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = "TX .\nA <http://example.com/s> <http://example.com/p> \"o\" .\nTC .\n"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPatchText(t *testing.T) {
	p := Patch{ID: "1111", Body: body}
	assert.Equal(t, "H id <uuid:1111> .\n"+body, p.Text())

	p.Prev = "0000"
	assert.Equal(t, "H id <uuid:1111> .\nH prev <uuid:0000> .\n"+body, p.Text())

	fresh := NewPatch(body, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Len(t, fresh.ID, 36)
	assert.Empty(t, fresh.Prev)
	assert.NotEqual(t, fresh.ID, NewPatch(body, time.Now()).ID)
}

func TestTrimID(t *testing.T) {
	for in, want := range map[string]string{
		"<uuid:abc>": "abc",
		"id:abc":     "abc",
		"abc":        "abc",
		"":           "",
	} {
		assert.Equal(t, want, trimID(in), in)
	}
}

type deltaServer struct {
	mu      sync.Mutex
	latest  string
	patches []string
	ctype   string
}

func (s *deltaServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/$/rpc", func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch req.Operation {
		case "describe_datasource":
			if req.Arg["name"] != "prez" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(datasourceDescription{ID: "id:ds-1", Name: "prez"})
		case "describe_log":
			assert.Equal(t, "id:ds-1", req.Arg["datasource"])
			s.mu.Lock()
			_ = json.NewEncoder(w).Encode(logDescription{Latest: s.latest})
			s.mu.Unlock()
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/prez", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.patches = append(s.patches, string(data))
		s.ctype = r.Header.Get("Content-Type")
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestDelta(t *testing.T) {
	ds := &deltaServer{latest: "id:0000"}
	srv := httptest.NewServer(ds.handler(t))
	t.Cleanup(srv.Close)

	d := NewDelta(srv.URL+"/", "prez", nil, discard())
	ctx := context.Background()

	prev, err := d.LatestPatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0000", prev)

	p := Patch{ID: "1111", Prev: prev, Body: body}
	require.NoError(t, d.Publish(ctx, p))
	require.Len(t, ds.patches, 1)
	assert.Equal(t, p.Text(), ds.patches[0])
	assert.Equal(t, ContentTypePatch, ds.ctype)
}

func TestDeltaErrors(t *testing.T) {
	ds := &deltaServer{}
	srv := httptest.NewServer(ds.handler(t))
	t.Cleanup(srv.Close)

	_, err := NewDelta(srv.URL, "missing", nil, discard()).LatestPatchID(context.Background())
	var de *DeltaError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusNotFound, de.StatusCode)
	assert.Equal(t, "describe_datasource", de.Op)

	latest, err := NewDelta(srv.URL, "prez", nil, discard()).LatestPatchID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest)
}

type fakeConn struct {
	msgs     []*nats.Msg
	flushErr error
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error { return c.flushErr }

func TestNATS(t *testing.T) {
	conn := &fakeConn{}
	n := NewNATS(conn, "prez.patches", "prezsyncd", discard())

	p := Patch{
		ID:      "1111",
		Prev:    "0000",
		Body:    body,
		Commit:  "abc123",
		Created: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, n.Publish(context.Background(), p))
	require.Len(t, conn.msgs, 1)

	msg := conn.msgs[0]
	assert.Equal(t, "prez.patches", msg.Subject)
	assert.Equal(t, body, string(msg.Data))
	assert.Equal(t, ContentTypePatchBody, msg.Header.Get(HeaderContentType))
	assert.Equal(t, "2025-03-01T12:30:00", msg.Header.Get(HeaderDateCreated))
	assert.Equal(t, "prezsyncd", msg.Header.Get(HeaderCreator))
	assert.Equal(t, "1111", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "abc123", msg.Header.Get(HeaderCommit))

	conn.flushErr = errors.New("timeout")
	assert.Error(t, n.Publish(context.Background(), p))
}

func TestFileChainsPatches(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := NewFile(fs, "/var/lib/prezsyncd/patches.rdfp")
	ctx := context.Background()

	latest, err := f.LatestPatchID(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)

	require.NoError(t, f.Publish(ctx, Patch{ID: "1111", Body: body}))
	require.NoError(t, f.Publish(ctx, Patch{ID: "2222", Prev: "1111", Body: body}))

	latest, err = f.LatestPatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2222", latest)

	data, err := afero.ReadFile(fs, "/var/lib/prezsyncd/patches.rdfp")
	require.NoError(t, err)
	assert.Contains(t, string(data), "H prev <uuid:1111> .")
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Publish(context.Background(), Patch{ID: "1111", Body: body}))
	assert.Equal(t, "H id <uuid:1111> .\n"+body, buf.String())
}
