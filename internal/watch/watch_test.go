package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) Run(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/data/manifest.ttl", true},
		{"/data/vocabs/a.nt", true},
		{"/data/all.nq", true},
		{"/data/ontology.rdf", true},
		{"/data/README.md", false},
		{"/data/.prezsyncd-tmp-123456", false},
		{"/data/.prezsyncd-tmp-1.ttl", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Relevant(tt.path))
		})
	}
}

func TestChangedTracksContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ttl")
	w := New(dir, time.Millisecond, &countingRunner{}, discard())

	require.NoError(t, os.WriteFile(path, []byte("<a> <b> <c> ."), 0o644))
	assert.True(t, w.changed(path), "new file")
	assert.False(t, w.changed(path), "same content")

	require.NoError(t, os.WriteFile(path, []byte("<a> <b> <d> ."), 0o644))
	assert.True(t, w.changed(path), "new content")

	require.NoError(t, os.Remove(path))
	assert.True(t, w.changed(path), "removed")
	assert.False(t, w.changed(path), "already gone")
}

func TestRunReactsToChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.ttl"), []byte("# v1\n"), 0o644))

	runner := &countingRunner{}
	w := New(dir, 20*time.Millisecond, runner, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond, "initial run")

	// ignored: not RDF, and a temp file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".prezsyncd-tmp-1"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, runner.count())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.ttl"), []byte("# v2\n"), 0o644))
	require.Eventually(t, func() bool { return runner.count() == 2 }, 2*time.Second, 10*time.Millisecond, "run after change")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRunWatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	runner := &countingRunner{}
	w := New(dir, 20*time.Millisecond, runner, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sub := filepath.Join(dir, "vocabs")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.ttl"), []byte("<a> <b> <c> ."), 0o644))

	require.Eventually(t, func() bool { return runner.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}
