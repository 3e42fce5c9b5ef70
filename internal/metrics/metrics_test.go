package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveRun("sync", time.Now(), nil)
	m.ObserveRun("sync", time.Now(), errors.New("boom"))
	m.ObservePlan(map[string]int{"upload": 2, "same": 3})
	m.ObserveArtifactErrors(1)
	m.ObservePatch("diff", 4, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.artifacts.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactErrs))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.patchLines.WithLabelValues("add")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun("sync", time.Now(), nil)
	m.ObservePlan(map[string]int{"upload": 1})
	m.ObserveArtifactErrors(1)
	m.ObservePatch("add", 1, 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePatch("add", 10, 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `prezsyncd_patches_published_total{kind="add"} 1`))
}
