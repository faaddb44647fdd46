package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestTopologyChanged(t *testing.T) {
	m := New("test", nil)
	ctx := context.Background()

	m.TopologyChanged(ctx, topology.Change{Action: topology.ActionConnect, Reset: 3, Reattached: true})
	m.TopologyChanged(ctx, topology.Change{Action: topology.ActionConnect, Reset: 1})
	m.TopologyChanged(ctx, topology.Change{Action: topology.ActionDelete})

	text := scrape(t, m)
	assert.Contains(t, text, `netdiag_topology_mutations_total{action="connect"} 2`)
	assert.Contains(t, text, `netdiag_topology_mutations_total{action="delete"} 1`)
	assert.Contains(t, text, `netdiag_topology_positions_reset_total 4`)
	assert.Contains(t, text, `netdiag_topology_orphans_reattached_total 1`)
}

func TestObserveRequest(t *testing.T) {
	m := New("test", nil)

	m.ObserveRequest(http.MethodGet, "/api/v1/topology", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/topology", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	text := scrape(t, m)
	assert.Contains(t, text, `netdiag_http_requests_total{code="200",method="GET",route="/api/v1/topology"} 2`)
	assert.Contains(t, text, `netdiag_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
	assert.Contains(t, text, `netdiag_http_request_duration_seconds_count{method="GET",route="/api/v1/topology"} 2`)
}

func TestHandler_ExposesRuntimeAndPool(t *testing.T) {
	m := New("1.2.3", func() sql.DBStats { return sql.DBStats{OpenConnections: 1, InUse: 1} })

	text := scrape(t, m)
	for _, want := range []string{
		`netdiag_build_info{version="1.2.3"} 1`,
		`netdiag_db_open_connections 1`,
		`netdiag_db_in_use_connections 1`,
		`go_goroutines`,
	} {
		assert.Contains(t, text, want)
	}
}
