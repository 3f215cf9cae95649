package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/server"
)

// sampleValue sums the counter value, or the histogram sample count, of every
// series in family name whose labels include want.
func sampleValue(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched != len(want) {
				continue
			}
			if h := m.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			} else {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func TestMiddlewareRecordsBatchRoute(t *testing.T) {
	var started atomic.Bool
	srv := httptest.NewServer(server.New(zap.NewNop(), func() (server.Status, bool) {
		return server.Status{BatchID: "b-1"}, started.Load()
	}).Handler())
	t.Cleanup(srv.Close)

	get := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		return resp.StatusCode
	}

	ok := map[string]string{"method": "GET", "code": "200"}
	missing := map[string]string{"method": "GET", "code": "404"}
	batchRoute := map[string]string{"method": "GET", "route": "/v1/batch"}
	okBefore := sampleValue(t, "http_requests_total", ok)
	missingBefore := sampleValue(t, "http_requests_total", missing)
	routeBefore := sampleValue(t, "http_request_duration_seconds", batchRoute)

	require.Equal(t, http.StatusNotFound, get("/v1/batch"))
	started.Store(true)
	require.Equal(t, http.StatusOK, get("/v1/batch"))
	require.Equal(t, http.StatusOK, get("/healthz"))

	require.InDelta(t, 2, sampleValue(t, "http_requests_total", ok)-okBefore, 1e-9)
	require.InDelta(t, 1, sampleValue(t, "http_requests_total", missing)-missingBefore, 1e-9)
	require.InDelta(t, 2, sampleValue(t, "http_request_duration_seconds", batchRoute)-routeBefore, 1e-9)
}
