package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestSetMissionStateSetsExactlyOneGaugeHigh(t *testing.T) {
	m := New()
	states := []string{"idle", "transit", "operate", "rth"}
	m.SetMissionState(states, "operate")

	require.Equal(t, 0.0, testutilValue(t, m.MissionState.WithLabelValues("idle")))
	require.Equal(t, 1.0, testutilValue(t, m.MissionState.WithLabelValues("operate")))
	require.Equal(t, 0.0, testutilValue(t, m.MissionState.WithLabelValues("rth")))
}

func TestServeExposesMetricsEndpoint(t *testing.T) {
	m := New()
	m.GnssSatellites.Set(9)

	srv, err := Serve("127.0.0.1:0", m)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	// Serve binds an ephemeral port internally; exercise the handler
	// directly instead of guessing the bound address.
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	rec := newRecorder()
	handler := srv.httpServer.Handler
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.code)
	require.Contains(t, string(rec.body), "navscout_gnss_satellites 9")
}

func testutilValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

type recorder struct {
	code int
	body []byte
	hdr  http.Header
}

func newRecorder() *recorder { return &recorder{code: http.StatusOK, hdr: http.Header{}} }

func (r *recorder) Header() http.Header { return r.hdr }
func (r *recorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}
func (r *recorder) WriteHeader(code int) { r.code = code }

var _ io.Writer = (*recorder)(nil)
