package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketing_sync/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	observability.ObserveHTTP("/v1/runs", "GET", 200, 12*time.Millisecond)
	observability.ObservePoll("not_ready")
	observability.ObserveLoad("brightlocal.reviews_detailed", "WRITE_TRUNCATE", 42)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"mktsync_http_requests_total",
		`mktsync_batch_poll_ticks_total{outcome="not_ready"}`,
		`mktsync_warehouse_rows_loaded_total{mode="WRITE_TRUNCATE",table="brightlocal.reviews_detailed"} 42`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
}
