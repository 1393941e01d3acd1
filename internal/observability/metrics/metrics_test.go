package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsStatus(t *testing.T) {
	handler := Instrument("test_instrument", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	before := testutil.ToFloat64(httpErrors.WithLabelValues("test_instrument", http.MethodPost))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("test_instrument", http.MethodPost, "502")); got != 1 {
		t.Fatalf("expected one request sample, got %v", got)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("test_instrument", http.MethodPost)); got != before+1 {
		t.Fatalf("expected error counter to grow, got %v", got)
	}
}

func TestWorkerObserverAndTransitions(t *testing.T) {
	var observer WorkerObserver
	observer.ObserveInvocation("ephemeral", "success", 20*time.Millisecond)
	observer.ObserveInvocation("ephemeral", "timeout", time.Second)
	ObserveTaskTransition("completed")

	if got := testutil.ToFloat64(workerInvocations.WithLabelValues("ephemeral", "timeout")); got < 1 {
		t.Fatalf("expected timeout sample, got %v", got)
	}
	if got := testutil.ToFloat64(taskTransitions.WithLabelValues("completed")); got < 1 {
		t.Fatalf("expected completed transition, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveHTTPRequest("test_handler", http.MethodGet, http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pdfagent_http_requests_total{code="200",handler="test_handler",method="GET"}`) {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}
