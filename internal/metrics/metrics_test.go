package metrics

import (
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

func TestRecordHTTPRequest(t *testing.T) {
	m := New(false)
	m.RecordHTTPRequest("storefront", "GET", "/products", "200", 10*time.Millisecond)
	m.RecordHTTPRequest("storefront", "GET", "/products", "200", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("storefront", "GET", "/products", "200")))
}

func TestInFlight(t *testing.T) {
	m := New(false)
	m.IncrementInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
	m.DecrementInFlight()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
}

func TestInstrumentStoreTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := New(false)
	client := &http.Client{Transport: m.InstrumentStoreTransport(nil)}
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeRequests.WithLabelValues("201", "post")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(true)
	m.RecordWorkflowFailure("create_order", "cart_clear")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `storefront_workflow_step_failures_total{step="cart_clear",workflow="create_order"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
