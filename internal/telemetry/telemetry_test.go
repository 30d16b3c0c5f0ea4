// Package telemetry tests for Prometheus metrics.
package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOperationsPushed verifies the per-entity counter.
func TestOperationsPushed(t *testing.T) {
	before := testutil.ToFloat64(operationsPushed.WithLabelValues("orders"))
	OperationsPushed("orders", 150)
	assert.Equal(t, before+150, testutil.ToFloat64(operationsPushed.WithLabelValues("orders")))
}

// TestRequestOutcome verifies outcomes are counted separately.
func TestRequestOutcome(t *testing.T) {
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("orders", OutcomeShortCircuited))
	RequestOutcome("orders", OutcomeShortCircuited)
	RequestOutcome("orders", OutcomeFinalized)
	assert.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues("orders", OutcomeShortCircuited)))
}

// TestGauges verifies queue depth and connectivity gauges.
func TestGauges(t *testing.T) {
	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueDepth))

	SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(online))
	SetOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(online))
}

// TestHandler verifies metrics are exposed in text format.
func TestHandler(t *testing.T) {
	Dispatched("orders-push", "completed", 120*time.Millisecond)
	TrackError("TRANSPORT_FAILED")
	RecordsPulled("products", 2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tijara_sync_dispatch_total")
	assert.Contains(t, body, `tijara_sync_errors_total{code="TRANSPORT_FAILED"}`)
	assert.Contains(t, body, `tijara_sync_records_pulled_total{entity="products"}`)
}
