package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Enabled)

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	_, done := p.TrackOperation(context.Background(), "calculate")
	assert.NotPanics(t, func() { done(errors.New("boom")) })
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProvider_IsNoop(t *testing.T) {
	var p *Provider
	_, done := p.TrackOperation(context.Background(), "calculate")
	assert.NotPanics(t, func() { done(errors.New("x")) })
}

func newTestProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	p, err := NewWithProviders(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	)
	require.NoError(t, err)
	return p, spans, reader
}

func TestTrackOperation_RecordsSpanAndMetrics(t *testing.T) {
	p, spans, reader := newTestProvider(t)
	ctx := context.Background()

	_, done := p.TrackOperation(ctx, "calculator.calculate")
	done(nil)
	_, done = p.TrackOperation(ctx, "calculator.calculate")
	done(errors.New("server error"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "calculator.calculate", ended[0].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["tradegate.operations.total"])
	assert.Equal(t, int64(1), totals["tradegate.errors.total"])
	assert.Equal(t, int64(0), totals["tradegate.operations.active"])
}

func TestMiddleware_MarksServerErrors(t *testing.T) {
	p, spans, _ := newTestProvider(t)
	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calculator", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET /calculator", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}
