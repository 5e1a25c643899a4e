package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)

	_, span := provider.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	rm, err := provider.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rm.ScopeMetrics)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, samplerFor(tt.rate).Description())
	}
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.NotNil(t, p.Tracer("x"))
	assert.NotNil(t, p.Meter("x"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return NewProviderFrom(tp, mp, reader), sr
}

func TestDecisionObserver_Emit(t *testing.T) {
	p, sr := newRecordingProvider(t)
	obs, err := NewDecisionObserver(p)
	require.NoError(t, err)

	ctx, span := p.Tracer("test").Start(context.Background(), "frame")
	require.NoError(t, obs.Emit(ctx, "virtual_tile", "large_resolution", 3, false))
	require.NoError(t, obs.Emit(ctx, "virtual_tile", "large_resolution", 3, true))
	span.End()

	rm, err := p.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value, "reused options are not counted")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == ScalabilityModeKey {
			found = true
			assert.Equal(t, "virtual_tile", kv.Value.AsString())
		}
	}
	assert.True(t, found)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestFrameAttributes(t *testing.T) {
	attrs := FrameAttributes("", "hevc", 7, 1920, 1080, 2, 1)
	assert.Len(t, attrs, 5)
	attrs = FrameAttributes("p1", "hevc", 7, 1920, 1080, 2, 1)
	assert.Len(t, attrs, 6)
	assert.Equal(t, "1920x1080", attrs[2].Value.AsString())
}
