package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Not parallel: installs global otel state.
func TestInitTracerProviderRecordsAndPropagates(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "itemcrawler-test", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := Tracer().Start(context.Background(), "batch.flush")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()

	assert.NotEmpty(t, carrier.Get("traceparent"))
	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "batch.flush", ended[0].Name())
	assert.Equal(t, "itemcrawler-test", serviceName(ended[0]))
}

func serviceName(span sdktrace.ReadOnlySpan) string {
	for _, kv := range span.Resource().Attributes() {
		if kv.Key == "service.name" {
			return kv.Value.AsString()
		}
	}
	return ""
}
