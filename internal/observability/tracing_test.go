package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/rl1809/inventory/internal/config"
)

func TestSetupTracing_NoEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), &config.Config{AppEnv: config.EnvLocal})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := &config.Config{AppEnv: config.EnvLocal, OtelEndpoint: "localhost:4318"}

	shutdown, err := SetupTracing(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "sample")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Flushing to an absent collector with a cancelled context must not hang.
	_ = shutdown(ctx)
}
