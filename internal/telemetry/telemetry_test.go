package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, "temporal-test", "0.0.0", Options{}))
	defer Shutdown(ctx)

	assert.Empty(t, shutdownFns)

	_, span := Tracer("").Start(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitEnabledRegistersShutdown(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, "temporal-test", "0.0.0", Options{Enabled: true}))

	assert.Len(t, shutdownFns, 2)
	_, span := Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	Shutdown(ctx)
	assert.Empty(t, shutdownFns)
	require.NoError(t, Init(ctx, "temporal-test", "0.0.0", Options{}))
}

func TestNewInstruments(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	ins, err := NewInstruments(mp.Meter("test"))
	require.NoError(t, err)
	assert.NotNil(t, ins.Created)
	assert.NotNil(t, ins.Rejected)

	Add(context.Background(), ins.Created, 1, "price")
	Add(context.Background(), nil, 1, "price")
}
