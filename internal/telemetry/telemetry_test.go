package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledWithoutEndpoint(t *testing.T) {
	p, err := New(context.Background(), Config{ServiceName: "reasonkernel-test"})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
}

func TestProvider_TrackOperationCompletesWithoutPanicWhenDisabled(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)

	_, done := p.TrackOperation(context.Background(), "test.op")
	done(nil)
}

func TestProvider_ShutdownIsSafeWhenDisabled(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
