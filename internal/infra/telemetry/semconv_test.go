package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperationAttributes(t *testing.T) {
	attrs := OperationAttributes("test", "sql", "load_bbo_quotes", ResultOf(errors.New("x")))
	require.Len(t, attrs, 4)
	require.Equal(t, AttrResult, attrs[3].Key)
	require.Equal(t, ResultError, attrs[3].Value.AsString())
	require.Equal(t, ResultSuccess, ResultOf(nil))
}

func TestReplayAttributesOmitEmptySecurity(t *testing.T) {
	require.Len(t, ReplayAttributes("test", "bbo_quote", ""), 2)
	require.Len(t, ReplayAttributes("test", "bbo_quote", "IBM.US"), 3)
}

func TestDisabledProviderFallsBackToGlobalMeter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Environment = "Staging"
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p.Meter("chronicle.test"))
	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, "staging", Environment())
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
