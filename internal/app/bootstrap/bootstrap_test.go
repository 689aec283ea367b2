package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/internal/infra/config"
	"github.com/coachpo/chronicle/internal/observability"
)

func TestParseConfigFlag(t *testing.T) {
	path, err := ParseConfigFlag("riskserver", nil)
	require.NoError(t, err)
	require.Equal(t, config.DefaultPath, path)

	path, err = ParseConfigFlag("riskserver", []string{"-c", "etc/risk.yml"})
	require.NoError(t, err)
	require.Equal(t, "etc/risk.yml", path)

	path, err = ParseConfigFlag("riskserver", []string{"--config=prod.yml"})
	require.NoError(t, err)
	require.Equal(t, "prod.yml", path)

	_, err = ParseConfigFlag("riskserver", []string{"--verbose"})
	require.Error(t, err)
	_, err = ParseConfigFlag("riskserver", []string{"-c", "a.yml", "extra"})
	require.Error(t, err)
}

func TestReportNamesPhase(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, "replay", Fail("database connection", errors.New("connection refused")))
	require.Equal(t, "replay: database connection failed: connection refused\n", buf.String())

	buf.Reset()
	report(&buf, "replay", errors.New("boom"))
	require.Equal(t, "replay: boom\n", buf.String())

	require.NoError(t, Fail("configuration", nil))
	cause := errors.New("cause")
	require.ErrorIs(t, Fail("configuration", cause), cause)
}

func TestWaitFor(t *testing.T) {
	require.NoError(t, WaitFor(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	block := make(chan struct{})
	defer close(block)
	require.ErrorIs(t, WaitFor(ctx, func() { <-block }), context.DeadlineExceeded)
}

func TestInitLoggingInstallsGlobalLogger(t *testing.T) {
	t.Cleanup(func() { observability.SetLogger(nil) })
	logger, err := InitLogging(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	require.Same(t, logger, observability.Log())

	_, err = InitLogging(config.LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
