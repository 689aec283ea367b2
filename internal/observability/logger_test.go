package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingLogger struct {
	debugs int
	infos  int
	errors int
}

func (r *recordingLogger) Debug(string, ...Field) { r.debugs++ }
func (r *recordingLogger) Info(string, ...Field)  { r.infos++ }
func (r *recordingLogger) Error(string, ...Field) { r.errors++ }

func TestSetLoggerOverridesGlobal(t *testing.T) {
	recorder := new(recordingLogger)
	SetLogger(recorder)
	t.Cleanup(func() { SetLogger(nil) })

	Log().Debug("test")
	require.Equal(t, 1, recorder.debugs)

	SetLogger(nil)
	Log().Info("noop")
	require.Equal(t, 0, recorder.infos)
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := WrapZap(zap.New(core)).With(Field{Key: "component", Value: "replay"})

	logger.Info("unit opened", Field{Key: "security", Value: "IBM.US"})
	logger.Error("load failed", Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "unit opened", entries[0].Message)
	ctx := entries[0].ContextMap()
	require.Equal(t, "replay", ctx["component"])
	require.Equal(t, "IBM.US", ctx["security"])
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNewZapLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger("loud", "json")
	require.Error(t, err)

	logger, err := NewZapLogger("debug", "console")
	require.NoError(t, err)
	logger.Debug("ready")
}

func TestAggregateErrorsSkipsNil(t *testing.T) {
	recorder := new(recordingLogger)

	require.NoError(t, AggregateErrors(recorder, "close", []error{nil, nil}))
	require.Zero(t, recorder.errors)

	b := errors.New("b")
	err := AggregateErrors(recorder, "close", []error{nil, errors.New("a"), b})
	require.ErrorContains(t, err, "close: 2 failed")
	require.ErrorIs(t, err, b)
	require.Equal(t, 1, recorder.errors)
}

func TestAggregateErrorsFallsBackToGlobalLogger(t *testing.T) {
	recorder := new(recordingLogger)
	SetLogger(recorder)
	t.Cleanup(func() { SetLogger(nil) })

	require.Error(t, AggregateErrors(nil, "flush", []error{errors.New("x")}))
	require.Equal(t, 1, recorder.errors)
}

func TestDomainFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := WrapZap(zap.New(core))

	type account string
	logger.Info("restricted", Security(stringer("IBM.US")), Kind(stringer("bbo_quote")), Account(account("ACC1")))

	ctx := logs.All()[0].ContextMap()
	require.Equal(t, "IBM.US", ctx["security"])
	require.Equal(t, "bbo_quote", ctx["kind"])
	require.Equal(t, "ACC1", ctx["account"])
}

type stringer string

func (s stringer) String() string { return string(s) }
