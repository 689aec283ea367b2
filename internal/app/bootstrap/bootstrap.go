// Package bootstrap holds the startup and shutdown plumbing shared by the chronicle
// binaries.
package bootstrap

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coachpo/chronicle/internal/infra/config"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
	"github.com/coachpo/chronicle/internal/observability"
)

// ExitFailure is the process status reported for any startup failure.
const ExitFailure = -1

// PhaseError is a startup failure attributed to the phase it happened in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }

func (e *PhaseError) Unwrap() error { return e.Err }

// Fail attributes err to phase. A nil err stays nil.
func Fail(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// Exit reports err on stderr and terminates the process with ExitFailure.
func Exit(program string, err error) {
	report(os.Stderr, program, err)
	os.Exit(ExitFailure)
}

func report(w io.Writer, program string, err error) {
	var phase *PhaseError
	if errors.As(err, &phase) {
		_, _ = fmt.Fprintf(w, "%s: %s failed: %v\n", program, phase.Phase, phase.Err)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %v\n", program, err)
}

// ParseConfigFlag parses -c/--config from args, defaulting to config.DefaultPath.
func ParseConfigFlag(program string, args []string) (string, error) {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var path string
	usage := fmt.Sprintf("Path to the configuration file (default: %s)", config.DefaultPath)
	fs.StringVar(&path, "c", config.DefaultPath, usage)
	fs.StringVar(&path, "config", config.DefaultPath, usage)
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() > 0 {
		return "", fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return path, nil
}

// InitLogging builds the process logger and installs it as the global logger.
func InitLogging(cfg config.LoggingConfig) (*observability.ZapLogger, error) {
	logger, err := observability.NewZapLogger(cfg.Level, cfg.Format)
	if err != nil {
		return nil, err
	}
	observability.SetLogger(logger)
	return logger, nil
}

// InitTelemetry starts the meter provider.
func InitTelemetry(ctx context.Context, cfg telemetry.Config, logger observability.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if cfg.Enabled {
		logger.Info("telemetry initialized",
			observability.Field{Key: "endpoint", Value: cfg.OTLPEndpoint},
			observability.Field{Key: "service", Value: cfg.ServiceName})
	} else {
		logger.Info("telemetry disabled")
	}
	return provider, nil
}

// ShutdownStep runs fn bounded by timeout and logs its outcome.
func ShutdownStep(ctx context.Context, logger observability.Logger, name string, timeout time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	logger.Debug("shutdown step started", observability.Field{Key: "step", Value: name})
	if err := fn(stepCtx); err != nil {
		logger.Error("shutdown step failed", observability.Field{Key: "step", Value: name}, observability.Err(err))
		return
	}
	logger.Info("shutdown step completed", observability.Field{Key: "step", Value: name})
}

// WaitFor blocks until wait returns or ctx is done.
func WaitFor(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for goroutines: %w", ctx.Err())
	}
}
