package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesFieldsAndCause(t *testing.T) {
	err := New(
		"historical_data_store",
		CodeIO,
		WithMessage("load bbo quotes"),
		WithField("table", "bbo_quotes"),
		WithField("index", "AAPL.US"),
		WithRemediation("check database connectivity"),
		WithCause(errors.New("connection refused")),
	)

	out := err.Error()
	if !strings.Contains(out, "scope=historical_data_store") {
		t.Fatalf("expected scope marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=io") {
		t.Fatalf("expected code in error string: %s", out)
	}
	expectedFields := "fields=index=\"AAPL.US\",table=\"bbo_quotes\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "remediation=\"check database connectivity\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"connection refused\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestIsMatchesScopeAndCode(t *testing.T) {
	sentinel := New("historical_data_store", CodeIO)
	cause := errors.New("disk full")
	err := fmt.Errorf("store quote: %w", New("historical_data_store", CodeIO, WithCause(cause)))

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected envelope to match sentinel through wrapping")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
	if errors.Is(err, New("historical_data_store", CodeInvalid)) {
		t.Fatalf("different code must not match")
	}
	if errors.Is(err, New("risk_data_store", CodeIO)) {
		t.Fatalf("different scope must not match")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NotSupported("sql_translator", "unknown member"))
	if !HasCode(err, CodeUnsupported) {
		t.Fatalf("expected unsupported code")
	}
	if HasCode(errors.New("plain"), CodeUnsupported) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestWithFieldIgnoresBlankKeys(t *testing.T) {
	err := New("replay", CodeInvalid, WithField("  ", "x"))
	if len(err.Metadata) != 0 {
		t.Fatalf("expected blank key to be ignored, got %v", err.Metadata)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
