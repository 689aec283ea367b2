package observability

import (
	"errors"
	"fmt"
	"slices"
)

// AggregateErrors joins the non-nil errors of operation, logs them as one entry on
// logger and returns the joined error. It returns nil when every error is nil.
func AggregateErrors(logger Logger, operation string, errs []error, fields ...Field) error {
	filtered := make([]error, 0, len(errs))
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
		messages = append(messages, err.Error())
	}
	if len(filtered) == 0 {
		return nil
	}
	if logger == nil {
		logger = Log()
	}
	logger.Error(operation+" failed", append(slices.Clip(fields),
		Field{Key: "operation", Value: operation},
		Field{Key: "error_count", Value: len(filtered)},
		Field{Key: "errors", Value: messages},
	)...)
	return fmt.Errorf("%s: %d failed: %w", operation, len(filtered), errors.Join(filtered...))
}
