package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying automatically (timeouts,
	// rate limits, momentary lock contention).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that must not be retried automatically.
	ErrPermanent = errors.New("permanent failure")
	// ErrCorruptInput marks source data that fails integrity verification.
	// Retrying the same bytes cannot succeed; the unit needs re-acquisition
	// or an explicit operator skip.
	ErrCorruptInput = errors.New("corrupt input")
	// ErrResourceExhausted marks disk-budget deferrals. The unit is not
	// failed; it waits for space.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrValidation marks bad unit state that needs operator attention.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks misconfiguration surfaced at runtime.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Details extracts the operator-facing message from a wrapped service error.
type ErrorDetails struct {
	Message string
}

// Details returns the human-readable portion of a service error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	msg := err.Error()
	for _, marker := range []error{ErrTransient, ErrPermanent, ErrCorruptInput, ErrResourceExhausted, ErrValidation, ErrConfiguration} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return ErrorDetails{Message: strings.TrimPrefix(msg, prefix)}
		}
	}
	return ErrorDetails{Message: msg}
}

// IsRetryable reports whether an error carries the transient marker or looks
// like a transient network/filesystem condition at the boundary.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrCorruptInput) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, os.ErrDeadlineExceeded)
	}
	return false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
