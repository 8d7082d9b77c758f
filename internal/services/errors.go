package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for failure classification. Stage and collaborator code
// wraps errors with exactly one of these so the executor, breaker, and
// dead-letter sink agree on retry and accounting semantics.
var (
	ErrTimeout               = errors.New("timeout")
	ErrTransient             = errors.New("transient failure")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrPermanent             = errors.New("permanent failure")
	ErrInternal              = errors.New("internal error")
	ErrBatchDeadline         = errors.New("batch deadline exceeded")
	ErrConfiguration         = errors.New("configuration error")
	ErrNotFound              = errors.New("not found")
)

// Kind is the canonical failure label recorded on items and dead letters.
type Kind string

const (
	KindNone                  Kind = ""
	KindTimeout               Kind = "timeout"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindTransient             Kind = "transient_error"
	KindPermanent             Kind = "permanent_error"
	KindInternal              Kind = "internal_error"
	KindBatchDeadline         Kind = "batch_deadline_exceeded"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its failure kind. Configuration and not-found
// failures are permanent: retrying cannot fix the input. Bare context
// deadline errors classify as timeout so unwrapped stage timeouts still
// retry. Everything unmarked is internal_error.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBatchDeadline):
		return KindBatchDeadline
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return KindPermanent
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrDependencyUnavailable):
		return KindDependencyUnavailable
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Retryable reports whether the executor may attempt the stage again after
// this failure, budget permitting.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindTransient, KindDependencyUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// DependencyFault reports whether the failure says something about the
// dependency's health and therefore counts toward its circuit breaker.
// Permanent failures are the input's fault, internal ones are ours, and an
// open-breaker fast failure carries no new signal; none of those count.
func DependencyFault(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindTransient:
		return true
	default:
		return false
	}
}

// Details strips the sentinel marker prefix from a wrapped error, leaving
// the stage and operation detail for notifications and dead-letter records.
func Details(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrTimeout, ErrTransient, ErrDependencyUnavailable,
		ErrPermanent, ErrInternal, ErrBatchDeadline,
		ErrConfiguration, ErrNotFound,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
