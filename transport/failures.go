package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/miladsoleymani/gatemux/message"
)

// TemporaryFailure marks a send error as retryable by an external layer:
// network-level errors, connection refusals, timeouts.
type TemporaryFailure struct {
	Reason string
	Err    error
}

func (f *TemporaryFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *TemporaryFailure) Unwrap() error { return f.Err }

// Temporaryf builds a TemporaryFailure from a format string.
func Temporaryf(format string, args ...any) error {
	return &TemporaryFailure{Reason: fmt.Sprintf(format, args...)}
}

// PermanentFailure marks a send error as not retryable: carrier-reported
// semantic errors such as malformed requests, HTTP 4xx responses, or missing
// required response fields.
type PermanentFailure struct {
	Reason string
	Err    error
}

func (f *PermanentFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *PermanentFailure) Unwrap() error { return f.Err }

// Permanentf builds a PermanentFailure from a format string.
func Permanentf(format string, args ...any) error {
	return &PermanentFailure{Reason: fmt.Sprintf(format, args...)}
}

// classify maps a send error onto a failure code. Explicitly tagged failures
// win; otherwise network errors and timeouts are temporary and everything
// else is treated as permanent.
func classify(err error) message.FailureCode {
	var tmp *TemporaryFailure
	if errors.As(err, &tmp) {
		return message.FailureTemporary
	}
	var perm *PermanentFailure
	if errors.As(err, &perm) {
		return message.FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return message.FailureTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return message.FailureTemporary
	}
	return message.FailurePermanent
}
