// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"errors"
	"fmt"
	"runtime"
)

// Runtime error kinds. Protocol violations (ErrDoubleResume,
// ErrInvalidTaskState) are fatal to the offending task only and are
// recorded in the scheduler fault log; they never corrupt queue state.
var (
	// ErrDoubleResume reports a second invocation of a one-shot
	// Continuation. The second caller receives it; the task is not
	// re-executed.
	ErrDoubleResume = errors.New("coop: continuation resumed twice")

	// ErrInvalidTaskState reports a task driven out of turn, such as
	// submitting a task that is not in the Created state.
	ErrInvalidTaskState = errors.New("coop: invalid task state")

	// ErrCancelled is the terminal error of a task that observed
	// cancellation at a step boundary, and the join result of a scope
	// cancelled before any failure.
	ErrCancelled = errors.New("coop: task cancelled")
)

// IsCancelled reports whether err is, or wraps, ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// FailureError attributes a child task failure to the task that produced
// it. Scope aggregation wraps every task failure in a FailureError so
// awaiters can tell which child failed.
type FailureError struct {
	Serial Serial
	Err    error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("coop: task %d failed: %v", e.Serial, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// FailureOf extracts the first FailureError in err's chain.
// Returns nil if err carries none.
func FailureOf(err error) *FailureError {
	if err == nil {
		return nil
	}
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// AllFailures collects every FailureError from err's chain, including
// errors aggregated via errors.Join under the Collect policy.
// Returns nil if none are found.
func AllFailures(err error) []*FailureError {
	if err == nil {
		return nil
	}
	var out []*FailureError
	collectFailures(err, &out)
	return out
}

func collectFailures(err error, out *[]*FailureError) {
	switch e := err.(type) {
	case *FailureError:
		*out = append(*out, e)
	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			collectFailures(sub, out)
		}
	case interface{ Unwrap() error }:
		collectFailures(e.Unwrap(), out)
	}
}

// PanicError wraps a panic recovered from a task step or from an
// awaitable operation's start function, together with the goroutine
// stack captured at the point of the panic. The panicking task fails
// with the PanicError as its terminal error.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coop: panic: %v\n\n%s", e.Value, e.Stack)
}

func newPanicError(v any) *PanicError {
	// runtime.Stack truncates gracefully if the buffer is too small.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}
