// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import "time"

// A StartFunc begins an external asynchronous operation on behalf of a
// suspending task. It receives the one-shot Continuation for the
// suspension point and must return promptly; the operation completes by
// invoking the continuation later, from any goroutine.
//
// A StartFunc that panics fails the suspending task with a PanicError,
// unless it already invoked the continuation, in which case the panic is
// recorded in the scheduler fault log.
type StartFunc func(k *Continuation)

// Resolve returns an operation that completes immediately with v.
// The task still yields the worker: the resumption goes through the
// ready queue, so a chain of Resolve awaits cannot starve other tasks.
func Resolve(v any) StartFunc {
	return func(k *Continuation) {
		k.Resume(v)
	}
}

// Reject returns an operation that fails immediately with err.
func Reject(err error) StartFunc {
	if err == nil {
		panic("coop: Reject(nil): undefined behavior")
	}
	return func(k *Continuation) {
		k.ResumeError(err)
	}
}

// After returns an operation that completes with v once d has elapsed.
// The completion arrives from the timer goroutine, exercising the
// concurrent submission path of the scheduler. Cancelling the owning
// task before expiry leaves the delivery to be consumed and dropped.
func After(d time.Duration, v any) StartFunc {
	return func(k *Continuation) {
		time.AfterFunc(d, func() {
			k.Resume(v)
		})
	}
}
