// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"fmt"

	"code.hybscloud.com/atomix"
)

// A Continuation is the one-shot capability handed to an external
// asynchronous operation when a task suspends. The operation must invoke
// exactly one of Resume or ResumeError, exactly once, eventually, on any
// goroutine of its choosing.
//
// Invoking it re-enqueues the owning task with the delivered value stored
// in the task's locals bag under the reserved resumed slot. A second
// invocation returns ErrDoubleResume, is recorded in the scheduler fault
// log, and never re-executes the task. Invoking it zero times leaves the
// task suspended; cancel the owning scope to reclaim such tasks.
//
// A Continuation is valid for a single suspension point and is never
// reused across suspension points.
type Continuation struct {
	task  *Task
	label Label
	state atomix.Uint32 // 0 armed, 1 consumed
}

// Resume delivers a successful result and readies the owning task.
// After cancellation of the owning task, the delivery is consumed and
// dropped: late completions are ignored by contract.
func (k *Continuation) Resume(v any) error {
	return k.deliver(v, nil)
}

// ResumeError delivers a failure. The owning task fails with err at its
// next step. Late deliveries after cancellation are dropped.
func (k *Continuation) ResumeError(err error) error {
	if err == nil {
		panic("coop: ResumeError(nil): undefined behavior")
	}
	return k.deliver(nil, err)
}

// Cancelled reports whether the owning task has been cancelled.
// External collaborators that support cancellation may poll it to stop
// early; the runtime only guarantees that late completions for cancelled
// tasks are ignored.
func (k *Continuation) Cancelled() bool {
	return k.task.cancel.Load() != 0
}

// Label returns the label the owning task resumes at when k is invoked.
func (k *Continuation) Label() Label {
	return k.label
}

func (k *Continuation) deliver(v any, err error) error {
	if !k.state.CompareAndSwap(0, 1) {
		t := k.task
		fault := fmt.Errorf("%w: task %d, label %d", ErrDoubleResume, t.serial, k.label)
		t.scope.sched.fault(fault)
		return ErrDoubleResume
	}
	k.task.scope.sched.resume(k.task, k.label, v, err)
	return nil
}
