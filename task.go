// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import "code.hybscloud.com/atomix"

// Status is the lifecycle state of a task.
type Status uint32

const (
	StatusCreated Status = iota
	StatusReady
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusReady:
		return "Ready"
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Label is the integer program counter of a task state machine. It
// counts resolved suspension points: a task starts at label 0 and the
// label advances by one each time a Continuation is invoked, so the
// sequence of executed labels is strictly increasing. Labels are never
// reused across suspension points.
type Label = uint32

// Reserved locals slots for continuation delivery.
const (
	resumedSlot      = "coop.resumed"
	resumedErrorSlot = "coop.resumed.error"
)

// Locals is the per-task variable bag. State machine authors thread
// captured locals through it between labels; slot names starting with
// "coop." are reserved for the runtime.
type Locals map[string]any

// Get returns the value stored under key.
func (l Locals) Get(key string) (any, bool) {
	v, ok := l[key]
	return v, ok
}

// Put stores v under key, replacing any previous value.
func (l Locals) Put(key string, v any) {
	l[key] = v
}

// A Task is a cooperative, stackless execution of a program, owned by
// exactly one Scope. Between suspension points a task's step runs to
// completion without preemption; at most one scheduler worker executes a
// given task's step at a time, in every configuration.
//
// A Task is created by a launch operation on a Scope; there is no way to
// create a detached task.
type Task struct {
	serial Serial
	scope  *Scope
	prog   program

	status atomix.Uint32 // Status
	label  atomix.Uint32 // Label
	cancel atomix.Uint32 // cancellation request flag

	locals Locals

	// pending is the outstanding continuation of a suspended task,
	// kept for diagnostics. Guarded by the scheduler mutex.
	pending *Continuation

	// result and err are written by the worker that settles the task,
	// before the terminal status store. Read them only after observing
	// a terminal status.
	result any
	err    error
}

// Serial returns the unique identifier of t.
func (t *Task) Serial() Serial {
	return t.serial
}

// Status returns the current lifecycle state of t.
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// Label returns the current label of t. Inside a StepFunc it identifies
// the state machine segment to execute.
func (t *Task) Label() Label {
	return Label(t.label.Load())
}

// Locals returns the task-local variable bag. Only the step currently
// executing t may touch it.
func (t *Task) Locals() Locals {
	return t.locals
}

// Scope returns the scope that owns t. Child tasks are launched through
// it, keeping every task inside a structured lifetime.
func (t *Task) Scope() *Scope {
	return t.scope
}

// Cancel requests cancellation of t. A suspended task is finalized
// immediately and its pending continuation becomes a no-op; a ready or
// running task transitions to Cancelled at its next step boundary.
func (t *Task) Cancel() {
	t.scope.sched.cancelTask(t)
}

// Result returns the terminal outcome of t: (value, nil) for Completed,
// the step error for Failed, ErrCancelled for Cancelled. Calling it on a
// non-terminal task returns ErrInvalidTaskState.
func (t *Task) Result() (any, error) {
	switch t.Status() {
	case StatusCompleted:
		return t.result, nil
	case StatusFailed:
		return nil, t.err
	case StatusCancelled:
		return nil, ErrCancelled
	default:
		return nil, ErrInvalidTaskState
	}
}

// Resumed returns the value or error delivered by the continuation that
// readied t. Valid inside a step at any label greater than zero.
func (t *Task) Resumed() (any, error) {
	if err, ok := t.locals[resumedErrorSlot]; ok {
		return nil, err.(error)
	}
	return t.locals[resumedSlot], nil
}

// stepAction discriminates Step results. The zero action is invalid so
// that a zero Step is detectable as a protocol violation.
type stepAction uint8

const (
	_ stepAction = iota
	actComplete
	actFail
	actAwait
)

// Step is the result of one state machine segment. It directs the
// scheduler to complete the task, fail it, or suspend it on an external
// operation. Construct one with Task.Complete, Task.Fail or Task.Await.
type Step struct {
	action stepAction
	value  any
	err    error
	start  StartFunc
}

// Complete returns a Step that ends t with the final value v.
func (t *Task) Complete(v any) Step {
	return Step{action: actComplete, value: v}
}

// Fail returns a Step that ends t with err. The failure propagates to
// the owning scope.
func (t *Task) Fail(err error) Step {
	if err == nil {
		panic("coop: Fail(nil): undefined behavior")
	}
	return Step{action: actFail, err: err}
}

// Await returns a Step that suspends t and hands a fresh Continuation,
// bound to t's next label, to start. The step function must return the
// Step immediately; the worker is never blocked on the operation.
func (t *Task) Await(start StartFunc) Step {
	if start == nil {
		panic("coop: Await(nil): undefined behavior")
	}
	return Step{action: actAwait, start: start}
}

// A StepFunc is a task program authored as an explicit state machine:
// it is invoked once per step with the task as the argument, dispatches
// on t.Label(), and threads captured locals through t.Locals(). The
// first invocation runs at label 0; each Await advances the label by one
// when its continuation is invoked.
type StepFunc func(t *Task) Step

// program is the runnable representation the scheduler drives. advance
// executes user logic until the next suspension point; abandon releases
// any held suspension without resuming it (cancellation path).
type program interface {
	advance(t *Task) Step
	abandon()
}

type machineProgram struct {
	fn StepFunc
}

func (p machineProgram) advance(t *Task) Step { return p.fn(t) }

func (machineProgram) abandon() {}

// runProgram executes one step with panic recovery. A panicking step
// fails the task with a PanicError carrying the captured stack.
func (t *Task) runProgram() (step Step) {
	defer func() {
		if r := recover(); r != nil {
			step = t.Fail(newPanicError(r))
		}
	}()
	return t.prog.advance(t)
}
