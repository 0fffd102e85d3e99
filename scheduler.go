// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"fmt"
	"slices"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// A Scheduler is the single authority deciding which ready task runs
// next and on which worker. Tasks wait in a FIFO ready queue; suspended
// tasks are tracked in a registry keyed by serial so that cancellation
// can reclaim them and idle detection can account for outstanding
// external completions.
//
// With the default single worker, execution is purely cooperative on the
// goroutine that calls RunUntilIdle. With WithWorkers(n), up to n
// distinct tasks step in parallel; the steps of any one task remain
// strictly sequential.
//
// Submit and continuation delivery are safe for concurrent callers:
// external completions may arrive from arbitrary goroutines.
type Scheduler struct {
	mu        sync.Mutex
	ready     []*Task
	head      int
	suspended map[Serial]*Task
	running   int
	faults    []error

	workers int
	onFault func(error)

	steps     atomix.Uint32
	submitted atomix.Uint32
}

type config struct {
	workers int
	policy  Policy
	onFault func(error)
}

// Option configures a Scheduler and its root Scope.
type Option func(*config)

// WithWorkers sets the worker capacity for RunUntilIdle. A capacity of 1
// (the default) is the purely cooperative single-threaded model; n > 1
// runs steps of distinct tasks on n goroutines concurrently.
// WithWorkers panics if n is not positive.
func WithWorkers(n int) Option {
	if n < 1 {
		panic("coop: workers must be positive")
	}
	return func(c *config) {
		c.workers = n
	}
}

// WithPolicy sets the failure policy of the root Scope.
// It panics if p is not a known Policy value.
func WithPolicy(p Policy) Option {
	switch p {
	case FailFast, Collect:
	default:
		panic("coop: invalid policy")
	}
	return func(c *config) {
		c.policy = p
	}
}

// WithFaultHook registers a hook invoked for every protocol violation
// recorded in the fault log. The hook may run on any goroutine and must
// not block.
func WithFaultHook(fn func(error)) Option {
	return func(c *config) {
		c.onFault = fn
	}
}

// New creates a Scheduler and its root Scope. The root scope is the only
// unparented scope of the scheduler; every task launched anywhere below
// it is owned by some scope, so no detached work can exist.
//
// Callers drive the scheduler with RunUntilIdle, typically via the Run
// family of builders.
func New(opts ...Option) (*Scheduler, *Scope) {
	cfg := config{workers: 1, policy: FailFast}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Scheduler{
		suspended: make(map[Serial]*Task),
		workers:   cfg.workers,
		onFault:   cfg.onFault,
	}
	root := &Scope{sched: d, policy: cfg.policy}
	return d, root
}

// Submit enqueues a freshly created task. It is safe for concurrent use
// and safe to call from within a running step: submission queues, never
// recurses. Submitting a task that is not in the Created state is a
// protocol violation: the task is left untouched, ErrInvalidTaskState is
// returned and recorded in the fault log. A task already Cancelled by a
// concurrent scope cancel is not a violation; Submit returns
// ErrCancelled without a fault.
func (d *Scheduler) Submit(t *Task) error {
	if !t.status.CompareAndSwap(uint32(StatusCreated), uint32(StatusReady)) {
		if t.Status() == StatusCancelled {
			return ErrCancelled
		}
		err := fmt.Errorf("%w: submit of task %d in state %s", ErrInvalidTaskState, t.serial, t.Status())
		d.fault(err)
		return err
	}
	d.submitted.Add(1)
	d.enqueue(t)
	return nil
}

// RunUntilIdle pops ready tasks and executes exactly one step of each,
// FIFO, until no task is ready, none is suspended awaiting an external
// completion, and no step is in flight ... then returns. The boundary
// wait uses adaptive backoff; the calling goroutine is the only thing
// occupied while waiting.
//
// A continuation that is never invoked leaves its task suspended and
// RunUntilIdle waiting; cancel the owning scope to reclaim such tasks.
//
// With worker capacity 1, RunUntilIdle runs entirely on the calling
// goroutine. With capacity n, it spawns n workers and returns when all
// of them have drained.
func (d *Scheduler) RunUntilIdle() {
	if d.workers <= 1 {
		d.runWorker()
		return
	}
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runWorker()
		}()
	}
	wg.Wait()
}

func (d *Scheduler) runWorker() {
	var bo iox.Backoff
	for {
		t := d.pop()
		if t == nil {
			if d.idle() {
				return
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		d.runStep(t)
	}
}

// Steps returns the number of task steps executed so far.
func (d *Scheduler) Steps() uint32 {
	return d.steps.Load()
}

// Submitted returns the number of tasks accepted by Submit.
func (d *Scheduler) Submitted() uint32 {
	return d.submitted.Load()
}

// SuspendedTasks returns the number of tasks currently suspended
// awaiting an external completion.
func (d *Scheduler) SuspendedTasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.suspended)
}

// Faults returns a copy of the fault log: every protocol violation
// observed by this scheduler, in arrival order.
func (d *Scheduler) Faults() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.faults)
}

func (d *Scheduler) fault(err error) {
	d.mu.Lock()
	d.faults = append(d.faults, err)
	hook := d.onFault
	d.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func (d *Scheduler) enqueue(t *Task) {
	d.mu.Lock()
	d.ready = append(d.ready, t)
	d.mu.Unlock()
}

func (d *Scheduler) pop() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.head == len(d.ready) {
		d.ready = d.ready[:0]
		d.head = 0
		return nil
	}
	t := d.ready[d.head]
	d.ready[d.head] = nil
	d.head++
	d.running++
	return t
}

func (d *Scheduler) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head == len(d.ready) && len(d.suspended) == 0 && d.running == 0
}

func (d *Scheduler) stepDone() {
	d.mu.Lock()
	d.running--
	d.mu.Unlock()
}

// runStep executes exactly one step of t: cancellation check at the
// boundary, then user logic until completion, failure, or the single
// suspension point of the step.
func (d *Scheduler) runStep(t *Task) {
	defer d.stepDone()

	if t.cancel.Load() != 0 {
		if t.status.CompareAndSwap(uint32(StatusReady), uint32(StatusCancelled)) {
			t.prog.abandon()
			d.settle(t, StatusCancelled, nil, ErrCancelled)
		}
		return
	}
	if !t.status.CompareAndSwap(uint32(StatusReady), uint32(StatusRunning)) {
		d.fault(fmt.Errorf("%w: step of task %d in state %s", ErrInvalidTaskState, t.serial, t.Status()))
		return
	}
	d.steps.Add(1)

	step := t.runProgram()
	switch step.action {
	case actComplete:
		d.settle(t, StatusCompleted, step.value, nil)
	case actFail:
		d.settle(t, StatusFailed, nil, step.err)
	case actAwait:
		k := &Continuation{task: t, label: t.Label() + 1}
		d.mu.Lock()
		t.pending = k
		d.suspended[t.serial] = t
		t.status.Store(uint32(StatusSuspended))
		d.mu.Unlock()
		d.startOp(t, k, step.start)
	default:
		d.fault(fmt.Errorf("%w: empty step result from task %d", ErrInvalidTaskState, t.serial))
		d.settle(t, StatusFailed, nil, ErrInvalidTaskState)
	}
}

// startOp invokes the external operation after the suspension is
// registered, so a synchronous completion readies the task normally.
func (d *Scheduler) startOp(t *Task, k *Continuation, start StartFunc) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		pe := newPanicError(r)
		if !k.state.CompareAndSwap(0, 1) {
			// The operation resumed the task before panicking; the
			// task moves on, the panic only goes to the fault log.
			d.fault(pe)
			return
		}
		d.mu.Lock()
		delete(d.suspended, t.serial)
		t.pending = nil
		settled := t.status.CompareAndSwap(uint32(StatusSuspended), uint32(StatusRunning))
		d.mu.Unlock()
		if settled {
			t.prog.abandon()
			d.settle(t, StatusFailed, nil, pe)
		}
	}()
	start(k)
}

// resume transitions a suspended task back to Ready with the delivered
// result, re-enqueuing it FIFO. Deliveries for tasks no longer in the
// suspended registry (cancelled, or reclaimed after an operation panic)
// are dropped.
func (d *Scheduler) resume(t *Task, label Label, v any, err error) {
	d.mu.Lock()
	if _, ok := d.suspended[t.serial]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.suspended, t.serial)
	t.pending = nil
	t.locals[resumedSlot] = v
	if err != nil {
		t.locals[resumedErrorSlot] = err
	} else {
		delete(t.locals, resumedErrorSlot)
	}
	t.label.Store(uint32(label))
	t.status.Store(uint32(StatusReady))
	d.ready = append(d.ready, t)
	d.mu.Unlock()
}

// cancelTask requests cancellation of t. Suspended tasks are finalized
// immediately: the suspension is abandoned and any late completion of
// the pending continuation becomes a no-op. Created tasks are finalized
// before their first step. Ready and running tasks observe the flag at
// their next step boundary.
func (d *Scheduler) cancelTask(t *Task) {
	t.cancel.Store(1)
	d.mu.Lock()
	if _, ok := d.suspended[t.serial]; ok {
		delete(d.suspended, t.serial)
		t.pending = nil
		d.mu.Unlock()
		t.prog.abandon()
		d.settle(t, StatusCancelled, nil, ErrCancelled)
		return
	}
	d.mu.Unlock()
	if t.status.CompareAndSwap(uint32(StatusCreated), uint32(StatusCancelled)) {
		t.err = ErrCancelled
		t.scope.childDone(t, StatusCancelled, ErrCancelled)
	}
}

// settle records the terminal outcome of t and reports it to the owning
// scope. The terminal transitions are uncontended: the settling worker
// is the only writer at this point.
func (d *Scheduler) settle(t *Task, to Status, v any, err error) {
	t.result = v
	t.err = err
	t.status.Store(uint32(to))
	t.scope.childDone(t, to, err)
}
