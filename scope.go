// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"errors"
	"slices"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Policy determines how a Scope reacts to child task failures.
type Policy int

const (
	// FailFast cancels all sibling tasks and child scopes when the
	// first failure occurs. Join returns that first failure.
	FailFast Policy = iota

	// Collect lets siblings run to completion and aggregates every
	// failure. Join returns them joined via errors.Join.
	Collect
)

// A Scope is a structured lifetime boundary: it owns a set of child
// tasks and child scopes, propagates cancellation to them transitively,
// and is complete only when every transitively owned task has reached a
// terminal status. Scopes form a tree rooted at the scope returned by
// New; a scope never outlives its parent.
//
// Every launch operation takes a scope: the API has no way to create a
// task without an owner.
type Scope struct {
	sched  *Scheduler
	parent *Scope
	policy Policy

	mu       sync.Mutex
	children []*Task
	scopes   []*Scope
	failure  error   // first failure under FailFast
	errs     []error // failures under Collect

	active    atomix.Uint32 // non-terminal children of this scope
	launched  atomix.Uint32
	cancelled atomix.Uint32
}

// Child creates a nested scope with the given policy. Cancelling the
// parent cancels the child; a FailFast child that fails propagates the
// failure to the parent as if one of the parent's own tasks failed.
func (s *Scope) Child(policy Policy) *Scope {
	switch policy {
	case FailFast, Collect:
	default:
		panic("coop: invalid policy")
	}
	c := &Scope{sched: s.sched, parent: s, policy: policy}
	s.mu.Lock()
	if s.cancelled.Load() != 0 {
		c.cancelled.Store(1)
	}
	s.scopes = append(s.scopes, c)
	s.mu.Unlock()
	return c
}

// LaunchFunc launches a state machine task into s and returns its handle
// without waiting. Failures surface through the scope, not the call
// site. Launching into a cancelled scope yields an already-Cancelled
// task that never runs.
func (s *Scope) LaunchFunc(fn StepFunc) *Task {
	if fn == nil {
		panic("coop: LaunchFunc(nil): undefined behavior")
	}
	return s.adopt(machineProgram{fn: fn})
}

// adopt creates a task owned by s, registers it, and submits it.
func (s *Scope) adopt(p program) *Task {
	t := &Task{serial: nextSerial(), scope: s, prog: p, locals: make(Locals)}
	s.mu.Lock()
	if s.cancelled.Load() != 0 {
		s.mu.Unlock()
		t.cancel.Store(1)
		t.err = ErrCancelled
		t.status.Store(uint32(StatusCancelled))
		return t
	}
	s.children = append(s.children, t)
	// Counted before the lock drops: a Cancel that settles t right after
	// unlock decrements against an already-visible increment.
	s.active.Add(1)
	s.launched.Add(1)
	s.mu.Unlock()
	s.sched.Submit(t)
	return t
}

// Cancel marks s and all descendant scopes and tasks as cancelled.
// Suspended descendants are finalized immediately and their pending
// external completions become no-ops; ready and running descendants
// transition to Cancelled at their next step boundary instead of
// executing further logic. Cancel is idempotent.
func (s *Scope) Cancel() {
	if !s.cancelled.CompareAndSwap(0, 1) {
		return
	}
	s.mu.Lock()
	children := slices.Clone(s.children)
	scopes := slices.Clone(s.scopes)
	s.mu.Unlock()
	for _, c := range scopes {
		c.Cancel()
	}
	for _, t := range children {
		s.sched.cancelTask(t)
	}
}

// Join blocks until every transitively owned task is terminal, then
// returns the aggregate outcome per the scope policy. It waits with
// adaptive backoff and must not be called from a task step on a
// single-worker scheduler ... nothing would be left to drive the work.
//
// With a blocking builder the scheduler is already drained when Join is
// reached, so it returns immediately.
func (s *Scope) Join() error {
	var bo iox.Backoff
	for !s.settled() {
		bo.Wait()
	}
	return s.Err()
}

func (s *Scope) settled() bool {
	if s.active.Load() != 0 {
		return false
	}
	s.mu.Lock()
	scopes := slices.Clone(s.scopes)
	s.mu.Unlock()
	for _, c := range scopes {
		if !c.settled() {
			return false
		}
	}
	return true
}

// Err reports the scope outcome so far without waiting: under FailFast
// the first failure, under Collect every failure joined; ErrCancelled if
// the scope was cancelled with no recorded failure; nil otherwise.
func (s *Scope) Err() error {
	s.mu.Lock()
	var errs []error
	switch s.policy {
	case FailFast:
		if s.failure != nil {
			f := s.failure
			s.mu.Unlock()
			return f
		}
	case Collect:
		errs = append(errs, s.errs...)
	}
	scopes := slices.Clone(s.scopes)
	s.mu.Unlock()

	for _, c := range scopes {
		err := c.Err()
		if err == nil || IsCancelled(err) {
			continue
		}
		if s.policy == FailFast {
			return err
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if s.cancelled.Load() != 0 {
		return ErrCancelled
	}
	return nil
}

// Active returns the number of children of s (this scope only, not
// descendants) that have not reached a terminal status.
func (s *Scope) Active() uint32 {
	return s.active.Load()
}

// Launched returns the total number of tasks launched into s, including
// completed ones.
func (s *Scope) Launched() uint32 {
	return s.launched.Load()
}

// Cancelled reports whether Cancel has been called on s or an ancestor.
func (s *Scope) Cancelled() bool {
	return s.cancelled.Load() != 0
}

// childDone records a terminal child. Failures trigger the policy:
// FailFast cancels the siblings on the first failure and propagates
// upward; Collect accumulates.
func (s *Scope) childDone(t *Task, to Status, err error) {
	s.active.Add(^uint32(0))
	if to != StatusFailed {
		return
	}
	s.recordFailure(&FailureError{Serial: t.serial, Err: err})
}

func (s *Scope) recordFailure(fe *FailureError) {
	s.mu.Lock()
	switch s.policy {
	case FailFast:
		first := s.failure == nil
		if first {
			s.failure = fe
		}
		parent := s.parent
		s.mu.Unlock()
		if first {
			s.Cancel()
			// A Collect parent reports this scope's failure through the
			// Err recursion; pushing it into errs would count it twice.
			if parent != nil && parent.policy == FailFast {
				parent.recordFailure(fe)
			}
		}
	case Collect:
		s.errs = append(s.errs, fe)
		s.mu.Unlock()
	}
}
