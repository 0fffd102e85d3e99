// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coop provides cooperative, suspendable tasks with explicit
// continuations on [code.hybscloud.com/kont], without compiler support.
//
// A task runs step by step; at a suspension point it hands a one-shot
// [Continuation] to an external asynchronous operation and yields its
// worker without blocking it. The operation completes by invoking the
// continuation, which re-enqueues the task. Every task is owned by a
// [Scope] that bounds its lifetime.
//
// # Architecture
//
//   - Scheduling: FIFO ready queue drained by [Scheduler.RunUntilIdle] on a single
//     cooperative worker, or on a fixed pool via [WithWorkers]; steps of one task are
//     never concurrent with each other.
//   - Continuations: affine resumption capabilities; a second invocation yields
//     [ErrDoubleResume] in the scheduler fault log. Late completions for cancelled
//     tasks are dropped.
//   - Structured lifetime: [Scope] owns tasks and child scopes, cancels transitively,
//     and joins only when every descendant task is terminal. No API creates an
//     unowned task.
//   - Failure: [FailFast] cancels siblings on the first failure; [Collect] aggregates
//     every failure. Child failures are attributed via [FailureError].
//
// # API Topologies
//
//   - Machine world: tasks authored as explicit state machines ([StepFunc]) that
//     dispatch on [Task.Label] and thread locals through [Task.Locals]; steps end
//     with [Task.Complete], [Task.Fail] or [Task.Await].
//   - Protocol world: tasks authored as kont computations whose effects are awaitable
//     operations. Cont-world: [Await], [AwaitBind], [AwaitThen], [Loop]. Expr-world:
//     [ExprAwait], [ExprAwaitBind], [ExprAwaitThen], [ExprLoop]. Bridge via [Reify]
//     and [Reflect].
//   - Operations: [Resolve], [Reject], [After], and the [Mailbox] transfer ops; any
//     effect op type implementing DispatchAwait suspends a task the same way.
//
// # Integration
//
//   - Blocking: [Run], [RunEff] and [RunFunc] bridge ordinary code into task
//     execution; they return when the root task and everything it launched are done,
//     waiting at external boundaries with adaptive backoff.
//   - Fire-and-forget: [Launch], [LaunchEff] and [Scope.LaunchFunc] return a [Task]
//     handle immediately; failures surface through the owning scope.
//   - Transfer: [Mailbox] moves values between two tasks over a bounded lock-free
//     SPSC ring via [code.hybscloud.com/lfq], returning
//     [code.hybscloud.com/iox.ErrWouldBlock] on its non-blocking surface.
//
// # Example
//
//	result, err := coop.Run(coop.ExprAwaitBind(
//		coop.After(time.Millisecond, 21),
//		func(v kont.Resumed) kont.Expr[int] {
//			return kont.ExprReturn(v.(int) * 2)
//		},
//	))
//	// result == 42
package coop
