// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"code.hybscloud.com/kont"
)

// Async is the effect operation for awaiting an external asynchronous
// operation inside a task protocol. Perform(Async{Start: op}) suspends
// the task until op invokes its continuation; the delivered value is the
// result of the effect.
type Async struct {
	kont.Phantom[kont.Resumed]
	Start StartFunc
}

// DispatchAwait exposes the operation to the scheduler. Custom effect op
// types may implement it to suspend tasks on their own operations.
func (a Async) DispatchAwait() StartFunc {
	return a.Start
}

// awaitDispatcher is the structural interface for awaitable operations.
// Any effect performed inside a task protocol must implement it; the
// scheduler suspends the task and hands the continuation to the
// operation it returns.
type awaitDispatcher interface {
	DispatchAwait() StartFunc
}

// Await performs an external operation as an effect (Cont-world).
func Await(start StartFunc) kont.Eff[kont.Resumed] {
	if start == nil {
		panic("coop: Await(nil): undefined behavior")
	}
	return kont.Perform(Async{Start: start})
}

// AwaitBind awaits an external operation and passes the delivered value
// to f. Fuses Perform(Async{...}) + Bind.
func AwaitBind[B any](start StartFunc, f func(kont.Resumed) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(Await(start), f)
}

// AwaitThen awaits an external operation, discards the delivered value,
// and continues with next. Fuses Perform(Async{...}) + Then.
func AwaitThen[B any](start StartFunc, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(Await(start), next)
}

// exprReturnFrame is pre-allocated to avoid boxing the empty struct into
// kont.Frame on every fused constructor call.
var exprReturnFrame kont.Frame = kont.ReturnFrame{}

// identityResume is the identity resume function for EffectFrame
// construction. Named function produces a static function value,
// consistent with kont convention.
func identityResume(v kont.Erased) kont.Erased { return v }

// ExprAwait performs an external operation as an effect (Expr-world).
func ExprAwait(start StartFunc) kont.Expr[kont.Resumed] {
	if start == nil {
		panic("coop: ExprAwait(nil): undefined behavior")
	}
	return kont.ExprPerform(Async{Start: start})
}

// ExprAwaitThen awaits an external operation and then continues with
// next. Fuses ExprPerform(Async{...}) + ExprThen.
func ExprAwaitThen[B any](start StartFunc, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = Async{Start: start}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func awaitBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(kont.Resumed) kont.Expr[B])
	result := f(current)
	return kont.Erased(result.Value), result.Frame
}

// ExprAwaitBind awaits an external operation and passes the delivered
// value to f. Fuses ExprPerform(Async{...}) + ExprBind.
func ExprAwaitBind[B any](start StartFunc, f func(kont.Resumed) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = awaitBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Async{Start: start}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// Reify converts a Cont-world task protocol to Expr-world.
// The result can be launched with Launch or run with Run.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world task protocol to Cont-world.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}

// Launch launches an Expr-world protocol into s and returns the task
// handle without waiting. The protocol's effects must be awaitable
// operations; reaching any other effect fails the task with a
// PanicError.
func Launch[R any](s *Scope, protocol kont.Expr[R]) *Task {
	return s.adopt(&exprProgram[R]{expr: protocol})
}

// LaunchEff launches a Cont-world protocol into s via the Reify bridge.
func LaunchEff[R any](s *Scope, protocol kont.Eff[R]) *Task {
	return Launch(s, kont.Reify(protocol))
}

// exprProgram drives a kont protocol one effect at a time. The label of
// the owning task counts resolved suspensions, so label monotonicity is
// structural: each step consumes at most one suspension.
type exprProgram[R any] struct {
	expr    kont.Expr[R]
	susp    *kont.Suspension[R]
	started bool
}

func (p *exprProgram[R]) advance(t *Task) Step {
	var result R
	if !p.started {
		p.started = true
		result, p.susp = kont.StepExpr(p.expr)
	} else {
		v, err := t.Resumed()
		if err != nil {
			p.susp.Discard()
			p.susp = nil
			return t.Fail(err)
		}
		result, p.susp = p.susp.Resume(v)
	}
	if p.susp == nil {
		return t.Complete(result)
	}
	op, ok := p.susp.Op().(awaitDispatcher)
	if !ok {
		panic("coop: unhandled effect in task protocol")
	}
	return t.Await(op.DispatchAwait())
}

func (p *exprProgram[R]) abandon() {
	if p.susp != nil {
		p.susp.Discard()
		p.susp = nil
	}
}
