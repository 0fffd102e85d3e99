// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"code.hybscloud.com/kont"
)

// Run executes an Expr-world protocol as the single root task of a fresh
// scheduler and scope, drains the scheduler on the calling goroutine,
// and returns the root result or its failure. It is the bridge between
// ordinary blocking code and suspendable tasks: the caller blocks, the
// worker never does.
func Run[R any](protocol kont.Expr[R], opts ...Option) (R, error) {
	d, root := New(opts...)
	t := Launch[R](root, protocol)
	d.RunUntilIdle()
	v, err := t.Result()
	if err != nil {
		var zero R
		return zero, err
	}
	r, _ := v.(R)
	return r, nil
}

// RunEff executes a Cont-world protocol under a blocking builder via the
// Reify bridge.
func RunEff[R any](protocol kont.Eff[R], opts ...Option) (R, error) {
	return Run(Reify(protocol), opts...)
}

// RunFunc executes a state machine task under a blocking builder:
// a fresh scheduler and scope, fn as the root task, drained on the
// calling goroutine. Returns the root task's final value or failure.
//
// Children launched from within fn (through the task's scope) are
// drained before RunFunc returns; their failures are reported by the
// owning scope, not by RunFunc.
func RunFunc(fn StepFunc, opts ...Option) (any, error) {
	d, root := New(opts...)
	t := root.LaunchFunc(fn)
	d.RunUntilIdle()
	return t.Result()
}
