// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop_test

import (
	"testing"

	"code.hybscloud.com/coop"
	"code.hybscloud.com/kont"
)

// BenchmarkRunResolve measures a single-suspension blocking run.
func BenchmarkRunResolve(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		coop.Run(coop.ExprAwait(coop.Resolve(42)))
	}
}

// BenchmarkRunFuncResolve measures the machine-world equivalent.
func BenchmarkRunFuncResolve(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		coop.RunFunc(func(tk *coop.Task) coop.Step {
			if tk.Label() == 0 {
				return tk.Await(coop.Resolve(42))
			}
			v, _ := tk.Resumed()
			return tk.Complete(v)
		})
	}
}

// BenchmarkExprLoopSuspensions measures 100 sequential suspensions
// through the fused loop combinator.
func BenchmarkExprLoopSuspensions(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		coop.Run(coop.ExprLoop(0, func(n int) kont.Expr[kont.Either[int, int]] {
			if n >= 100 {
				return kont.ExprReturn(kont.Right[int, int](n))
			}
			return coop.ExprAwaitBind(coop.Resolve(n+1), func(v kont.Resumed) kont.Expr[kont.Either[int, int]] {
				return kont.ExprReturn(kont.Left[int, int](v.(int)))
			})
		}))
	}
}

// BenchmarkLaunchJoin measures launching and joining 100 trivial tasks.
func BenchmarkLaunchJoin(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		d, root := coop.New()
		for range 100 {
			root.LaunchFunc(func(tk *coop.Task) coop.Step {
				return tk.Complete(nil)
			})
		}
		d.RunUntilIdle()
	}
}

// BenchmarkMailboxTransfer measures a full awaitable put/take pair.
func BenchmarkMailboxTransfer(b *testing.B) {
	skipRace(b)
	m := coop.NewMailbox[int](1)
	b.ReportAllocs()
	for b.Loop() {
		d, root := coop.New()
		root.LaunchFunc(func(tk *coop.Task) coop.Step {
			if tk.Label() == 0 {
				return tk.Await(m.PutOp(1))
			}
			return tk.Complete(nil)
		})
		root.LaunchFunc(func(tk *coop.Task) coop.Step {
			if tk.Label() == 0 {
				return tk.Await(m.TakeOp())
			}
			return tk.Complete(nil)
		})
		d.RunUntilIdle()
	}
}
