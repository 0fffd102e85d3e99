// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/coop"
)

func TestPoolWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	const tasks, suspensions = 200, 20
	d, root := coop.New(coop.WithWorkers(4))

	var violations atomix.Uint32
	handles := make([]*coop.Task, tasks)
	for i := range handles {
		inFlight := new(atomix.Uint32)
		handles[i] = root.LaunchFunc(func(tk *coop.Task) coop.Step {
			// steps of one task never overlap, even across workers
			if !inFlight.CompareAndSwap(0, 1) {
				violations.Add(1)
			}
			var step coop.Step
			if tk.Label() < suspensions {
				step = tk.Await(coop.Resolve(nil))
			} else {
				step = tk.Complete(int(tk.Label()))
			}
			inFlight.Store(0)
			return step
		})
	}
	d.RunUntilIdle()

	assert.Zero(t, violations.Load())
	for _, tk := range handles {
		v, err := tk.Result()
		require.NoError(t, err)
		assert.Equal(t, suspensions, v)
	}
	assert.Equal(t, uint32(tasks*(suspensions+1)), d.Steps())
}

func TestPoolCancelReturns(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &gate{}
	d, root := coop.New(coop.WithWorkers(4))

	for range 8 {
		root.LaunchFunc(func(tk *coop.Task) coop.Step {
			if tk.Label() == 0 {
				return tk.Await(g.op())
			}
			return tk.Complete(nil)
		})
	}

	done := make(chan struct{})
	go func() {
		d.RunUntilIdle()
		close(done)
	}()
	g.wait(8)
	root.Cancel()
	<-done

	require.ErrorIs(t, root.Join(), coop.ErrCancelled)
	assert.Zero(t, d.SuspendedTasks())
}

func TestPoolFailFast(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := &gate{}
	d, root := coop.New(coop.WithWorkers(2))

	park := func(tk *coop.Task) coop.Step {
		if tk.Label() == 0 {
			return tk.Await(g.op())
		}
		return tk.Complete(nil)
	}
	root.LaunchFunc(park)
	root.LaunchFunc(park)
	bad := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		g.wait(2)
		return tk.Fail(errBoom)
	})

	d.RunUntilIdle()

	require.ErrorIs(t, root.Err(), errBoom)
	assert.Equal(t, bad.Serial(), coop.FailureOf(root.Err()).Serial)
	assert.Zero(t, d.SuspendedTasks())
}
