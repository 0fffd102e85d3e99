// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop_test

import (
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/coop"
)

func TestTaskMachineTwoSuspensions(t *testing.T) {
	d, root := coop.New()

	var labels []coop.Label
	tk := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		labels = append(labels, tk.Label())
		switch tk.Label() {
		case 0:
			return tk.Await(coop.After(time.Millisecond, 10))
		case 1:
			v, _ := tk.Resumed()
			tk.Locals().Put("acc", v)
			return tk.Await(coop.After(time.Millisecond, 32))
		default:
			acc, _ := tk.Locals().Get("acc")
			v, _ := tk.Resumed()
			return tk.Complete(acc.(int) + v.(int))
		}
	})
	d.RunUntilIdle()

	v, err := tk.Result()
	if err != nil || v != 42 {
		t.Fatalf("result got (%v, %v), want (42, nil)", v, err)
	}
	if len(labels) != 3 || labels[0] != 0 || labels[1] != 1 || labels[2] != 2 {
		t.Fatalf("labels got %v, want [0 1 2]", labels)
	}
	if got := tk.Status(); got != coop.StatusCompleted {
		t.Fatalf("status got %v, want %v", got, coop.StatusCompleted)
	}
}

func TestTaskStatusString(t *testing.T) {
	for _, tc := range []struct {
		s    coop.Status
		want string
	}{
		{coop.StatusCreated, "Created"},
		{coop.StatusReady, "Ready"},
		{coop.StatusRunning, "Running"},
		{coop.StatusSuspended, "Suspended"},
		{coop.StatusCompleted, "Completed"},
		{coop.StatusFailed, "Failed"},
		{coop.StatusCancelled, "Cancelled"},
	} {
		if got := tc.s.String(); got != tc.want {
			t.Fatalf("Status(%d).String() got %q, want %q", tc.s, got, tc.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := map[coop.Status]bool{
		coop.StatusCompleted: true,
		coop.StatusFailed:    true,
		coop.StatusCancelled: true,
	}
	for s := coop.StatusCreated; s <= coop.StatusCancelled; s++ {
		if got := s.Terminal(); got != terminal[s] {
			t.Fatalf("%v.Terminal() got %v, want %v", s, got, terminal[s])
		}
	}
}

func TestTaskResultBeforeTerminal(t *testing.T) {
	g := &gate{}
	d, root := coop.New()

	tk := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		if tk.Label() == 0 {
			return tk.Await(g.op())
		}
		return tk.Complete(nil)
	})
	if _, err := tk.Result(); !errors.Is(err, coop.ErrInvalidTaskState) {
		t.Fatalf("result before terminal got %v, want ErrInvalidTaskState", err)
	}

	go func() {
		ks := g.wait(1)
		ks[0].Resume(nil)
	}()
	d.RunUntilIdle()
	if _, err := tk.Result(); err != nil {
		t.Fatalf("result after terminal got %v, want nil", err)
	}
}

func TestTaskSubmitTwice(t *testing.T) {
	var faults []error
	d, root := coop.New(coop.WithFaultHook(func(err error) {
		faults = append(faults, err)
	}))

	tk := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		return tk.Complete(nil)
	})
	if err := d.Submit(tk); !errors.Is(err, coop.ErrInvalidTaskState) {
		t.Fatalf("resubmit got %v, want ErrInvalidTaskState", err)
	}
	if len(faults) != 1 {
		t.Fatalf("fault count got %d, want 1", len(faults))
	}
	d.RunUntilIdle()

	if got := d.Submitted(); got != 1 {
		t.Fatalf("submitted got %d, want 1", got)
	}
	if got := d.Steps(); got != 1 {
		t.Fatalf("steps got %d, want 1", got)
	}
}

func TestTaskStepPanic(t *testing.T) {
	d, root := coop.New(coop.WithPolicy(coop.Collect))

	tk := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		panic("kaboom")
	})
	d.RunUntilIdle()

	_, err := tk.Result()
	var pe *coop.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("result error got %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" {
		t.Fatalf("panic value got %v, want kaboom", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Fatal("panic stack empty")
	}
}

func TestTaskFailNilPanics(t *testing.T) {
	d, root := coop.New(coop.WithPolicy(coop.Collect))

	tk := root.LaunchFunc(func(tk *coop.Task) coop.Step {
		return tk.Fail(nil)
	})
	d.RunUntilIdle()

	// Fail(nil) panics inside the step and surfaces as a PanicError.
	_, err := tk.Result()
	var pe *coop.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("result error got %v, want *PanicError", err)
	}
}
