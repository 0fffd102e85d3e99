// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop_test

import (
	"errors"
	"sync"
	"time"

	"code.hybscloud.com/coop"
)

var errBoom = errors.New("boom")

// gate is an external operation driver that collects continuations
// instead of completing them, so tests control completion order and
// timing exactly.
type gate struct {
	mu sync.Mutex
	ks []*coop.Continuation
}

// op returns an awaitable operation that parks its continuation in g.
func (g *gate) op() coop.StartFunc {
	return func(k *coop.Continuation) {
		g.mu.Lock()
		g.ks = append(g.ks, k)
		g.mu.Unlock()
	}
}

func (g *gate) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ks)
}

// wait polls until at least n continuations are parked, then removes
// and returns them in arrival order.
func (g *gate) wait(n int) []*coop.Continuation {
	for {
		g.mu.Lock()
		if len(g.ks) >= n {
			ks := g.ks
			g.ks = nil
			g.mu.Unlock()
			return ks
		}
		g.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

// release resumes every parked continuation with v and returns how many
// were released.
func (g *gate) release(v any) int {
	g.mu.Lock()
	ks := g.ks
	g.ks = nil
	g.mu.Unlock()
	for _, k := range ks {
		k.Resume(v)
	}
	return len(ks)
}
