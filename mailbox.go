// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import (
	"sync"

	"code.hybscloud.com/lfq"
)

// defaultMailboxCapacity bounds the ring when NewMailbox is given a
// non-positive capacity. 4 keeps the ring buffer within a single cache
// line while amortizing producer-side cached-index refresh cost.
const defaultMailboxCapacity = 4

// A Mailbox is a bounded transfer cell between exactly one producer task
// and one consumer task. Storage is a lock-free SPSC ring; the mutex
// only serializes parked-continuation handoff, where under the SPSC
// contract contention is nil.
//
// The non-blocking surface (TryPut, TryTake) returns iox.ErrWouldBlock
// at the capacity boundary. The awaitable surface (PutOp, TakeOp) parks
// the blocked side's continuation instead, so a task suspends rather
// than polls: a put into a full mailbox resumes when the consumer takes,
// a take from an empty mailbox resumes when the producer puts.
//
// A Mailbox may itself be sent through another Mailbox, delegating one
// end of a transfer chain to a different task.
type Mailbox[T any] struct {
	q    lfq.SPSC[any]
	mu   sync.Mutex
	slot any

	putWait  *parkedPut
	takeWait *Continuation
}

type parkedPut struct {
	k *Continuation
	v any
}

// NewMailbox creates a mailbox with the given ring capacity.
// Non-positive capacities fall back to the default.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity <= 0 {
		capacity = defaultMailboxCapacity
	}
	m := &Mailbox[T]{}
	m.q.Init(capacity)
	return m
}

// TryPut transfers v without blocking. Returns iox.ErrWouldBlock when
// the ring is full and no consumer is parked.
func (m *Mailbox[T]) TryPut(v T) error {
	m.mu.Lock()
	if k := m.takeWait; k != nil {
		m.takeWait = nil
		m.mu.Unlock()
		k.Resume(v)
		return nil
	}
	m.slot = v
	err := m.q.Enqueue(&m.slot)
	m.mu.Unlock()
	return err
}

// TryTake removes the oldest value without blocking. Returns
// iox.ErrWouldBlock when the mailbox is empty.
func (m *Mailbox[T]) TryTake() (T, error) {
	m.mu.Lock()
	v, err := m.q.Dequeue()
	if err == nil {
		pw := m.putWait
		if pw != nil {
			m.putWait = nil
			m.slot = pw.v
			m.q.Enqueue(&m.slot)
		}
		m.mu.Unlock()
		if pw != nil {
			pw.k.Resume(nil)
		}
		return v.(T), nil
	}
	if pw := m.putWait; pw != nil {
		m.putWait = nil
		m.mu.Unlock()
		pw.k.Resume(nil)
		return pw.v.(T), nil
	}
	m.mu.Unlock()
	var zero T
	return zero, err
}

// PutOp returns an awaitable operation that transfers v, resuming the
// producer task once the value is accepted.
func (m *Mailbox[T]) PutOp(v T) StartFunc {
	return func(k *Continuation) {
		m.mu.Lock()
		if c := m.takeWait; c != nil {
			m.takeWait = nil
			m.mu.Unlock()
			c.Resume(v)
			k.Resume(nil)
			return
		}
		m.slot = v
		if err := m.q.Enqueue(&m.slot); err != nil {
			m.putWait = &parkedPut{k: k, v: v}
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		k.Resume(nil)
	}
}

// TakeOp returns an awaitable operation that resumes the consumer task
// with the oldest value, FIFO.
func (m *Mailbox[T]) TakeOp() StartFunc {
	return func(k *Continuation) {
		m.mu.Lock()
		v, err := m.q.Dequeue()
		if err == nil {
			pw := m.putWait
			if pw != nil {
				m.putWait = nil
				m.slot = pw.v
				m.q.Enqueue(&m.slot)
			}
			m.mu.Unlock()
			if pw != nil {
				pw.k.Resume(nil)
			}
			k.Resume(v)
			return
		}
		if pw := m.putWait; pw != nil {
			m.putWait = nil
			m.mu.Unlock()
			pw.k.Resume(nil)
			k.Resume(pw.v)
			return
		}
		m.takeWait = k
		m.mu.Unlock()
	}
}
