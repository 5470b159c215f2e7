package session

import (
	"sync"
	"sync/atomic"
)

// Readiness is a write-once flag that reports whether the messaging client can
// send. The zero value is not ready; use NewReadiness.
type Readiness struct {
	ready atomic.Bool
	once  sync.Once
	ch    chan struct{}
}

// NewReadiness returns a flag in the not-ready state.
func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

// IsReady reports whether MarkReady has been called.
func (r *Readiness) IsReady() bool { return r.ready.Load() }

// MarkReady sets the flag. It returns true only for the call that performed the
// false->true transition; later calls are no-ops.
func (r *Readiness) MarkReady() bool {
	transitioned := false
	r.once.Do(func() {
		r.ready.Store(true)
		close(r.ch)
		transitioned = true
	})
	return transitioned
}

// Ready returns a channel that is closed once the flag is set.
func (r *Readiness) Ready() <-chan struct{} { return r.ch }
