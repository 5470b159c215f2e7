package chat

import (
	"context"
	"errors"
	"sync"
)

// ErrChatNotFound is returned by ChatByID when the destination does not exist
// or cannot be parsed.
var ErrChatNotFound = errors.New("chat not found")

// EventSource is the lifecycle surface of a messaging client.
type EventSource interface {
	// OnReady registers fn to run each time the client finishes logging in.
	OnReady(fn func())
	// OnLoginCode registers fn to receive scannable login codes.
	OnLoginCode(fn func(code string))
}

// Chat is a resolved destination.
type Chat interface {
	ID() string
	Name() string
	SendMessage(ctx context.Context, text string) error
}

// Messenger is a messaging client that runs as a long-lived service.
type Messenger interface {
	EventSource
	// Serve connects and blocks until ctx is done or the connection fails.
	Serve(ctx context.Context) error
	// ChatByID resolves a destination id.
	ChatByID(ctx context.Context, id string) (Chat, error)
	String() string
}

// hooks stores registered callbacks; embedded by the backends.
type hooks struct {
	mu      sync.RWMutex
	onReady []func()
	onCode  []func(string)
}

func (h *hooks) OnReady(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReady = append(h.onReady, fn)
}

func (h *hooks) OnLoginCode(fn func(code string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCode = append(h.onCode, fn)
}

func (h *hooks) emitReady() {
	h.mu.RLock()
	fns := append([]func(){}, h.onReady...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *hooks) emitLoginCode(code string) {
	h.mu.RLock()
	fns := append([]func(string){}, h.onCode...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(code)
	}
}
