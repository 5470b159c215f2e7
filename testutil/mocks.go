package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/onnwee/relaybot/chat"
)

// FakeChat records every message sent to it.
type FakeChat struct {
	ChatID  string
	SendErr error

	mu   sync.Mutex
	sent []string
}

func (c *FakeChat) ID() string   { return c.ChatID }
func (c *FakeChat) Name() string { return "fake " + c.ChatID }

func (c *FakeChat) SendMessage(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.SendErr
}

// Sent returns a copy of the messages sent so far.
func (c *FakeChat) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// FakeMessenger is an in-memory chat.Messenger. Tests drive its lifecycle
// with EmitReady and EmitLoginCode.
type FakeMessenger struct {
	mu      sync.Mutex
	chats   map[string]*FakeChat
	onReady []func()
	onCode  []func(string)
}

var _ chat.Messenger = (*FakeMessenger)(nil)

// NewFakeMessenger returns a messenger that knows the given chats.
func NewFakeMessenger(chats ...*FakeChat) *FakeMessenger {
	m := &FakeMessenger{chats: make(map[string]*FakeChat)}
	for _, c := range chats {
		m.chats[c.ChatID] = c
	}
	return m
}

// AddChat makes c resolvable from now on.
func (m *FakeMessenger) AddChat(c *FakeChat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ChatID] = c
}

func (m *FakeMessenger) OnReady(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = append(m.onReady, fn)
}

func (m *FakeMessenger) OnLoginCode(fn func(code string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCode = append(m.onCode, fn)
}

// EmitReady fires the registered ready callbacks.
func (m *FakeMessenger) EmitReady() {
	m.mu.Lock()
	fns := append([]func(){}, m.onReady...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// EmitLoginCode fires the registered login-code callbacks.
func (m *FakeMessenger) EmitLoginCode(code string) {
	m.mu.Lock()
	fns := append([]func(string){}, m.onCode...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(code)
	}
}

func (m *FakeMessenger) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *FakeMessenger) ChatByID(_ context.Context, id string) (chat.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chat.ErrChatNotFound, id)
	}
	return c, nil
}

func (m *FakeMessenger) String() string { return "fake" }
