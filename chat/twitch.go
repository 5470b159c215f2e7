package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// TwitchConfig configures the Twitch IRC backend.
type TwitchConfig struct {
	Channel  string
	Username string
	OAuth    string
}

// ircClient is the subset of *twitch.Client the backend drives.
type ircClient interface {
	OnConnect(func())
	OnSelfJoinMessage(func(twitch.UserJoinMessage))
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

// Twitch is a Messenger that posts into a single Twitch channel.
type Twitch struct {
	hooks
	cfg    TwitchConfig
	client ircClient

	mu     sync.RWMutex
	joined map[string]bool
}

// NewTwitch returns a Twitch messenger for cfg.
func NewTwitch(cfg TwitchConfig) *Twitch {
	return newTwitchWithClient(cfg, twitch.NewClient(cfg.Username, cfg.OAuth))
}

func newTwitchWithClient(cfg TwitchConfig, c ircClient) *Twitch {
	t := &Twitch{cfg: cfg, client: c, joined: make(map[string]bool)}
	c.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("component", "twitch"))
		t.emitReady()
	})
	c.OnSelfJoinMessage(func(m twitch.UserJoinMessage) {
		t.mu.Lock()
		t.joined[strings.ToLower(m.Channel)] = true
		t.mu.Unlock()
		slog.Info("joined twitch channel", slog.String("channel", m.Channel), slog.String("component", "twitch"))
	})
	return t
}

func (t *Twitch) String() string { return "twitch" }

// Serve connects to Twitch IRC and blocks until ctx is done.
func (t *Twitch) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = t.client.Disconnect()
		case <-done:
		}
	}()
	defer close(done)

	t.client.Join(t.cfg.Channel)
	err := t.client.Connect()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	return nil
}

// ChatByID resolves a channel the client has joined.
func (t *Twitch) ChatByID(_ context.Context, id string) (Chat, error) {
	ch := strings.ToLower(strings.TrimPrefix(id, "#"))
	t.mu.RLock()
	ok := t.joined[ch]
	t.mu.RUnlock()
	if ch == "" || !ok {
		return nil, fmt.Errorf("%w: twitch channel %q not joined", ErrChatNotFound, id)
	}
	return &twitchChat{client: t.client, channel: ch}, nil
}

type twitchChat struct {
	client  ircClient
	channel string
}

func (c *twitchChat) ID() string   { return c.channel }
func (c *twitchChat) Name() string { return "#" + c.channel }

// SendMessage posts text on one IRC line; newlines become " | ".
func (c *twitchChat) SendMessage(_ context.Context, text string) error {
	c.client.Say(c.channel, FlattenLines(text))
	return nil
}

// FlattenLines joins a multi-line message into a single IRC line.
func FlattenLines(text string) string {
	return strings.ReplaceAll(text, "\n", " | ")
}
