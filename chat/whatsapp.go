package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// WhatsAppConfig configures the WhatsApp backend.
type WhatsAppConfig struct {
	// SessionDialect is the whatsmeow store dialect: "sqlite3" or "postgres".
	SessionDialect string
	// ListGroups logs every joined group with its id once the client is ready.
	ListGroups bool
}

// WhatsApp is a Messenger backed by a WhatsApp Web multi-device session.
type WhatsApp struct {
	hooks
	cfg   WhatsAppConfig
	store *sql.DB
	log   *slog.Logger

	mu     sync.RWMutex
	client *whatsmeow.Client
	failed chan error
}

// NewWhatsApp returns a WhatsApp messenger whose session lives in store.
// The store must match cfg.SessionDialect; see OpenSessionStore.
func NewWhatsApp(cfg WhatsAppConfig, store *sql.DB) *WhatsApp {
	return &WhatsApp{
		cfg:   cfg,
		store: store,
		log:   slog.Default().With(slog.String("component", "whatsapp")),
	}
}

func (w *WhatsApp) String() string { return "whatsapp" }

// Serve restores (or pairs) the session, connects, and blocks until ctx is
// done. A logout or pairing failure returns an error so the supervisor can
// start over with a fresh login code.
func (w *WhatsApp) Serve(ctx context.Context) error {
	container := sqlstore.NewWithDB(w.store, w.cfg.SessionDialect, NewSlogLogger(w.log, "store"))
	if err := container.Upgrade(); err != nil {
		return fmt.Errorf("upgrade whatsapp session store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("load whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, NewSlogLogger(w.log, "client"))
	failed := make(chan error, 1)
	w.mu.Lock()
	w.client = client
	w.failed = failed
	w.mu.Unlock()
	client.AddEventHandler(w.handleEvent)
	defer func() {
		client.Disconnect()
		w.mu.Lock()
		w.client = nil
		w.mu.Unlock()
	}()

	if client.Store.ID == nil {
		w.log.Info("no stored whatsapp session; waiting for login code scan")
		qrCh, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open login code channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
		for item := range qrCh {
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				w.emitLoginCode(item.Code)
			case whatsmeow.QRChannelSuccess.Event:
				w.log.Info("whatsapp device paired")
			case whatsmeow.QRChannelEventError:
				return fmt.Errorf("whatsapp pairing failed: %w", item.Error)
			default:
				return fmt.Errorf("whatsapp pairing ended: %s", item.Event)
			}
		}
	} else {
		w.log.Info("restoring whatsapp session", slog.String("jid", client.Store.ID.String()))
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp connect: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-failed:
		return err
	}
}

func (w *WhatsApp) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		w.log.Info("WhatsApp bot is ready!")
		w.emitReady()
		if w.cfg.ListGroups {
			go w.listGroups()
		}
	case *events.Disconnected:
		w.log.Warn("whatsapp connection lost; client will reconnect")
	case *events.LoggedOut:
		w.log.Error("whatsapp session logged out", slog.String("reason", v.Reason.String()))
		w.fail(errors.New("whatsapp session logged out"))
	case *events.StreamReplaced:
		w.log.Error("whatsapp session opened elsewhere")
		w.fail(errors.New("whatsapp stream replaced"))
	}
}

func (w *WhatsApp) fail(err error) {
	w.mu.RLock()
	ch := w.failed
	w.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (w *WhatsApp) listGroups() {
	client := w.currentClient()
	if client == nil {
		return
	}
	groups, err := client.GetJoinedGroups()
	if err != nil {
		w.log.Warn("list joined groups failed", slog.Any("err", err))
		return
	}
	for _, g := range groups {
		w.log.Info("joined group", slog.String("name", g.Name), slog.String("id", g.JID.String()))
	}
}

func (w *WhatsApp) currentClient() *whatsmeow.Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.client
}

// ChatByID resolves a JID such as "120363000000000000@g.us". Groups are checked
// against the server; unknown groups and unparsable ids return ErrChatNotFound.
func (w *WhatsApp) ChatByID(ctx context.Context, id string) (Chat, error) {
	jid, err := ParseDestination(id)
	if err != nil {
		return nil, err
	}
	client := w.currentClient()
	if client == nil {
		return nil, errors.New("whatsapp client not running")
	}
	name := jid.User
	if jid.Server == types.GroupServer {
		info, err := client.GetGroupInfo(jid)
		if err != nil {
			if errors.Is(err, whatsmeow.ErrGroupNotFound) || errors.Is(err, whatsmeow.ErrNotInGroup) {
				return nil, fmt.Errorf("%w: %s: %v", ErrChatNotFound, id, err)
			}
			return nil, fmt.Errorf("get group info: %w", err)
		}
		name = info.Name
	}
	return &whatsAppChat{client: client, jid: jid, name: name}, nil
}

// ParseDestination parses a WhatsApp chat id. Empty ids and ids without a
// server part are reported as ErrChatNotFound.
func ParseDestination(id string) (types.JID, error) {
	if id == "" {
		return types.EmptyJID, fmt.Errorf("%w: empty destination id", ErrChatNotFound)
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("%w: %s: %v", ErrChatNotFound, id, err)
	}
	if jid.Server == "" || jid.User == "" {
		return types.EmptyJID, fmt.Errorf("%w: %s: missing user or server", ErrChatNotFound, id)
	}
	return jid, nil
}

type whatsAppChat struct {
	client *whatsmeow.Client
	jid    types.JID
	name   string
}

func (c *whatsAppChat) ID() string   { return c.jid.String() }
func (c *whatsAppChat) Name() string { return c.name }

func (c *whatsAppChat) SendMessage(ctx context.Context, text string) error {
	_, err := c.client.SendMessage(ctx, c.jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}
