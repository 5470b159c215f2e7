// Package forward turns a qualifying row into one chat message.
//
// Forward never returns an error: every failure is logged with its Kind,
// counted, and reported back only as an Outcome for callers that care.
package forward

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/relaybot/chat"
	"github.com/onnwee/relaybot/telemetry"
)

// ReadinessChecker reports whether the messaging client can send.
type ReadinessChecker interface {
	IsReady() bool
}

// ChatResolver resolves a destination id to a chat.
type ChatResolver interface {
	ChatByID(ctx context.Context, id string) (chat.Chat, error)
}

// Outcome is the result of one Forward call.
type Outcome struct {
	Kind Kind
	Body string
	Err  error
}

// Sent reports whether the message was delivered to the transport.
func (o Outcome) Sent() bool { return o.Kind == KindNone }

// Forwarder sends formatted messages to one destination.
type Forwarder struct {
	chats       ChatResolver
	ready       ReadinessChecker
	destination string
}

// New returns a Forwarder that sends to destination once ready reports true.
func New(chats ChatResolver, ready ReadinessChecker, destination string) *Forwarder {
	return &Forwarder{chats: chats, ready: ready, destination: destination}
}

// Destination returns the configured destination id.
func (f *Forwarder) Destination() string { return f.destination }

// FormatMessage builds the two-line message body.
func FormatMessage(name, url string) string {
	return "📝 *" + name + "*\n🔗 " + url
}

// Forward makes at most one send attempt for (name, url). Nothing is buffered:
// an event that arrives before readiness is lost.
func (f *Forwarder) Forward(ctx context.Context, name, url string) Outcome {
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "forwarder"),
		slog.String("name", name),
		slog.String("url", url),
	)

	if !f.ready.IsReady() {
		log.Info("Client not ready yet, cannot send message.", slog.String("kind", KindNotReady.String()))
		telemetry.IncDropped(KindNotReady.String())
		return Outcome{Kind: KindNotReady}
	}

	ctx, span := telemetry.StartSpan(ctx, "forwarder", "forward",
		attribute.String("relaybot.destination", f.destination))
	defer span.End()

	body := FormatMessage(name, url)

	c, err := f.chats.ChatByID(ctx, f.destination)
	if err != nil {
		kind, msg := KindSendFailed, "Error sending message"
		if errors.Is(err, chat.ErrChatNotFound) {
			kind, msg = KindDestinationNotFound, "Chat not found! Check group ID."
		}
		log.Error(msg,
			slog.String("kind", kind.String()),
			slog.String("destination", f.destination),
			slog.Any("err", err))
		telemetry.IncDropped(kind.String())
		telemetry.RecordError(span, err)
		return Outcome{Kind: kind, Body: body, Err: err}
	}

	var sendErr error
	telemetry.TimeFunc(telemetry.SendDuration, func() {
		sendErr = c.SendMessage(ctx, body)
	})
	if sendErr != nil {
		log.Error("Error sending message",
			slog.String("kind", KindSendFailed.String()),
			slog.String("destination", f.destination),
			slog.Any("err", sendErr))
		telemetry.IncDropped(KindSendFailed.String())
		telemetry.RecordError(span, sendErr)
		return Outcome{Kind: KindSendFailed, Body: body, Err: sendErr}
	}

	log.Info("Message sent to group",
		slog.String("destination", c.ID()),
		slog.String("chat_name", c.Name()),
		slog.String("message", body))
	telemetry.IncMessagesSent()
	telemetry.SetSpanSuccess(span)
	return Outcome{Kind: KindNone, Body: body}
}
