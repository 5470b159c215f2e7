package session

import (
	"io"
	"log/slog"
	"os"

	"github.com/mdp/qrterminal/v3"

	"github.com/onnwee/relaybot/chat"
	"github.com/onnwee/relaybot/telemetry"
)

// Lifecycle wires a messaging client's login events to the readiness flag.
type Lifecycle struct {
	readiness *Readiness
	qrOut     io.Writer
}

// NewLifecycle returns a lifecycle that renders login codes to stdout.
func NewLifecycle(r *Readiness) *Lifecycle {
	return &Lifecycle{readiness: r, qrOut: os.Stdout}
}

// WithQROutput overrides where login codes are rendered.
func (l *Lifecycle) WithQROutput(w io.Writer) *Lifecycle {
	l.qrOut = w
	return l
}

// Readiness returns the flag this lifecycle drives.
func (l *Lifecycle) Readiness() *Readiness { return l.readiness }

// Bind registers the ready and login-code handlers on src.
func (l *Lifecycle) Bind(src chat.EventSource) {
	src.OnLoginCode(l.handleLoginCode)
	src.OnReady(l.handleReady)
}

func (l *Lifecycle) handleLoginCode(code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, l.qrOut)
	slog.Info("Scan the QR code above to log in.", slog.String("component", "session"))
}

func (l *Lifecycle) handleReady() {
	if l.readiness.MarkReady() {
		telemetry.SetMessengerReady(true)
		slog.Info("messaging client ready; forwarding enabled", slog.String("component", "session"))
		return
	}
	slog.Debug("messaging client ready again", slog.String("component", "session"))
}
