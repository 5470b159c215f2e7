package chat

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger adapts slog to the logger interface whatsmeow expects.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a whatsmeow logger writing through l, tagged with module.
func NewSlogLogger(l *slog.Logger, module string) waLog.Logger {
	return &slogLogger{l: l.With(slog.String("module", module))}
}

func (s *slogLogger) Errorf(msg string, args ...interface{}) { s.l.Error(fmt.Sprintf(msg, args...)) }
func (s *slogLogger) Warnf(msg string, args ...interface{})  { s.l.Warn(fmt.Sprintf(msg, args...)) }
func (s *slogLogger) Infof(msg string, args ...interface{})  { s.l.Info(fmt.Sprintf(msg, args...)) }
func (s *slogLogger) Debugf(msg string, args ...interface{}) { s.l.Debug(fmt.Sprintf(msg, args...)) }

func (s *slogLogger) Sub(module string) waLog.Logger {
	return &slogLogger{l: s.l.With(slog.String("sub", module))}
}
