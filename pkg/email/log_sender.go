package email

import (
	"context"
	"log/slog"
)

// LogSender is a Sender for development and tests: messages are written
// to the log instead of a provider.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a log-backed Sender. A nil logger falls back to
// slog.Default().
func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, params SendParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email sent",
		slog.String("to", params.To),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag))
	return nil
}
