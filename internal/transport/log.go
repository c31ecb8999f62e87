package transport

import (
	"context"
	"log/slog"
)

// LogTransport writes envelopes to the log and reports them as sent. It is
// the default for development setups without a mail server.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	t.logger.Info("message delivered to log",
		"from", env.Sender,
		"to", env.Recipient,
		"subject", env.Subject,
		"body_bytes", len(env.Body),
	)
	return Sent(""), nil
}
