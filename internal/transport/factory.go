package transport

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/dkim"
	"github.com/foxzi/listmail/internal/sandbox"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the configured transport wrapped with the delivery timeout.
// The returned closer releases resources held by the transport.
func New(cfg config.TransportConfig, logger *slog.Logger) (Transport, io.Closer, error) {
	var t Transport
	var closer io.Closer = nopCloser{}

	switch cfg.Type {
	case config.TransportSMTP:
		var signer MessageSigner
		if cfg.SMTP.DKIM.Enabled {
			s, err := dkim.NewSignerFromFile(cfg.SMTP.DKIM.KeyFile, cfg.SMTP.DKIM.Domain, cfg.SMTP.DKIM.Selector)
			if err != nil {
				return nil, nil, err
			}
			signer = s
			logger.Info("DKIM signing enabled", "domain", s.Domain(), "selector", s.Selector())
		}
		t = NewSMTPTransport(cfg.SMTP, signer, logger.With("transport", "smtp"))
	case config.TransportSendry:
		t = NewSendryTransport(cfg.Sendry.BaseURL, cfg.Sendry.APIKey)
	case config.TransportResend:
		t = NewResendTransport(cfg.Resend.APIKey)
	case config.TransportSandbox:
		storage, err := sandbox.Open(cfg.Sandbox.Path)
		if err != nil {
			return nil, nil, err
		}
		t = NewSandboxTransport(storage, cfg.Sandbox.FailDomains)
		closer = storage
	case config.TransportLog, "":
		t = NewLogTransport(logger.With("transport", "log"))
	default:
		return nil, nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}

	return WithTimeout(t, cfg.Timeout), closer, nil
}
