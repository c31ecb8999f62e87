package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/email"
)

// MessageSigner signs a rendered message, e.g. with DKIM
type MessageSigner interface {
	Sign(message []byte) ([]byte, error)
}

// SMTPTransport submits messages to a relay server
type SMTPTransport struct {
	cfg         config.SMTPTransportConfig
	signer      MessageSigner
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewSMTPTransport creates a relay transport. signer may be nil.
func NewSMTPTransport(cfg config.SMTPTransportConfig, signer MessageSigner, logger *slog.Logger) *SMTPTransport {
	return &SMTPTransport{
		cfg:         cfg,
		signer:      signer,
		tlsConfig:   &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		dialTimeout: 30 * time.Second,
		logger:      logger,
	}
}

func (t *SMTPTransport) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	msg, err := BuildMessage(env, time.Now())
	if err != nil {
		return Outcome{}, err
	}

	if t.signer != nil {
		signed, err := t.signer.Sign(msg)
		if err != nil {
			// Unsigned mail is still deliverable.
			t.logger.Warn("DKIM signing failed, sending unsigned", "error", err)
		} else {
			msg = signed
		}
	}

	client, err := t.dial(ctx)
	if err != nil {
		return classify(err)
	}
	defer client.Close()

	from := email.BareAddress(env.Sender)
	if err := client.SendMail(from, []string{env.Recipient}, bytes.NewReader(msg)); err != nil {
		return classify(err)
	}

	if err := client.Quit(); err != nil {
		t.logger.Debug("SMTP QUIT failed", "error", err)
	}

	return Sent(""), nil
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.dialTimeout}

	var conn net.Conn
	var err error
	if t.cfg.Security == config.SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var client *smtp.Client
	if t.cfg.Security == config.SecurityStartTLS {
		// The upgrade resets the session, so EHLO with our name follows it.
		client, err = smtp.NewClientStartTLS(conn, t.tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	} else {
		client = smtp.NewClient(conn)
	}

	if err := client.Hello(t.cfg.HelloName); err != nil {
		client.Close()
		return nil, err
	}

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	return client, nil
}

// classify turns a server reply into a failed outcome and leaves connection
// level problems as errors.
func classify(err error) (Outcome, error) {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return Failed(fmt.Sprintf("%d %s", smtpErr.Code, smtpErr.Message)), nil
	}
	return Outcome{}, err
}
