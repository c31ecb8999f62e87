package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/listmail/internal/email"
	"github.com/foxzi/listmail/internal/sandbox"
	"github.com/google/uuid"
)

// SandboxTransport captures messages in a local store instead of sending
// them. Recipients in one of the fail domains are rejected, which lets
// partial-failure runs be reproduced without a real server.
type SandboxTransport struct {
	storage     *sandbox.Storage
	failDomains map[string]bool
}

func NewSandboxTransport(storage *sandbox.Storage, failDomains []string) *SandboxTransport {
	fd := make(map[string]bool, len(failDomains))
	for _, d := range failDomains {
		fd[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &SandboxTransport{storage: storage, failDomains: fd}
}

func (t *SandboxTransport) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	now := time.Now()
	data, err := BuildMessage(env, now)
	if err != nil {
		return Outcome{}, err
	}

	domain := email.ExtractDomain(env.Recipient)
	msg := &sandbox.Message{
		ID:         uuid.New().String(),
		From:       env.Sender,
		To:         env.Recipient,
		Subject:    env.Subject,
		Data:       data,
		Domain:     domain,
		CapturedAt: now,
	}

	var out Outcome
	if t.failDomains[domain] {
		msg.SimulatedErr = fmt.Sprintf("550 5.1.1 <%s>: recipient rejected by sandbox", env.Recipient)
		out = Failed(msg.SimulatedErr)
	} else {
		out = Sent("captured in sandbox as " + msg.ID)
	}

	if err := t.storage.Save(ctx, msg); err != nil {
		return Outcome{}, fmt.Errorf("failed to capture message: %w", err)
	}
	return out, nil
}
