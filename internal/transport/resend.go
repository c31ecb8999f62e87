package transport

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendTransport sends messages through the Resend API
type ResendTransport struct {
	client *resend.Client
}

func NewResendTransport(apiKey string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey)}
}

func (t *ResendTransport) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	params := &resend.SendEmailRequest{
		From:    env.Sender,
		To:      []string{env.Recipient},
		Subject: env.Subject,
		Text:    env.Body,
	}

	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return Outcome{}, fmt.Errorf("resend send failed: %w", err)
	}
	return Sent("accepted by resend as " + sent.Id), nil
}
