// Package transport delivers one message to one recipient and reports the
// outcome in a form the dispatch engine can record as an attempt.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default attempt responses
const (
	ResponseSent   = "sent successfully"
	ResponseFailed = "could not send"
)

// Envelope is one message addressed to one recipient
type Envelope struct {
	Sender    string
	Recipient string
	Subject   string
	Body      string
}

// Outcome is the result of a delivery. A transport returns Failed for a
// rejection it understood and an error for anything else; both end up as a
// failed attempt.
type Outcome struct {
	Delivered bool
	Response  string
}

// Sent returns a successful outcome. An empty response becomes ResponseSent.
func Sent(response string) Outcome {
	if response == "" {
		response = ResponseSent
	}
	return Outcome{Delivered: true, Response: response}
}

// Failed returns a failed outcome. An empty reason becomes ResponseFailed.
func Failed(reason string) Outcome {
	if reason == "" {
		reason = ResponseFailed
	}
	return Outcome{Delivered: false, Response: reason}
}

// Transport delivers envelopes
type Transport interface {
	Deliver(ctx context.Context, env Envelope) (Outcome, error)
}

// Func adapts a function to the Transport interface
type Func func(ctx context.Context, env Envelope) (Outcome, error)

func (f Func) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	return f(ctx, env)
}

// WithTimeout bounds every delivery by d. An expired delivery is reported as
// a failed outcome instead of an error. A zero d returns t unchanged.
func WithTimeout(t Transport, d time.Duration) Transport {
	if d <= 0 {
		return t
	}
	return Func(func(ctx context.Context, env Envelope) (Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			out Outcome
			err error
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: fmt.Errorf("transport panic: %v", r)}
				}
			}()
			out, err := t.Deliver(ctx, env)
			done <- result{out, err}
		}()

		select {
		case r := <-done:
			return r.out, r.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return Outcome{}, ctx.Err()
			}
			return Failed(fmt.Sprintf("delivery timed out after %s", d)), nil
		}
	})
}
