package mailing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/listmail/internal/metrics"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/transport"
)

// Store is the persistence a dispatch run needs
type Store interface {
	StatusStore
	GetMailing(ctx context.Context, id int64) (*models.Mailing, error)
	ListRecipients(ctx context.Context, mailingID int64) ([]models.Recipient, error)
	CreateAttempt(ctx context.Context, a *models.MailingAttempt) error
}

// Result is the tally of one dispatch run
type Result struct {
	MailingID    int64 `json:"mailing_id"`
	SuccessCount int   `json:"success_count"`
	FailCount    int   `json:"fail_count"`
}

// Total returns the number of recipients attempted
func (r *Result) Total() int {
	return r.SuccessCount + r.FailCount
}

// Summary is the one-line notice shown to whoever started the run
func (r *Result) Summary() string {
	return fmt.Sprintf("Mailing #%d finished: %d succeeded, %d failed", r.MailingID, r.SuccessCount, r.FailCount)
}

// Dispatcher delivers a mailing's message to each of its recipients
type Dispatcher struct {
	store     Store
	transport transport.Transport
	sender    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. sender is the From address used for
// every message and may be empty when the transport supplies its own.
func NewDispatcher(store Store, t transport.Transport, sender string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: t,
		sender:    sender,
		logger:    logger.With("component", "dispatcher"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends mailing id to all of its recipients, one at a time, in
// recipient id order. It fails with ErrNotFound or ErrInvalidTransition
// before anything is sent; once the mailing is claimed every recipient gets
// exactly one attempt and the mailing is always finished. Delivery failures
// are recorded as attempts and never abort the run.
//
// After the claim a non-nil result is always returned. It comes with
// ErrRecipientsUnavailable or ErrFinishFailed when the run went wrong.
//
// The caller must have authorized the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) (*Result, error) {
	m, err := d.store.GetMailing(ctx, id)
	if err != nil {
		metrics.IncDispatch(metrics.DispatchError)
		return nil, fmt.Errorf("failed to get mailing: %w", err)
	}
	if m == nil {
		metrics.IncDispatch(metrics.DispatchNotFound)
		return nil, fmt.Errorf("%w: #%d", ErrNotFound, id)
	}

	if err := Begin(ctx, d.store, m); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			metrics.IncDispatch(metrics.DispatchRejected)
			d.logger.Warn("dispatch rejected", "mailing_id", id, "status", m.Status)
		} else {
			metrics.IncDispatch(metrics.DispatchError)
		}
		return nil, err
	}

	// The run is not cancellable once claimed: a client going away must not
	// leave the mailing half sent.
	runCtx := context.WithoutCancel(ctx)
	done := metrics.DispatchStarted()
	defer done()

	logger := d.logger.With("mailing_id", id)
	logger.Info("dispatch started", "subject", m.MessageSubject)

	result := &Result{MailingID: id}

	var runErr error
	recipients, err := d.store.ListRecipients(runCtx, id)
	if err != nil {
		// Nothing can be sent, but the claimed mailing still has to finish.
		logger.Error("failed to load recipients", "error", err)
		runErr = fmt.Errorf("%w: %w", ErrRecipientsUnavailable, err)
	}

	for _, rc := range recipients {
		attempt := d.deliver(runCtx, m, rc)
		if attempt.Status == models.AttemptSuccess {
			result.SuccessCount++
			logger.Debug("delivered", "recipient", rc.Email)
		} else {
			result.FailCount++
			logger.Warn("delivery failed", "recipient", rc.Email, "response", attempt.ServerResponse)
		}
		metrics.IncAttempt(string(attempt.Status))

		if err := d.store.CreateAttempt(runCtx, attempt); err != nil {
			logger.Error("failed to record attempt", "recipient", rc.Email, "status", attempt.Status, "error", err)
		}
	}

	if err := Finish(runCtx, d.store, m); err != nil {
		metrics.IncDispatch(metrics.DispatchError)
		logger.Error("failed to finish mailing", "error", err)
		// Mail went out, so this must not read as a rejected dispatch.
		return result, fmt.Errorf("%w: %v", ErrFinishFailed, err)
	}

	if runErr != nil {
		metrics.IncDispatch(metrics.DispatchError)
		return result, runErr
	}

	metrics.IncDispatch(metrics.DispatchFinished)
	logger.Info("dispatch finished", "success", result.SuccessCount, "failed", result.FailCount)
	return result, nil
}

// deliver makes one delivery attempt. Errors and panics from the transport
// become failed attempts.
func (d *Dispatcher) deliver(ctx context.Context, m *models.Mailing, rc models.Recipient) *models.MailingAttempt {
	attempt := &models.MailingAttempt{
		MailingID:      m.ID,
		RecipientEmail: rc.Email,
	}

	out, err := d.send(ctx, transport.Envelope{
		Sender:    d.sender,
		Recipient: rc.Email,
		Subject:   m.MessageSubject,
		Body:      m.MessageBody,
	})
	attempt.AttemptTime = d.now()

	switch {
	case err != nil:
		attempt.Status = models.AttemptFail
		attempt.ServerResponse = err.Error()
	case out.Delivered:
		attempt.Status = models.AttemptSuccess
		attempt.ServerResponse = transport.Sent(out.Response).Response
	default:
		attempt.Status = models.AttemptFail
		attempt.ServerResponse = transport.Failed(out.Response).Response
	}
	return attempt
}

func (d *Dispatcher) send(ctx context.Context, env transport.Envelope) (out transport.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return d.transport.Deliver(ctx, env)
}
