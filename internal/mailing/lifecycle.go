// Package mailing runs mailings through their lifecycle and delivers them
// to every recipient.
package mailing

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/listmail/internal/models"
)

var (
	// ErrNotFound is returned when the mailing does not exist
	ErrNotFound = errors.New("mailing not found")
	// ErrInvalidTransition is returned when a mailing is not in the state
	// the requested step starts from
	ErrInvalidTransition = errors.New("invalid mailing status transition")
	// ErrRecipientsUnavailable is returned with the result when a claimed
	// mailing was finished without loading its recipients
	ErrRecipientsUnavailable = errors.New("mailing recipients could not be loaded")
	// ErrFinishFailed is returned with the result when a run completed but
	// the mailing could not be marked finished
	ErrFinishFailed = errors.New("mailing could not be marked finished")
)

// TransitionError carries the state a rejected mailing was observed in
type TransitionError struct {
	MailingID int64
	From      models.MailingStatus
	To        models.MailingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("mailing #%d cannot move from %s to %s", e.MailingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// StatusStore atomically moves a mailing between states. It reports false
// when the mailing was not in the from state.
type StatusStore interface {
	TransitionStatus(ctx context.Context, id int64, from, to models.MailingStatus) (bool, error)
}

// CanTransition reports whether the lifecycle allows moving from one state
// to the other. created -> started -> finished is the only path.
func CanTransition(from, to models.MailingStatus) bool {
	switch from {
	case models.MailingCreated:
		return to == models.MailingStarted
	case models.MailingStarted:
		return to == models.MailingFinished
	}
	return false
}

// Begin claims a created mailing for dispatch. Exactly one of several
// concurrent callers succeeds; the others get ErrInvalidTransition.
func Begin(ctx context.Context, store StatusStore, m *models.Mailing) error {
	return transition(ctx, store, m, models.MailingStarted)
}

// Finish marks a started mailing as finished
func Finish(ctx context.Context, store StatusStore, m *models.Mailing) error {
	return transition(ctx, store, m, models.MailingFinished)
}

func transition(ctx context.Context, store StatusStore, m *models.Mailing, to models.MailingStatus) error {
	from := previous(to)
	if m.Status != from {
		return &TransitionError{MailingID: m.ID, From: m.Status, To: to}
	}

	ok, err := store.TransitionStatus(ctx, m.ID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update mailing status: %w", err)
	}
	if !ok {
		// Someone else moved it between our read and the update.
		return &TransitionError{MailingID: m.ID, From: m.Status, To: to}
	}

	m.Status = to
	return nil
}

func previous(to models.MailingStatus) models.MailingStatus {
	switch to {
	case models.MailingStarted:
		return models.MailingCreated
	case models.MailingFinished:
		return models.MailingStarted
	}
	return ""
}
