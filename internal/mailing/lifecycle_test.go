package mailing

import (
	"context"
	"errors"
	"testing"

	"github.com/foxzi/listmail/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.MailingStatus
		want     bool
	}{
		{models.MailingCreated, models.MailingStarted, true},
		{models.MailingStarted, models.MailingFinished, true},
		{models.MailingCreated, models.MailingFinished, false},
		{models.MailingStarted, models.MailingCreated, false},
		{models.MailingFinished, models.MailingCreated, false},
		{models.MailingFinished, models.MailingStarted, false},
		{models.MailingFinished, models.MailingFinished, false},
		{models.MailingCreated, models.MailingCreated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBegin(t *testing.T) {
	tests := []struct {
		name    string
		status  models.MailingStatus
		wantErr bool
	}{
		{name: "created", status: models.MailingCreated},
		{name: "already started", status: models.MailingStarted, wantErr: true},
		{name: "finished", status: models.MailingFinished, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			m := store.addMailing(tt.status)

			err := Begin(context.Background(), store, m)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Begin() error = %v, want ErrInvalidTransition", err)
				}
				if store.status(m.ID) != tt.status {
					t.Errorf("status changed to %s on rejected Begin", store.status(m.ID))
				}
				return
			}
			if err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			if m.Status != models.MailingStarted || store.status(m.ID) != models.MailingStarted {
				t.Errorf("status = %s/%s, want started", m.Status, store.status(m.ID))
			}
		})
	}
}

func TestBeginLosesRace(t *testing.T) {
	store := newFakeStore()
	m := store.addMailing(models.MailingCreated)
	stale := *m

	if err := Begin(context.Background(), store, m); err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}

	// The stale copy still says created, so only the store can refuse it.
	err := Begin(context.Background(), store, &stale)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("second Begin() error = %v, want TransitionError", err)
	}
	if te.To != models.MailingStarted {
		t.Errorf("TransitionError.To = %s, want started", te.To)
	}
}

func TestFinish(t *testing.T) {
	store := newFakeStore()

	created := store.addMailing(models.MailingCreated)
	if err := Finish(context.Background(), store, created); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Finish(created) error = %v, want ErrInvalidTransition", err)
	}

	started := store.addMailing(models.MailingStarted)
	if err := Finish(context.Background(), store, started); err != nil {
		t.Fatalf("Finish(started) error = %v", err)
	}
	if store.status(started.ID) != models.MailingFinished {
		t.Errorf("status = %s, want finished", store.status(started.ID))
	}
}

func TestTransitionStoreError(t *testing.T) {
	store := newFakeStore()
	store.transitionErr = errors.New("disk I/O error")
	m := store.addMailing(models.MailingCreated)

	err := Begin(context.Background(), store, m)
	if err == nil || errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Begin() error = %v, want store error", err)
	}
	if m.Status != models.MailingCreated {
		t.Error("in-memory status should be unchanged after a store error")
	}
}
