package mailing

import (
	"context"
	"sync"

	"github.com/foxzi/listmail/internal/models"
)

type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	mailings      map[int64]*models.Mailing
	recipients    map[int64][]models.Recipient
	attempts      []models.MailingAttempt
	transitionErr error
	recipientsErr error
	attemptErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mailings:   make(map[int64]*models.Mailing),
		recipients: make(map[int64][]models.Recipient),
	}
}

func (s *fakeStore) addMailing(status models.MailingStatus, emails ...string) *models.Mailing {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m := &models.Mailing{
		ID:             s.nextID,
		Status:         status,
		MessageSubject: "Subject",
		MessageBody:    "Body",
	}
	s.mailings[m.ID] = m

	for i, e := range emails {
		s.recipients[m.ID] = append(s.recipients[m.ID], models.Recipient{ID: int64(i + 1), Email: e})
	}

	cp := *m
	return &cp
}

func (s *fakeStore) status(id int64) models.MailingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailings[id].Status
}

func (s *fakeStore) attemptsFor(id int64) []models.MailingAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.MailingAttempt
	for _, a := range s.attempts {
		if a.MailingID == id {
			out = append(out, a)
		}
	}
	return out
}

func (s *fakeStore) GetMailing(_ context.Context, id int64) (*models.Mailing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mailings[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, id int64, from, to models.MailingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	m, ok := s.mailings[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (s *fakeStore) ListRecipients(_ context.Context, id int64) ([]models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recipientsErr != nil {
		return nil, s.recipientsErr
	}
	return append([]models.Recipient(nil), s.recipients[id]...), nil
}

// remove drops a mailing as a concurrent delete would
func (s *fakeStore) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mailings, id)
}

func (s *fakeStore) CreateAttempt(_ context.Context, a *models.MailingAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attemptErr != nil {
		return s.attemptErr
	}
	a.ID = int64(len(s.attempts) + 1)
	s.attempts = append(s.attempts, *a)
	return nil
}
