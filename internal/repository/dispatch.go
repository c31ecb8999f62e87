package repository

import (
	"context"
	"database/sql"

	"github.com/foxzi/listmail/internal/models"
)

// DispatchStore is the persistence the dispatch engine works against
type DispatchStore struct {
	mailings *MailingRepository
	attempts *AttemptRepository
}

func NewDispatchStore(db *sql.DB) *DispatchStore {
	return &DispatchStore{
		mailings: NewMailingRepository(db),
		attempts: NewAttemptRepository(db),
	}
}

func (s *DispatchStore) GetMailing(ctx context.Context, id int64) (*models.Mailing, error) {
	return s.mailings.GetByIDContext(ctx, id)
}

func (s *DispatchStore) TransitionStatus(ctx context.Context, id int64, from, to models.MailingStatus) (bool, error) {
	return s.mailings.TransitionStatus(ctx, id, from, to)
}

func (s *DispatchStore) ListRecipients(ctx context.Context, mailingID int64) ([]models.Recipient, error) {
	return s.mailings.ListRecipients(ctx, mailingID)
}

func (s *DispatchStore) CreateAttempt(ctx context.Context, a *models.MailingAttempt) error {
	return s.attempts.Create(ctx, a)
}
