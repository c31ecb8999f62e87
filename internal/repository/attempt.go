package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create appends an attempt. AttemptTime is set here when empty and never
// changes afterwards.
func (r *AttemptRepository) Create(ctx context.Context, a *models.MailingAttempt) error {
	if a.AttemptTime.IsZero() {
		a.AttemptTime = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mailing_attempts (mailing_id, attempt_time, status, server_response, recipient_email)
		VALUES (?, ?, ?, ?, ?)`,
		a.MailingID, a.AttemptTime, a.Status, a.ServerResponse, a.RecipientEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// List returns attempts with optional filtering in insertion order
func (r *AttemptRepository) List(filter models.AttemptFilter) ([]models.MailingAttempt, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.MailingID != 0 {
		where += " AND mailing_id = ?"
		args = append(args, filter.MailingID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM mailing_attempts"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := appendPaging(`
		SELECT id, mailing_id, attempt_time, status, server_response, recipient_email
		FROM mailing_attempts`+where+" ORDER BY id", args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts := []models.MailingAttempt{}
	for rows.Next() {
		var a models.MailingAttempt
		if err := rows.Scan(&a.ID, &a.MailingID, &a.AttemptTime, &a.Status, &a.ServerResponse, &a.RecipientEmail); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// Counts returns the number of successful and failed attempts of a mailing
func (r *AttemptRepository) Counts(mailingID int64) (success, fail int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'fail' THEN 1 ELSE 0 END), 0)
		FROM mailing_attempts WHERE mailing_id = ?`, mailingID,
	).Scan(&success, &fail)
	return success, fail, err
}

// CountFinishedBefore returns the number of attempts older than cutoff that
// belong to finished mailings
func (r *AttemptRepository) CountFinishedBefore(cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM mailing_attempts a
		JOIN mailings m ON m.id = a.mailing_id
		WHERE m.status = 'finished' AND a.attempt_time < ?`,
		cutoff.UTC(),
	).Scan(&n)
	return n, err
}

// DeleteFinishedBefore deletes attempts older than cutoff that belong to
// finished mailings. Attempts of running mailings are never touched.
func (r *AttemptRepository) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM mailing_attempts
		WHERE attempt_time < ?
		AND mailing_id IN (SELECT id FROM mailings WHERE status = 'finished')`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
