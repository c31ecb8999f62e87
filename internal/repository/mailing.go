package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

type MailingRepository struct {
	db *sql.DB
}

func NewMailingRepository(db *sql.DB) *MailingRepository {
	return &MailingRepository{db: db}
}

const mailingSelect = `
	SELECT ml.id, ml.start_time, ml.end_time, ml.status, ml.message_id, ml.owner_id, ml.created_at, ml.updated_at,
		COALESCE(msg.subject, ''), COALESCE(msg.body, ''), COALESCE(u.email, ''),
		(SELECT COUNT(*) FROM mailing_recipients mr WHERE mr.mailing_id = ml.id)
	FROM mailings ml
	LEFT JOIN messages msg ON msg.id = ml.message_id
	LEFT JOIN users u ON u.id = ml.owner_id`

func scanMailing(row interface{ Scan(...any) error }) (*models.Mailing, error) {
	m := &models.Mailing{}
	err := row.Scan(&m.ID, &m.StartTime, &m.EndTime, &m.Status, &m.MessageID, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt,
		&m.MessageSubject, &m.MessageBody, &m.OwnerEmail, &m.RecipientCount)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create creates a new mailing in the created state with its recipient set
func (r *MailingRepository) Create(m *models.Mailing, recipientIDs []int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m.Status = models.MailingCreated
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt

	res, err := tx.Exec(`
		INSERT INTO mailings (start_time, end_time, status, message_id, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.StartTime, m.EndTime, m.Status, m.MessageID, m.OwnerID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mailing: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if err := replaceRecipients(tx, m.ID, recipientIDs); err != nil {
		return err
	}
	m.RecipientCount = len(recipientIDs)

	return tx.Commit()
}

// GetByID returns a mailing by ID including its message content
func (r *MailingRepository) GetByID(id int64) (*models.Mailing, error) {
	return r.GetByIDContext(context.Background(), id)
}

// GetByIDContext is GetByID bound to a context
func (r *MailingRepository) GetByIDContext(ctx context.Context, id int64) (*models.Mailing, error) {
	m, err := scanMailing(r.db.QueryRowContext(ctx, mailingSelect+" WHERE ml.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// List returns mailings with optional filtering, newest first
func (r *MailingRepository) List(filter models.MailingFilter) ([]models.Mailing, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.OwnerID != "" {
		where += " AND ml.owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where += " AND ml.status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM mailings ml"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := appendPaging(mailingSelect+where+" ORDER BY ml.id DESC", args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	mailings := []models.Mailing{}
	for rows.Next() {
		m, err := scanMailing(rows)
		if err != nil {
			return nil, 0, err
		}
		mailings = append(mailings, *m)
	}
	return mailings, total, rows.Err()
}

// Update updates schedule, message and recipients. Status is owned by the
// dispatch engine and is never written here. Only created mailings can be
// updated; anything else gets ErrMailingLocked.
func (r *MailingRepository) Update(m *models.Mailing, recipientIDs []int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m.UpdatedAt = time.Now().UTC()
	res, err := tx.Exec(`
		UPDATE mailings SET start_time = ?, end_time = ?, message_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		m.StartTime, m.EndTime, m.MessageID, m.UpdatedAt, m.ID, models.MailingCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to update mailing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMailingLocked
	}

	if err := replaceRecipients(tx, m.ID, recipientIDs); err != nil {
		return err
	}
	m.RecipientCount = len(recipientIDs)

	return tx.Commit()
}

// Delete deletes a mailing and its attempts. A started mailing is kept and
// ErrMailingInProgress is returned.
func (r *MailingRepository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM mailings WHERE id = ? AND status <> ?", id, models.MailingStarted)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.explainMiss(id)
	}
	return nil
}

// explainMiss tells a missing mailing, which is fine to "delete", from one
// that is being sent.
func (r *MailingRepository) explainMiss(id int64) error {
	var status models.MailingStatus
	err := r.db.QueryRow("SELECT status FROM mailings WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return ErrMailingInProgress
}

// RecipientIDs returns the IDs of a mailing's recipients
func (r *MailingRepository) RecipientIDs(id int64) ([]int64, error) {
	rows, err := r.db.Query("SELECT recipient_id FROM mailing_recipients WHERE mailing_id = ? ORDER BY recipient_id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		ids = append(ids, rid)
	}
	return ids, rows.Err()
}

// ListRecipients returns a mailing's recipients ordered by recipient ID
func (r *MailingRepository) ListRecipients(ctx context.Context, id int64) ([]models.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.email, r.full_name, r.comment, r.owner_id, r.created_at, r.updated_at, ''
		FROM mailing_recipients mr JOIN recipients r ON r.id = mr.recipient_id
		WHERE mr.mailing_id = ?
		ORDER BY r.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []models.Recipient{}
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rc)
	}
	return recipients, rows.Err()
}

// TransitionStatus moves a mailing from one status to another only if it is
// currently in the from status. It reports whether the row was changed, so
// concurrent callers racing on the same transition see exactly one winner.
func (r *MailingRepository) TransitionStatus(ctx context.Context, id int64, from, to models.MailingStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE mailings SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update mailing status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func replaceRecipients(tx *sql.Tx, mailingID int64, recipientIDs []int64) error {
	if _, err := tx.Exec("DELETE FROM mailing_recipients WHERE mailing_id = ?", mailingID); err != nil {
		return fmt.Errorf("failed to clear mailing recipients: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO mailing_recipients (mailing_id, recipient_id) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rid := range recipientIDs {
		if _, err := stmt.Exec(mailingID, rid); err != nil {
			return fmt.Errorf("failed to add recipient %d: %w", rid, err)
		}
	}
	return nil
}

// CountStartedByMessage returns how many in-progress mailings send a message
func (r *MailingRepository) CountStartedByMessage(messageID int64) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM mailings WHERE message_id = ? AND status = ?", messageID, models.MailingStarted).Scan(&n)
	return n, err
}
