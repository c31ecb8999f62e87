package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageSelect = `
	SELECT m.id, m.subject, m.body, m.owner_id, m.created_at, m.updated_at, COALESCE(u.email, '')
	FROM messages m LEFT JOIN users u ON u.id = m.owner_id`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.Subject, &m.Body, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt, &m.OwnerEmail)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create creates a new message
func (r *MessageRepository) Create(m *models.Message) error {
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt

	res, err := r.db.Exec(`
		INSERT INTO messages (subject, body, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.Subject, m.Body, m.OwnerID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// GetByID returns a message by ID
func (r *MessageRepository) GetByID(id int64) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRow(messageSelect+" WHERE m.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// List returns messages with optional filtering
func (r *MessageRepository) List(filter models.MessageFilter) ([]models.Message, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.OwnerID != "" {
		where += " AND m.owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Search != "" {
		where += " AND (m.subject LIKE ? OR m.body LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM messages m"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := appendPaging(messageSelect+where+" ORDER BY m.updated_at DESC, m.id DESC", args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *m)
	}
	return messages, total, rows.Err()
}

// Update updates a message
func (r *MessageRepository) Update(m *models.Message) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE messages SET subject = ?, body = ?, updated_at = ?
		WHERE id = ?`,
		m.Subject, m.Body, m.UpdatedAt, m.ID,
	)
	return err
}

// Delete deletes a message together with the mailings that use it. While
// one of those mailings is being sent nothing is deleted and
// ErrMailingInProgress is returned.
func (r *MessageRepository) Delete(id int64) error {
	res, err := r.db.Exec(`
		DELETE FROM messages WHERE id = ?
		AND NOT EXISTS (SELECT 1 FROM mailings WHERE message_id = messages.id AND status = ?)`,
		id, models.MailingStarted,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow("SELECT EXISTS (SELECT 1 FROM messages WHERE id = ?)", id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrMailingInProgress
	}
	return nil
}
