package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

type RecipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

const recipientSelect = `
	SELECT r.id, r.email, r.full_name, r.comment, r.owner_id, r.created_at, r.updated_at, COALESCE(u.email, '')
	FROM recipients r LEFT JOIN users u ON u.id = r.owner_id`

func scanRecipient(row interface{ Scan(...any) error }) (*models.Recipient, error) {
	rc := &models.Recipient{}
	err := row.Scan(&rc.ID, &rc.Email, &rc.FullName, &rc.Comment, &rc.OwnerID, &rc.CreatedAt, &rc.UpdatedAt, &rc.OwnerEmail)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Create creates a new recipient
func (r *RecipientRepository) Create(rc *models.Recipient) error {
	rc.Email = strings.TrimSpace(rc.Email)
	rc.CreatedAt = time.Now().UTC()
	rc.UpdatedAt = rc.CreatedAt

	res, err := r.db.Exec(`
		INSERT INTO recipients (email, full_name, comment, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rc.Email, rc.FullName, rc.Comment, rc.OwnerID, rc.CreatedAt, rc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create recipient: %w", err)
	}
	rc.ID, err = res.LastInsertId()
	return err
}

// GetByID returns a recipient by ID
func (r *RecipientRepository) GetByID(id int64) (*models.Recipient, error) {
	rc, err := scanRecipient(r.db.QueryRow(recipientSelect+" WHERE r.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rc, err
}

// List returns recipients with optional filtering
func (r *RecipientRepository) List(filter models.RecipientFilter) ([]models.Recipient, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.OwnerID != "" {
		where += " AND r.owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Search != "" {
		where += " AND (r.email LIKE ? OR r.full_name LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM recipients r"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := appendPaging(recipientSelect+where+" ORDER BY r.id", args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recipients := []models.Recipient{}
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		recipients = append(recipients, *rc)
	}
	return recipients, total, rows.Err()
}

// GetByIDs returns the recipients with the given IDs, ordered by ID
func (r *RecipientRepository) GetByIDs(ids []int64) ([]models.Recipient, error) {
	if len(ids) == 0 {
		return []models.Recipient{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.db.Query(recipientSelect+" WHERE r.id IN ("+strings.Join(placeholders, ",")+") ORDER BY r.id", args...)
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

// Update updates a recipient
func (r *RecipientRepository) Update(rc *models.Recipient) error {
	rc.Email = strings.TrimSpace(rc.Email)
	rc.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE recipients SET email = ?, full_name = ?, comment = ?, updated_at = ?
		WHERE id = ?`,
		rc.Email, rc.FullName, rc.Comment, rc.UpdatedAt, rc.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// Delete deletes a recipient and removes it from all mailings
func (r *RecipientRepository) Delete(id int64) error {
	_, err := r.db.Exec("DELETE FROM recipients WHERE id = ?", id)
	return err
}
