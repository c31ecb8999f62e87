package repository

import (
	"database/sql"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log appends an audit entry
func (r *AuditRepository) Log(e *models.AuditEntry) error {
	e.CreatedAt = time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO audit_log (user_id, user_email, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.UserEmail, e.Action, e.EntityType, e.EntityID, e.Details, e.IPAddress, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// List returns the most recent audit entries
func (r *AuditRepository) List(limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, COALESCE(user_id, ''), COALESCE(user_email, ''), action, COALESCE(entity_type, ''),
			COALESCE(entity_id, ''), COALESCE(details, ''), COALESCE(ip_address, ''), created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountBefore returns the number of entries older than cutoff
func (r *AuditRepository) CountBefore(cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE created_at < ?", cutoff.UTC()).Scan(&n)
	return n, err
}

// DeleteBefore deletes entries older than cutoff
func (r *AuditRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
