package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/listmail/internal/models"
	"github.com/google/uuid"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create opens a new session for the user
func (r *SessionRepository) Create(userID string, ttl time.Duration) (*models.Session, error) {
	now := time.Now().UTC()
	s := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetUser returns the user owning a non-expired session
func (r *SessionRepository) GetUser(sessionID string) (*models.User, error) {
	var expiresAt time.Time
	u := &models.User{}
	err := r.db.QueryRow(`
		SELECT u.id, u.email, u.password_hash, COALESCE(u.name, ''), u.role, u.blocked, u.created_at, u.updated_at, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, sessionID,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Blocked, &u.CreatedAt, &u.UpdatedAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(time.Now()) {
		return nil, nil
	}
	return u, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// CountExpired returns the number of expired sessions
func (r *SessionRepository) CountExpired() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE expires_at < ?", time.Now().UTC()).Scan(&n)
	return n, err
}

// DeleteExpired removes expired sessions
func (r *SessionRepository) DeleteExpired() (int64, error) {
	res, err := r.db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
