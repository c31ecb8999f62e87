package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/listmail/internal/models"
	"github.com/google/uuid"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, COALESCE(name, ''), role, blocked, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Blocked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create creates a new user
func (r *UserRepository) Create(u *models.User) error {
	u.ID = uuid.New().String()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	if u.Role == "" {
		u.Role = models.RoleUser
	}

	_, err := r.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, role, blocked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Blocked, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetByEmail returns a user by email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// List returns users with optional filtering
func (r *UserRepository) List(filter models.UserFilter) ([]models.User, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Search != "" {
		where += " AND (email LIKE ? OR name LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := appendPaging("SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at", args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// UpdatePassword sets a new password hash
func (r *UserRepository) UpdatePassword(id, passwordHash string) error {
	return r.exec("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, time.Now().UTC(), id)
}

// SetRole changes a user's role
func (r *UserRepository) SetRole(id string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}
	return r.exec("UPDATE users SET role = ?, updated_at = ? WHERE id = ?", role, time.Now().UTC(), id)
}

// SetBlocked blocks or unblocks a user. Blocking also drops their sessions.
func (r *UserRepository) SetBlocked(id string, blocked bool) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE users SET blocked = ?, updated_at = ? WHERE id = ?", blocked, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if blocked {
		if _, err := tx.Exec("DELETE FROM sessions WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("failed to drop sessions: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateProfile updates the display name
func (r *UserRepository) UpdateProfile(id, name string) error {
	return r.exec("UPDATE users SET name = ?, updated_at = ? WHERE id = ?", name, time.Now().UTC(), id)
}

// Delete deletes a user and everything they own
func (r *UserRepository) Delete(id string) error {
	return r.exec("DELETE FROM users WHERE id = ?", id)
}

// CountByRole returns the number of users with the given role
func (r *UserRepository) CountByRole(role models.Role) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = ?", role).Scan(&n)
	return n, err
}

func (r *UserRepository) exec(query string, args ...any) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
