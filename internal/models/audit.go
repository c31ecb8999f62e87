package models

import "time"

// AuditEntry records a user action
type AuditEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit actions
const (
	AuditMailingDispatch = "mailing.dispatch"
	AuditMailingDelete   = "mailing.delete"
	AuditUserBlock       = "user.block"
	AuditUserUnblock     = "user.unblock"
	AuditUserLogin       = "user.login"
)
