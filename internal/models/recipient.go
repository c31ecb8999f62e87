package models

import "time"

// Recipient is an email address that mailings can be sent to
type Recipient struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Comment   string    `json:"comment"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined fields
	OwnerEmail string `json:"owner_email,omitempty"`
}

// RecipientFilter for listing recipients
type RecipientFilter struct {
	OwnerID string // empty means all owners
	Search  string
	Limit   int
	Offset  int
}
