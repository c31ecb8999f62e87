package models

import "time"

// Message is the subject and body sent by a mailing
type Message struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined fields
	OwnerEmail string `json:"owner_email,omitempty"`
}

// MessageFilter for listing messages
type MessageFilter struct {
	OwnerID string
	Search  string
	Limit   int
	Offset  int
}
