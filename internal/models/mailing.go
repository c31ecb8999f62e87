package models

import "time"

// MailingStatus is the lifecycle state of a mailing
type MailingStatus string

const (
	MailingCreated  MailingStatus = "created"
	MailingStarted  MailingStatus = "started"
	MailingFinished MailingStatus = "finished"
)

// Valid reports whether s is a known status
func (s MailingStatus) Valid() bool {
	switch s {
	case MailingCreated, MailingStarted, MailingFinished:
		return true
	}
	return false
}

// Mailing sends one message to a set of recipients
type Mailing struct {
	ID        int64         `json:"id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Status    MailingStatus `json:"status"`
	MessageID int64         `json:"message_id"`
	OwnerID   string        `json:"owner_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Joined fields
	MessageSubject string `json:"message_subject,omitempty"`
	MessageBody    string `json:"-"`
	OwnerEmail     string `json:"owner_email,omitempty"`
	RecipientCount int    `json:"recipient_count"`
}

// MailingFilter for listing mailings
type MailingFilter struct {
	OwnerID string
	Status  MailingStatus
	Limit   int
	Offset  int
}

// AttemptStatus is the outcome of one delivery attempt
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFail    AttemptStatus = "fail"
)

// MailingAttempt records one delivery attempt to one recipient. Rows are
// append-only.
type MailingAttempt struct {
	ID             int64         `json:"id"`
	MailingID      int64         `json:"mailing_id"`
	AttemptTime    time.Time     `json:"attempt_time"`
	Status         AttemptStatus `json:"status"`
	ServerResponse string        `json:"server_response"`
	RecipientEmail string        `json:"recipient_email"`
}

// AttemptFilter for listing attempts
type AttemptFilter struct {
	MailingID int64
	Status    AttemptStatus
	Limit     int
	Offset    int
}

// DashboardStats holds the counters shown on the dashboard
type DashboardStats struct {
	TotalMailings   int       `json:"total_mailings"`
	ActiveMailings  int       `json:"active_mailings"`
	TotalRecipients int       `json:"total_recipients"`
	AttemptsSuccess int       `json:"attempts_success"`
	AttemptsFail    int       `json:"attempts_fail"`
	LatestStarted   []Mailing `json:"latest_started"`
}
