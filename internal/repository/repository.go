package repository

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateEmail is returned when an email address is already taken
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrMailingLocked is returned when a mailing is edited after it left
	// the created state
	ErrMailingLocked = errors.New("mailing is no longer editable")
	// ErrMailingInProgress is returned when deleting a mailing, or a
	// message, that is being sent
	ErrMailingInProgress = errors.New("mailing is being sent")
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// appendPaging adds LIMIT/OFFSET clauses to a query
func appendPaging(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
