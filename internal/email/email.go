// Package email provides address helpers shared by forms and transports.
package email

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidAddress is returned for strings that are not a single bare address
var ErrInvalidAddress = errors.New("invalid email address")

// Normalize validates a recipient address and returns it trimmed with the
// domain part lower-cased. Display names are rejected: recipients are stored
// as bare addresses.
func Normalize(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidAddress
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Name != "" || parsed.Address != address {
		return "", ErrInvalidAddress
	}

	at := strings.LastIndex(parsed.Address, "@")
	if at <= 0 || at == len(parsed.Address)-1 {
		return "", ErrInvalidAddress
	}
	domain := parsed.Address[at+1:]
	if !strings.Contains(domain, ".") && domain != "localhost" {
		return "", ErrInvalidAddress
	}
	return parsed.Address[:at+1] + strings.ToLower(domain), nil
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		// Try simple extraction for malformed addresses
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(email[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// ExtractDomainOrDefault extracts the domain part from an email address.
// Returns the provided default value if the email is invalid or domain is empty.
func ExtractDomainOrDefault(email, defaultDomain string) string {
	domain := ExtractDomain(email)
	if domain == "" {
		return defaultDomain
	}
	return domain
}

// BareAddress returns the address part of a possibly named address such as
// "Mailer <noreply@example.com>"
func BareAddress(address string) string {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return strings.TrimSpace(address)
	}
	return parsed.Address
}
