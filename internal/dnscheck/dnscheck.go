// Package dnscheck verifies the DNS records a sending domain needs before
// mailings from it are accepted by receivers: SPF, DKIM, DMARC and MX.
package dnscheck

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrInvalidDomain is returned for a malformed domain name
var ErrInvalidDomain = errors.New("invalid domain name")

var (
	domainRegex   = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)
	selectorRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
)

// ValidateDomain checks if domain name is valid
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// ValidateSelector checks if DKIM selector is a valid DNS label
func ValidateSelector(selector string) error {
	if selector == "" {
		return errors.New("selector is required")
	}
	if len(selector) > 63 {
		return errors.New("selector too long")
	}
	if !selectorRegex.MatchString(selector) {
		return errors.New("invalid selector format")
	}
	return nil
}

// Status of a single check
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
	StatusNotFound Status = "not_found"
)

// CheckResult represents a single DNS check result
type CheckResult struct {
	Type    string `json:"type"`
	Status  Status `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report contains all check results for a sending domain
type Report struct {
	Domain  string        `json:"domain"`
	Results []CheckResult `json:"results"`
}

// Ready reports whether nothing is missing or broken. Warnings pass.
func (r *Report) Ready() bool {
	for _, res := range r.Results {
		if res.Status == StatusError || res.Status == StatusNotFound {
			return false
		}
	}
	return true
}

// Resolver is the subset of net.Resolver the checks need
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Checker runs DNS checks against a resolver
type Checker struct {
	resolver Resolver
}

// NewChecker creates a checker. A nil resolver uses the system resolver.
func NewChecker(resolver Resolver) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Checker{resolver: resolver}
}

// CheckSender runs every check for a sending domain. When key is not nil
// the published DKIM key must match it.
func (c *Checker) CheckSender(ctx context.Context, domain, selector string, key *rsa.PublicKey) (*Report, error) {
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	if err := ValidateSelector(selector); err != nil {
		return nil, err
	}

	return &Report{
		Domain: domain,
		Results: []CheckResult{
			c.CheckSPF(ctx, domain),
			c.CheckDKIM(ctx, domain, selector, key),
			c.CheckDMARC(ctx, domain),
			c.CheckMX(ctx, domain),
		},
	}, nil
}

// CheckMX checks MX records, which receivers use to accept bounces
func (c *Checker) CheckMX(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "MX"}

	records, err := c.resolver.LookupMX(ctx, domain)
	if err != nil {
		return lookupFailed(result, err, "No MX records found (bounces cannot be delivered)")
	}
	if len(records) == 0 {
		result.Status = StatusNotFound
		result.Message = "No MX records found (bounces cannot be delivered)"
		return result
	}

	values := make([]string, 0, len(records))
	for _, mx := range records {
		values = append(values, fmt.Sprintf("%s (priority %d)", mx.Host, mx.Pref))
	}
	result.Status = StatusOK
	result.Value = strings.Join(values, ", ")
	return result
}

// CheckSPF checks the SPF record of the domain
func (c *Checker) CheckSPF(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "SPF"}

	records, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return lookupFailed(result, err, "No SPF record found")
	}

	var spf []string
	for _, txt := range records {
		if strings.HasPrefix(txt, "v=spf1") {
			spf = append(spf, txt)
		}
	}

	switch {
	case len(spf) == 0:
		result.Status = StatusNotFound
		result.Message = "No SPF record found"
	case len(spf) > 1:
		result.Status = StatusError
		result.Value = strings.Join(spf, " | ")
		result.Message = "Multiple SPF records, receivers treat this as a permanent error"
	case strings.Contains(spf[0], "+all"):
		result.Status = StatusWarning
		result.Value = spf[0]
		result.Message = "SPF uses +all and allows any sender"
	default:
		result.Status = StatusOK
		result.Value = spf[0]
	}
	return result
}

// CheckDKIM checks the DKIM key record published under the selector
func (c *Checker) CheckDKIM(ctx context.Context, domain, selector string, key *rsa.PublicKey) CheckResult {
	result := CheckResult{Type: "DKIM (" + selector + ")"}
	name := selector + "._domainkey." + domain

	records, err := c.resolver.LookupTXT(ctx, name)
	if err != nil {
		return lookupFailed(result, err, "No DKIM record at "+name)
	}

	// A long key is split into several strings of one record.
	record := strings.Join(records, "")
	result.Value = truncate(record, 100)

	tags := parseTags(record)
	if v, ok := tags["v"]; ok && v != "DKIM1" {
		result.Status = StatusError
		result.Message = "Record is not a DKIM1 key"
		return result
	}
	p, ok := tags["p"]
	if !ok {
		result.Status = StatusError
		result.Message = "Record has no public key (p=)"
		return result
	}
	if p == "" {
		result.Status = StatusError
		result.Message = "Key has been revoked (empty p=)"
		return result
	}

	if key != nil {
		want, err := x509.MarshalPKIXPublicKey(key)
		if err != nil {
			result.Status = StatusError
			result.Message = fmt.Sprintf("Failed to encode local key: %v", err)
			return result
		}
		if p != base64.StdEncoding.EncodeToString(want) {
			result.Status = StatusError
			result.Message = "Published key does not match the signing key"
			return result
		}
		result.Message = "Published key matches the signing key"
	}

	result.Status = StatusOK
	return result
}

// CheckDMARC checks the DMARC policy of the domain
func (c *Checker) CheckDMARC(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "DMARC"}

	records, err := c.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return lookupFailed(result, err, "No DMARC record found")
	}

	record := strings.Join(records, "")
	if !strings.HasPrefix(record, "v=DMARC1") {
		result.Status = StatusNotFound
		result.Value = record
		result.Message = "No DMARC record found"
		return result
	}

	result.Value = record
	switch parseTags(record)["p"] {
	case "reject", "quarantine":
		result.Status = StatusOK
	case "none":
		result.Status = StatusWarning
		result.Message = "DMARC policy is none (monitoring only)"
	default:
		result.Status = StatusError
		result.Message = "DMARC record has no valid policy (p=)"
	}
	return result
}

func lookupFailed(result CheckResult, err error, notFound string) CheckResult {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		result.Status = StatusNotFound
		result.Message = notFound
		return result
	}
	result.Status = StatusError
	result.Message = fmt.Sprintf("Lookup failed: %v", err)
	return result
}

// parseTags splits a tag=value; list as used by DKIM and DMARC records
func parseTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.Join(strings.Fields(value), "")
		tags[strings.TrimSpace(name)] = value
	}
	return tags
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
