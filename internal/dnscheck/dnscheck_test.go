package dnscheck

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/foxzi/listmail/internal/dkim"
)

type fakeResolver struct {
	txt map[string][]string
	mx  map[string][]*net.MX
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if r, ok := f.txt[name]; ok {
		return r, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (f *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if r, ok := f.mx[name]; ok {
		return r, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{"valid simple", "example.com", false},
		{"valid subdomain", "sub.example.com", false},
		{"valid with dash", "my-domain.com", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 254), true},
		{"invalid chars", "example!.com", true},
		{"starts with dash", "-example.com", true},
		{"double dot", "example..com", true},
		{"path injection", "../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDomain(%q) error = %v, wantErr %v", tt.domain, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSelector(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		wantErr  bool
	}{
		{"valid simple", "listmail", false},
		{"valid with numbers", "key2024", false},
		{"valid with dash", "dkim-key", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 64), true},
		{"invalid chars", "selector!", true},
		{"starts with dash", "-selector", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelector(tt.selector)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSelector(%q) error = %v, wantErr %v", tt.selector, err, tt.wantErr)
			}
		})
	}
}

func TestCheckSender(t *testing.T) {
	kp, err := dkim.GenerateKey("example.com", "listmail", 1024)
	if err != nil {
		t.Fatal(err)
	}
	other, err := dkim.GenerateKey("example.com", "listmail", 1024)
	if err != nil {
		t.Fatal(err)
	}

	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com":                     {"google-site-verification=x", "v=spf1 mx -all"},
			"listmail._domainkey.example.com": kp.DNSRecordChunks(),
			"_dmarc.example.com":              {"v=DMARC1; p=quarantine; rua=mailto:d@example.com"},
		},
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx.example.com.", Pref: 10}},
		},
	}
	c := NewChecker(resolver)

	report, err := c.CheckSender(context.Background(), "example.com", "listmail", &kp.PrivateKey.PublicKey)
	if err != nil {
		t.Fatalf("CheckSender() error = %v", err)
	}
	for _, r := range report.Results {
		if r.Status != StatusOK {
			t.Errorf("%s status = %s (%s), want ok", r.Type, r.Status, r.Message)
		}
	}
	if !report.Ready() {
		t.Error("Ready() = false, want true")
	}

	mismatch := c.CheckDKIM(context.Background(), "example.com", "listmail", &other.PrivateKey.PublicKey)
	if mismatch.Status != StatusError {
		t.Errorf("DKIM with another key status = %s, want error", mismatch.Status)
	}

	if _, err := c.CheckSender(context.Background(), "bad!domain", "listmail", nil); err == nil {
		t.Error("CheckSender() with invalid domain should fail")
	}
}

func TestCheckRecords(t *testing.T) {
	resolver := &fakeResolver{
		txt: map[string][]string{
			"open.test":                 {"v=spf1 +all"},
			"twice.test":                {"v=spf1 mx -all", "v=spf1 a -all"},
			"_dmarc.open.test":          {"v=DMARC1; p=none"},
			"_dmarc.twice.test":         {"v=DMARC1"},
			"old._domainkey.open.test":  {"v=DKIM1; k=rsa; p="},
			"auto._domainkey.open.test": {"k=rsa; t=y"},
		},
	}
	c := NewChecker(resolver)
	ctx := context.Background()

	tests := []struct {
		name string
		got  CheckResult
		want Status
	}{
		{"spf plus all", c.CheckSPF(ctx, "open.test"), StatusWarning},
		{"spf twice", c.CheckSPF(ctx, "twice.test"), StatusError},
		{"spf missing", c.CheckSPF(ctx, "none.test"), StatusNotFound},
		{"dmarc none", c.CheckDMARC(ctx, "open.test"), StatusWarning},
		{"dmarc without policy", c.CheckDMARC(ctx, "twice.test"), StatusError},
		{"dmarc missing", c.CheckDMARC(ctx, "none.test"), StatusNotFound},
		{"dkim revoked", c.CheckDKIM(ctx, "open.test", "old", nil), StatusError},
		{"dkim without key", c.CheckDKIM(ctx, "open.test", "auto", nil), StatusError},
		{"dkim missing", c.CheckDKIM(ctx, "open.test", "none", nil), StatusNotFound},
		{"mx missing", c.CheckMX(ctx, "open.test"), StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Status != tt.want {
				t.Errorf("status = %s (%s), want %s", tt.got.Status, tt.got.Message, tt.want)
			}
		})
	}
}
