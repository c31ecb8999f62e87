package dkim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		selector string
		bits     int
		wantBits int
		wantErr  bool
	}{
		{name: "default size", domain: "example.com", selector: "listmail", wantBits: 2048},
		{name: "explicit size", domain: "example.com", selector: "listmail", bits: 1024, wantBits: 1024},
		{name: "too small", domain: "example.com", selector: "listmail", bits: 512, wantErr: true},
		{name: "missing selector", domain: "example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := GenerateKey(tt.domain, tt.selector, tt.bits)
			if tt.wantErr {
				if err == nil {
					t.Error("GenerateKey() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateKey() error = %v", err)
			}
			if got := kp.PrivateKey.N.BitLen(); got != tt.wantBits {
				t.Errorf("key size = %d, want %d", got, tt.wantBits)
			}
		})
	}
}

func TestDNSRecord(t *testing.T) {
	kp, err := GenerateKey("example.com", "mail", 0)
	if err != nil {
		t.Fatal(err)
	}

	if got := kp.DNSName(); got != "mail._domainkey.example.com" {
		t.Errorf("DNSName() = %q", got)
	}

	record := kp.DNSRecord()
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() = %q, want DKIM1 prefix", record)
	}

	chunks := kp.DNSRecordChunks()
	if len(chunks) < 2 {
		t.Fatalf("2048-bit record should need several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 255 {
			t.Errorf("chunk %d is %d bytes", i, len(c))
		}
	}
	if strings.Join(chunks, "") != record {
		t.Error("chunks do not reassemble into the record")
	}

	zone := kp.ZoneLine()
	if !strings.HasPrefix(zone, "mail._domainkey.example.com. IN TXT (") {
		t.Errorf("ZoneLine() = %q", zone)
	}
}

func TestSaveAndLoadPrivateKey(t *testing.T) {
	kp, err := GenerateKey("example.com", "listmail", 1024)
	if err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(t.TempDir(), "keys", "listmail.key")
	if err := kp.SavePrivateKey(keyPath); err != nil {
		t.Fatalf("SavePrivateKey() error = %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey() error = %v", err)
	}
	if loaded.N.Cmp(kp.PrivateKey.N) != 0 {
		t.Error("loaded key doesn't match original")
	}
}

func TestLoadPrivateKeyErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(bad, []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}
	wrongType := filepath.Join(dir, "cert.pem")
	if err := os.WriteFile(wrongType, []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/nonexistent/key.pem", bad, wrongType} {
		if _, err := LoadPrivateKey(path); err == nil {
			t.Errorf("LoadPrivateKey(%s) expected error", filepath.Base(path))
		}
	}
}
