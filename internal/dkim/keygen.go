package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKeyBits is the RSA key size used when none is requested
const DefaultKeyBits = 2048

// txtChunkSize is the longest character-string a single TXT record part may hold
const txtChunkSize = 255

// KeyPair is a signing key together with where its public half is published
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	Domain     string
	Selector   string
}

// GenerateKey creates an RSA key for the sending domain. bits of 0 selects
// DefaultKeyBits; keys shorter than 1024 bits are refused by receivers.
func GenerateKey(domain, selector string, bits int) (*KeyPair, error) {
	if domain == "" || selector == "" {
		return nil, fmt.Errorf("domain and selector are required")
	}
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < 1024 {
		return nil, fmt.Errorf("key size %d is too small, use at least 1024 bits", bits)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeyPair{PrivateKey: privateKey, Domain: domain, Selector: selector}, nil
}

// SavePrivateKey writes the key as PKCS#1 PEM readable only by the owner
func (kp *KeyPair) SavePrivateKey(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// DNSName is the owner name of the TXT record, e.g. mail._domainkey.example.com
func (kp *KeyPair) DNSName() string {
	return fmt.Sprintf("%s._domainkey.%s", kp.Selector, kp.Domain)
}

// DNSRecord is the TXT record value publishing the public key
func (kp *KeyPair) DNSRecord() string {
	pub, err := x509.MarshalPKIXPublicKey(&kp.PrivateKey.PublicKey)
	if err != nil {
		return ""
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)
}

// DNSRecordChunks splits the record into parts that fit a TXT
// character-string, in the order they must be published.
func (kp *KeyPair) DNSRecordChunks() []string {
	record := kp.DNSRecord()
	var chunks []string
	for len(record) > txtChunkSize {
		chunks = append(chunks, record[:txtChunkSize])
		record = record[txtChunkSize:]
	}
	return append(chunks, record)
}

// ZoneLine renders the record as a BIND zone file line
func (kp *KeyPair) ZoneLine() string {
	line := kp.DNSName() + ". IN TXT ("
	for _, c := range kp.DNSRecordChunks() {
		line += fmt.Sprintf(" %q", c)
	}
	return line + " )"
}

// LoadPrivateKey reads an RSA key in PKCS#1 or PKCS#8 PEM form
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block in %s", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not RSA", path)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
