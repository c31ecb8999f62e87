// Package tls provides the certificates of the web listener, either from
// PEM files or from Let's Encrypt.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/foxzi/listmail/internal/config"
)

// LoadCertificate loads TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ServerConfig builds the listener TLS configuration. The ACME manager is
// returned when certificates come from Let's Encrypt, since its challenge
// handler has to be served over plain HTTP. Both are nil when TLS is off.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, *ACMEManager, error) {
	switch {
	case !cfg.Enabled:
		return nil, nil, nil
	case cfg.ACME.Enabled:
		m := NewACMEManager(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir)
		return m.TLSConfig(), m, nil
	default:
		tc, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
		return tc, nil, err
	}
}

// CertificateInfo describes a certificate in use
type CertificateInfo struct {
	Domain    string
	Issuer    string
	DNSNames  []string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
}

func newCertificateInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Domain:    cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		DNSNames:  cert.DNSNames,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
	}
}

// GetCertificateInfo reads certificate info from a PEM file
func GetCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	info := newCertificateInfo(cert)
	return &info, nil
}
