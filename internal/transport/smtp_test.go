package transport

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/dkim"
)

type capturedMail struct {
	from string
	to   []string
	data []byte
}

type testBackend struct {
	mu       sync.Mutex
	received []capturedMail
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b}, nil
}

func (b *testBackend) messages() []capturedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedMail(nil), b.received...)
}

type testSession struct {
	backend *testBackend
	mail    capturedMail
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	s.mail.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if strings.HasSuffix(to, "@rejected.test") {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "mailbox unavailable",
		}
	}
	s.mail.to = append(s.mail.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mail.data = data
	s.backend.mu.Lock()
	s.backend.received = append(s.backend.received, s.mail)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.mail = capturedMail{}
}

func (s *testSession) Logout() error {
	return nil
}

func startTestServer(t *testing.T) (*testBackend, config.SMTPTransportConfig) {
	t.Helper()

	backend := &testBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, port, _ := net.SplitHostPort(l.Addr().String())
	p, _ := strconv.Atoi(port)
	return backend, config.SMTPTransportConfig{
		Host:      host,
		Port:      p,
		Security:  config.SecurityNone,
		HelloName: "listmail.test",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMTPTransportDeliver(t *testing.T) {
	backend, cfg := startTestServer(t)
	tr := NewSMTPTransport(cfg, nil, testLogger())

	out, err := tr.Deliver(context.Background(), Envelope{
		Sender:    "Mailer <noreply@example.com>",
		Recipient: "user@example.org",
		Subject:   "Hello",
		Body:      "Line one\nLine two",
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !out.Delivered || out.Response != ResponseSent {
		t.Errorf("Deliver() = %+v, want sent", out)
	}

	got := backend.messages()
	if len(got) != 1 {
		t.Fatalf("server received %d messages, want 1", len(got))
	}
	if got[0].from != "noreply@example.com" {
		t.Errorf("MAIL FROM = %q, want bare address", got[0].from)
	}
	if len(got[0].to) != 1 || got[0].to[0] != "user@example.org" {
		t.Errorf("RCPT TO = %v", got[0].to)
	}
	if !bytes.Contains(got[0].data, []byte("Line one\r\nLine two")) {
		t.Errorf("message body not delivered: %q", got[0].data)
	}
}

func TestSMTPTransportRejected(t *testing.T) {
	backend, cfg := startTestServer(t)
	tr := NewSMTPTransport(cfg, nil, testLogger())

	out, err := tr.Deliver(context.Background(), Envelope{
		Sender:    "noreply@example.com",
		Recipient: "nobody@rejected.test",
		Subject:   "Hello",
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v, want failed outcome", err)
	}
	if out.Delivered {
		t.Fatal("Deliver() should not report delivery for a rejected recipient")
	}
	if !strings.HasPrefix(out.Response, "550 ") || !strings.Contains(out.Response, "mailbox unavailable") {
		t.Errorf("Response = %q, want server reply", out.Response)
	}
	if len(backend.messages()) != 0 {
		t.Error("rejected message should not reach DATA")
	}
}

func TestSMTPTransportConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()

	p, _ := strconv.Atoi(port)
	tr := NewSMTPTransport(config.SMTPTransportConfig{Host: host, Port: p, Security: config.SecurityNone}, nil, testLogger())

	if _, err := tr.Deliver(context.Background(), Envelope{Sender: "a@example.com", Recipient: "b@example.org"}); err == nil {
		t.Error("Deliver() expected connection error")
	}
}

func TestSMTPTransportSignsMessages(t *testing.T) {
	backend, cfg := startTestServer(t)

	kp, err := dkim.GenerateKey("example.com", "listmail", 1024)
	if err != nil {
		t.Fatal(err)
	}
	signer := dkim.NewSigner(kp.PrivateKey, kp.Domain, kp.Selector)
	tr := NewSMTPTransport(cfg, signer, testLogger())

	if _, err := tr.Deliver(context.Background(), Envelope{
		Sender:    "noreply@example.com",
		Recipient: "user@example.org",
		Subject:   "Signed",
		Body:      "Body",
	}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got := backend.messages()
	if len(got) != 1 {
		t.Fatalf("server received %d messages, want 1", len(got))
	}
	if !bytes.HasPrefix(got[0].data, []byte("DKIM-Signature:")) {
		t.Error("delivered message should carry a DKIM-Signature header")
	}
	if !bytes.Contains(got[0].data, []byte("d=example.com")) {
		t.Error("signature should name the signing domain")
	}
}

// selfSignedTLS returns a server config for 127.0.0.1 and a pool trusting it
func selfSignedTLS(t *testing.T) (*tls.Config, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}},
	}, pool
}

func startTLSTestServer(t *testing.T, implicit bool) (*testBackend, config.SMTPTransportConfig, *x509.CertPool) {
	t.Helper()

	serverTLS, pool := selfSignedTLS(t)
	backend := &testBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.TLSConfig = serverTLS

	var l net.Listener
	var err error
	security := config.SecurityStartTLS
	if implicit {
		l, err = tls.Listen("tcp", "127.0.0.1:0", serverTLS)
		security = config.SecurityTLS
	} else {
		l, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, port, _ := net.SplitHostPort(l.Addr().String())
	p, _ := strconv.Atoi(port)
	return backend, config.SMTPTransportConfig{
		Host:      host,
		Port:      p,
		Security:  security,
		HelloName: "listmail.test",
	}, pool
}

func TestSMTPTransportEncrypted(t *testing.T) {
	tests := []struct {
		name     string
		implicit bool
	}{
		{"starttls", false},
		{"tls", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, cfg, pool := startTLSTestServer(t, tt.implicit)
			tr := NewSMTPTransport(cfg, nil, testLogger())
			tr.tlsConfig.RootCAs = pool

			out, err := tr.Deliver(context.Background(), Envelope{
				Sender:    "noreply@example.com",
				Recipient: "user@example.org",
				Subject:   "Encrypted",
				Body:      "Body",
			})
			if err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if !out.Delivered {
				t.Errorf("Deliver() = %+v, want sent", out)
			}
			if got := backend.messages(); len(got) != 1 {
				t.Fatalf("server received %d messages, want 1", len(got))
			}
		})
	}
}

func TestSMTPTransportStartTLSUntrusted(t *testing.T) {
	backend, cfg, _ := startTLSTestServer(t, false)
	tr := NewSMTPTransport(cfg, nil, testLogger())

	_, err := tr.Deliver(context.Background(), Envelope{Sender: "a@example.com", Recipient: "b@example.org"})
	if err == nil {
		t.Error("Deliver() should fail on an untrusted certificate")
	}
	if len(backend.messages()) != 0 {
		t.Error("nothing should be sent over an unverified connection")
	}
}

func TestSMTPTransportStartTLSUnsupported(t *testing.T) {
	_, cfg := startTestServer(t)
	cfg.Security = config.SecurityStartTLS
	tr := NewSMTPTransport(cfg, nil, testLogger())

	if _, err := tr.Deliver(context.Background(), Envelope{Sender: "a@example.com", Recipient: "b@example.org"}); err == nil {
		t.Error("Deliver() should fail when the server does not offer STARTTLS")
	}
}
