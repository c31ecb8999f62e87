package transport

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/foxzi/listmail/internal/email"
	"github.com/google/uuid"
)

// BuildMessage renders an envelope as an RFC 5322 plain-text message
func BuildMessage(env Envelope, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	domain := email.ExtractDomainOrDefault(env.Sender, "localhost")
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

	writeHeader(&buf, "From", env.Sender)
	writeHeader(&buf, "To", env.Recipient)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", env.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(normalizeNewlines(env.Body))); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	// Header values must not smuggle extra headers.
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
