package transport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/listmail/internal/sandbox"
)

func TestSandboxTransport(t *testing.T) {
	storage, err := sandbox.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("sandbox.Open() error = %v", err)
	}
	defer storage.Close()

	tr := NewSandboxTransport(storage, []string{"Fail.Test"})
	ctx := context.Background()

	out, err := tr.Deliver(ctx, Envelope{Sender: "noreply@example.com", Recipient: "ok@example.org", Subject: "Hi", Body: "Body"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !out.Delivered || !strings.HasPrefix(out.Response, "captured in sandbox as ") {
		t.Errorf("Deliver(ok) = %+v, want captured", out)
	}

	out, err = tr.Deliver(ctx, Envelope{Sender: "noreply@example.com", Recipient: "bad@fail.test", Subject: "Hi"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out.Delivered || !strings.HasPrefix(out.Response, "550 5.1.1 <bad@fail.test>") {
		t.Errorf("Deliver(fail domain) = %+v, want simulated rejection", out)
	}

	captured, err := storage.List(ctx, sandbox.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("captured %d messages, want 2", len(captured))
	}

	ok, _ := storage.List(ctx, sandbox.ListFilter{To: "ok@example.org"})
	full, _ := storage.Get(ctx, ok[0].ID)
	if full == nil || !strings.Contains(string(full.Data), "Subject: Hi") {
		t.Error("captured message should contain the rendered message")
	}
}
