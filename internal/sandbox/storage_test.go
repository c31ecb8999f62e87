package sandbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()

	msg := &Message{
		ID:         "test-123",
		From:       "sender@example.com",
		To:         "recipient@example.org",
		Subject:    "Test Subject",
		Data:       []byte("From: sender@example.com\r\nTo: recipient@example.org\r\nSubject: Test\r\n\r\nBody"),
		Domain:     "example.org",
		CapturedAt: time.Now(),
	}

	if err := storage.Save(ctx, msg); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}

	retrieved, err := storage.Get(ctx, "test-123")
	if err != nil {
		t.Fatalf("failed to get message: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected message, got nil")
	}
	if retrieved.To != msg.To {
		t.Errorf("expected To %s, got %s", msg.To, retrieved.To)
	}
	if string(retrieved.Data) != string(msg.Data) {
		t.Error("message data mismatch")
	}

	missing, err := storage.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(nope) = %v, %v, want nil, nil", missing, err)
	}
}

func TestStorageListAndStats(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	msgs := []*Message{
		{ID: "1", To: "a@example.org", Domain: "example.org", CapturedAt: base},
		{ID: "2", To: "b@fail.test", Domain: "fail.test", CapturedAt: base.Add(time.Minute), SimulatedErr: "550 rejected"},
		{ID: "3", To: "c@example.org", Domain: "example.org", CapturedAt: base.Add(2 * time.Minute)},
	}
	for _, m := range msgs {
		if err := storage.Save(ctx, m); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	all, err := storage.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "3" {
		t.Fatalf("List() = %d messages, first %v, want 3 newest first", len(all), all[0].ID)
	}

	failed := true
	onlyFailed, _ := storage.List(ctx, ListFilter{Failed: &failed})
	if len(onlyFailed) != 1 || onlyFailed[0].ID != "2" {
		t.Errorf("List(failed) = %v, want message 2", onlyFailed)
	}

	byDomain, _ := storage.List(ctx, ListFilter{Domain: "example.org", Limit: 1})
	if len(byDomain) != 1 || byDomain[0].ID != "3" {
		t.Errorf("List(domain, limit 1) = %v, want message 3", byDomain)
	}

	paged, _ := storage.List(ctx, ListFilter{Offset: 2})
	if len(paged) != 1 || paged[0].ID != "1" {
		t.Errorf("List(offset 2) = %v, want message 1", paged)
	}

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Failed != 1 || stats.ByDomain["example.org"] != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	n, err := storage.Clear(ctx, 0)
	if err != nil || n != 3 {
		t.Errorf("Clear() = %d, %v, want 3", n, err)
	}
}
