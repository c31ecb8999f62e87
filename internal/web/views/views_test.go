package views

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/web/flash"
)

func TestNewParsesAllPages(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	pages := []string{
		"login", "register", "dashboard", "recipients", "recipient", "recipient_form",
		"messages", "message", "message_form", "mailings", "mailing", "mailing_form",
		"users", "profile", "error",
	}
	for _, name := range pages {
		if _, ok := e.templates[name]; !ok {
			t.Errorf("template %q not loaded", name)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Render(&bytes.Buffer{}, "missing", &Page{}); err == nil {
		t.Error("Render() expected error for unknown template")
	}
}

func TestRenderMailing(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	user := &models.User{ID: "u1", Email: "owner@example.com", Role: models.RoleUser}
	page := &Page{
		Title:   "Mailing #7",
		User:    user,
		Access:  access.Resolve(access.ActorFromUser(user)),
		Flashes: []flash.Message{{Level: flash.Success, Text: "Mailing #7 finished: 1 succeeded, 1 failed"}},
		Data: map[string]any{
			"Mailing": &models.Mailing{
				ID:             7,
				Status:         models.MailingFinished,
				MessageSubject: "Hello <world>",
				StartTime:      time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
			},
			"CanDispatch": true,
			"Attempts": []models.MailingAttempt{
				{RecipientEmail: "a@example.com", Status: models.AttemptFail, ServerResponse: strings.Repeat("x", 120)},
			},
		},
	}

	var buf bytes.Buffer
	if err := e.Render(&buf, "mailing", page); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Mailing #7",
		"Hello &lt;world&gt;",
		"1 succeeded, 1 failed",
		"a@example.com",
		strings.Repeat("x", 80) + "…",
		"disabled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(RenderMarkdown("# Title\n\nline one\nline two <script>"))
	if !strings.Contains(got, "<h1>Title</h1>") {
		t.Errorf("RenderMarkdown() = %q, want heading", got)
	}
	if !strings.Contains(got, "<br") {
		t.Errorf("RenderMarkdown() = %q, want hard wrap", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("RenderMarkdown() = %q, raw HTML must not pass through", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer string", 8, "a longer…"},
		{"привет мир", 6, "привет…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNewPager(t *testing.T) {
	q := url.Values{"q": {"a&b"}}

	p := NewPager("/recipients", q, 2, 10, 35)
	if p.Pages != 4 {
		t.Errorf("Pages = %d, want 4", p.Pages)
	}
	if p.PrevURL != "/recipients?page=1&q=a%26b" {
		t.Errorf("PrevURL = %q", p.PrevURL)
	}
	if p.NextURL != "/recipients?page=3&q=a%26b" {
		t.Errorf("NextURL = %q", p.NextURL)
	}

	last := NewPager("/recipients", nil, 1, 10, 0)
	if last.Pages != 1 || last.PrevURL != "" || last.NextURL != "" {
		t.Errorf("empty pager = %+v, want one page without links", last)
	}
}
