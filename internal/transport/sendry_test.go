package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendryTransport(t *testing.T) {
	var got sendryRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/send" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		switch got.To[0] {
		case "rejected@example.org":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "recipient domain not allowed"})
		case "broken@example.org":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			json.NewEncoder(w).Encode(map[string]string{"id": "msg-1", "status": "queued"})
		}
	}))
	defer srv.Close()

	tr := NewSendryTransport(srv.URL+"/", "secret-key")
	ctx := context.Background()

	out, err := tr.Deliver(ctx, Envelope{Sender: "noreply@example.com", Recipient: "user@example.org", Subject: "S", Body: "B"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !out.Delivered || out.Response != "queued as msg-1 (queued)" {
		t.Errorf("Deliver() = %+v", out)
	}
	if auth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", auth)
	}
	if got.Subject != "S" || got.Body != "B" || got.From != "noreply@example.com" {
		t.Errorf("request = %+v", got)
	}

	out, err = tr.Deliver(ctx, Envelope{Recipient: "rejected@example.org"})
	if err != nil {
		t.Fatalf("Deliver(rejected) error = %v", err)
	}
	if out.Delivered || out.Response != "API error (HTTP 400): recipient domain not allowed" {
		t.Errorf("Deliver(rejected) = %+v", out)
	}

	if _, err := tr.Deliver(ctx, Envelope{Recipient: "broken@example.org"}); err == nil {
		t.Error("Deliver(5xx) should return an error")
	}
}
