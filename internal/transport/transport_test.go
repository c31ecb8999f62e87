package transport

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestOutcomeDefaults(t *testing.T) {
	if got := Sent(""); !got.Delivered || got.Response != ResponseSent {
		t.Errorf("Sent(\"\") = %+v, want delivered with %q", got, ResponseSent)
	}
	if got := Sent("250 ok"); got.Response != "250 ok" {
		t.Errorf("Sent(250 ok).Response = %q", got.Response)
	}
	if got := Failed(""); got.Delivered || got.Response != ResponseFailed {
		t.Errorf("Failed(\"\") = %+v, want failed with %q", got, ResponseFailed)
	}
	if got := Failed("550 no such user"); got.Response != "550 no such user" {
		t.Errorf("Failed(550).Response = %q", got.Response)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, env Envelope) (Outcome, error) {
		select {
		case <-time.After(time.Second):
			return Sent(""), nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	})
	fast := Func(func(ctx context.Context, env Envelope) (Outcome, error) {
		return Sent("fast"), nil
	})
	panicking := Func(func(ctx context.Context, env Envelope) (Outcome, error) {
		panic("boom")
	})

	t.Run("expired", func(t *testing.T) {
		out, err := WithTimeout(slow, 20*time.Millisecond).Deliver(context.Background(), Envelope{})
		if err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
		if out.Delivered || !strings.Contains(out.Response, "timed out after 20ms") {
			t.Errorf("Deliver() = %+v, want timeout failure", out)
		}
	})

	t.Run("in time", func(t *testing.T) {
		out, err := WithTimeout(fast, time.Second).Deliver(context.Background(), Envelope{})
		if err != nil || !out.Delivered || out.Response != "fast" {
			t.Errorf("Deliver() = %+v, %v, want fast success", out, err)
		}
	})

	t.Run("cancelled parent", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := WithTimeout(slow, time.Second).Deliver(ctx, Envelope{})
		if err == nil {
			t.Error("Deliver() with cancelled context should return an error")
		}
	})

	t.Run("panic", func(t *testing.T) {
		_, err := WithTimeout(panicking, time.Second).Deliver(context.Background(), Envelope{})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("Deliver() error = %v, want panic error", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		tr := WithTimeout(fast, 0)
		if _, ok := tr.(Func); !ok {
			t.Errorf("WithTimeout(0) = %T, want the original transport", tr)
		}
	})
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
