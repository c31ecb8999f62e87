package mailing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/listmail/internal/db"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/transport"
)

// sqliteMailing creates a created mailing with the given recipients in a
// fresh database.
func sqliteMailing(t *testing.T, emails ...string) (*db.DB, int64) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	owner := &models.User{Email: "owner@example.com", PasswordHash: "hash"}
	if err := repository.NewUserRepository(database.DB).Create(owner); err != nil {
		t.Fatal(err)
	}

	var ids []int64
	for _, e := range emails {
		rc := &models.Recipient{Email: e, OwnerID: owner.ID}
		if err := repository.NewRecipientRepository(database.DB).Create(rc); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rc.ID)
	}

	msg := &models.Message{Subject: "Newsletter", Body: "Hello", OwnerID: owner.ID}
	if err := repository.NewMessageRepository(database.DB).Create(msg); err != nil {
		t.Fatal(err)
	}

	m := &models.Mailing{
		StartTime: time.Now().UTC(),
		EndTime:   time.Now().UTC().Add(time.Hour),
		MessageID: msg.ID,
		OwnerID:   owner.ID,
	}
	if err := repository.NewMailingRepository(database.DB).Create(m, ids); err != nil {
		t.Fatal(err)
	}
	return database, m.ID
}

func TestDispatchWithSQLite(t *testing.T) {
	database, id := sqliteMailing(t, "c@example.com", "a@example.com", "b@bad.test")

	var mu sync.Mutex
	var order []string
	tr := transport.Func(func(_ context.Context, env transport.Envelope) (transport.Outcome, error) {
		mu.Lock()
		order = append(order, env.Recipient)
		mu.Unlock()
		if env.Recipient == "b@bad.test" {
			return transport.Failed("550 no such user"), nil
		}
		return transport.Sent(""), nil
	})

	d := NewDispatcher(repository.NewDispatchStore(database.DB), tr, "", testLogger())
	result, err := d.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.SuccessCount != 2 || result.FailCount != 1 {
		t.Errorf("result = %+v, want 2/1", result)
	}

	// Recipients are sent in id order, which is insertion order.
	want := []string{"c@example.com", "a@example.com", "b@bad.test"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("send order = %v, want %v", order, want)
		}
	}

	m, err := repository.NewMailingRepository(database.DB).GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != models.MailingFinished {
		t.Errorf("status = %s, want finished", m.Status)
	}

	attempts, total, err := repository.NewAttemptRepository(database.DB).List(models.AttemptFilter{MailingID: id})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("attempts = %d, want 3", total)
	}
	if attempts[2].Status != models.AttemptFail || attempts[2].ServerResponse != "550 no such user" {
		t.Errorf("third attempt = %+v", attempts[2])
	}

	// A second run is rejected and writes nothing.
	if _, err := d.Dispatch(context.Background(), id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Dispatch() error = %v, want ErrInvalidTransition", err)
	}
	if _, total, _ := repository.NewAttemptRepository(database.DB).List(models.AttemptFilter{MailingID: id}); total != 3 {
		t.Errorf("attempts after rejected run = %d, want 3", total)
	}

	if _, err := d.Dispatch(context.Background(), 999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Dispatch(999999) error = %v, want ErrNotFound", err)
	}
}

func TestDispatchWithSQLiteConcurrent(t *testing.T) {
	database, id := sqliteMailing(t, "a@example.com", "b@example.com")
	store := repository.NewDispatchStore(database.DB)

	release := make(chan struct{})
	tr := transport.Func(func(ctx context.Context, env transport.Envelope) (transport.Outcome, error) {
		<-release
		return transport.Sent(""), nil
	})
	d := NewDispatcher(store, tr, "", testLogger())

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), id)
			errs <- err
		}()
	}

	// Losers return without touching the transport.
	rejected := 0
	for rejected < callers-1 {
		err := <-errs
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Dispatch() error = %v, want ErrInvalidTransition", err)
		}
		rejected++
	}
	close(release)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		t.Fatalf("winning Dispatch() error = %v", err)
	}

	_, total, err := repository.NewAttemptRepository(database.DB).List(models.AttemptFilter{MailingID: id})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("attempts = %d, want 2", total)
	}
}

func TestDispatchWithSQLiteMailingRemovedMidRun(t *testing.T) {
	database, id := sqliteMailing(t, "a@example.com", "b@example.com")

	sends := 0
	tr := transport.Func(func(context.Context, transport.Envelope) (transport.Outcome, error) {
		sends++
		if sends == 1 {
			// The repository refuses; only a raw delete gets through.
			if err := repository.NewMailingRepository(database.DB).Delete(id); !errors.Is(err, repository.ErrMailingInProgress) {
				t.Errorf("Delete(started) error = %v, want ErrMailingInProgress", err)
			}
			if _, err := database.DB.Exec("DELETE FROM mailings WHERE id = ?", id); err != nil {
				t.Errorf("raw delete error = %v", err)
			}
		}
		return transport.Sent(""), nil
	})

	result, err := NewDispatcher(repository.NewDispatchStore(database.DB), tr, "", testLogger()).Dispatch(context.Background(), id)
	if !errors.Is(err, ErrFinishFailed) || errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Dispatch() error = %v, want ErrFinishFailed only", err)
	}
	if sends != 2 || result == nil || result.SuccessCount != 2 {
		t.Errorf("sends = %d, result = %+v, want both recipients sent", sends, result)
	}
}
