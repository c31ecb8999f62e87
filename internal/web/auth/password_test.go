package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid", password: "correct horse battery"},
		{name: "too short", password: "short", wantErr: true},
		{name: "multibyte counts runes", password: "пароль-длинный"},
		{name: "too long", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password, 10)
			if tt.wantErr {
				if err == nil {
					t.Error("HashPassword() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("HashPassword() error = %v", err)
			}
			if err := CheckPassword(hash, tt.password); err != nil {
				t.Errorf("CheckPassword() error = %v", err)
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery", 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := CheckPassword(hash, "wrong password!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword(no hash) error = %v, want ErrInvalidCredentials", err)
	}
}
