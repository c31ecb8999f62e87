// Package flash carries one-shot notices across a redirect in a signed cookie.
package flash

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/securecookie"
)

const cookieName = "listmail_flash"

// maxMessages bounds the cookie size when redirects pile notices up
const maxMessages = 5

// Notice levels
const (
	Success = "success"
	Warning = "warning"
	Error   = "error"
)

// Message is a single notice
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Store signs and reads flash cookies
type Store struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewStore derives the signing key from the session secret
func NewStore(secret string, secure bool) *Store {
	hashKey := sha256.Sum256([]byte("flash:" + secret))
	codec := securecookie.New(hashKey[:], nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(300)
	return &Store{codec: codec, secure: secure}
}

// Add appends a notice to the ones already pending for the next page
func (s *Store) Add(w http.ResponseWriter, r *http.Request, level, text string) {
	msgs := s.read(r)
	msgs = append(msgs, Message{Level: level, Text: text})
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	encoded, err := s.codec.Encode(cookieName, msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, s.cookie(encoded, 300))
}

// Pop returns the pending notices and clears them
func (s *Store) Pop(w http.ResponseWriter, r *http.Request) []Message {
	msgs := s.read(r)
	if len(msgs) > 0 {
		http.SetCookie(w, s.cookie("", -1))
	}
	return msgs
}

func (s *Store) read(r *http.Request) []Message {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := s.codec.Decode(cookieName, c.Value, &msgs); err != nil {
		return nil
	}
	return msgs
}

func (s *Store) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
