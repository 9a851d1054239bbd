// Package session persists the credentials obtained at sign-in so later
// commands and the mount daemon can reach the server without prompting.
package session

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidDSN     = errors.New("invalid session dsn")
	ErrUnknownBackend = errors.New("unknown session backend")
)

// Session is what a successful sign-in leaves behind. MasterKey and AuthKey
// are kept for codecs that decrypt payloads.
type Session struct {
	Server    string    `json:"server"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	Version   string    `json:"version"`
	MasterKey string    `json:"master_key,omitempty"`
	AuthKey   string    `json:"auth_key,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether the session can authenticate requests.
func (s *Session) Valid() bool {
	return s != nil && strings.TrimSpace(s.Token) != ""
}

// Store loads and saves a single session. Load returns nil, nil when nothing
// has been saved yet.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// Close releases resources held by stores that own connections.
func Close(store Store) error {
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
