// Package credential holds the gateway's current upstream API credential
// and reloads it when its source file changes on disk.
//
// The mtime-poll-and-reparse idiom follows the Docker host auto-detection
// retry in agents/shared/docker/client.go: stat the source, compare against
// the last-seen mtime, and only reparse when it moves forward.
package credential

import (
	"os"
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindAPIKey     Kind = "api-key"
	KindOAuthToken Kind = "oauth-token"
)

// Credential is the header the adaptation server injects into outbound
// requests. It is never logged and never serialized.
type Credential struct {
	HeaderName  string
	HeaderValue string
	Kind        Kind
}

type Store struct {
	mu       sync.RWMutex
	path     string
	kind     Kind
	lastMod  time.Time
	current  *Credential
	lastWarn string
}

func NewStore(path string, kind Kind) *Store {
	return &Store{path: path, kind: kind}
}

// Current returns the live credential, or nil if none has ever been
// parsed successfully. It reparses the source file when its mtime has
// advanced since the last read.
func (s *Store) Current() *Credential {
	s.maybeReload()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastWarning returns the most recent reload warning, if any, for
// diagnostics.
func (s *Store) LastWarning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastWarn
}

func (s *Store) maybeReload() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.mu.Lock()
		s.lastWarn = "stat credentials file: " + err.Error()
		s.mu.Unlock()
		return
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.lastMod) && s.current != nil
	s.mu.RUnlock()
	if unchanged {
		return
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.mu.Lock()
		s.lastWarn = "read credentials file: " + err.Error()
		s.mu.Unlock()
		return
	}

	value := strings.TrimSpace(string(raw))
	if value == "" {
		s.mu.Lock()
		s.lastWarn = "credentials file is empty; keeping previous credential"
		s.mu.Unlock()
		return
	}

	cred := &Credential{Kind: s.kind}
	switch s.kind {
	case KindAPIKey:
		cred.HeaderName = "x-api-key"
		cred.HeaderValue = value
	case KindOAuthToken:
		cred.HeaderName = "Authorization"
		cred.HeaderValue = "Bearer " + value
	default:
		s.mu.Lock()
		s.lastWarn = "unknown credential kind; keeping previous credential"
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.current = cred
	s.lastMod = info.ModTime()
	s.lastWarn = ""
	s.mu.Unlock()
}
