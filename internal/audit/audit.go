// Package audit implements the gateway's append-only structured audit
// log (spec.md §4.8), resolving the spec's audit-sink Open Question as
// append-only JSON Lines (SPEC_FULL.md §9).
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Entry is one structured record of an authorization decision. It never
// carries the raw session token, user content, diff content, or a
// credential value — only the session hash prefix.
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id"`
	SessionHashPrefix string   `json:"session_hash_prefix"`
	ContainerID      string    `json:"container_id"`
	Operation        string    `json:"operation"`
	Target           string    `json:"target"`
	Decision         Decision  `json:"decision"`
	Reason           string    `json:"reason"`
	SourceIP         string    `json:"source_ip"`
}

// Logger appends one JSON record per line to a file under state-dir.
// Guarded by its own lock per spec.md §5's fixed lock-acquisition order
// (session -> rate-limit -> policy -> audit).
type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func NewLogger(stateDir string) (*Logger, error) {
	path := filepath.Join(stateDir, "audit.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, enc: json.NewEncoder(f)}, nil
}

func (l *Logger) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(e)
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// TailLines returns up to n of the most recent raw JSONL lines, for the
// admin introspection listener's /admin/audit/tail endpoint. It is a
// plain read, not a query index: audit.log is expected to stay small
// enough for this to be acceptable for an operator debugging aid.
func (l *Logger) TailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitNonEmptyLines(string(data))
	if n <= 0 || n >= len(lines) {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if line := s[start:i]; line != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	if start < len(s) {
		if line := s[start:]; line != "" {
			out = append(out, line)
		}
	}
	return out
}
