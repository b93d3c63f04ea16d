package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCredFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "cred")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write cred file: %v", err)
	}
	return path
}

func TestCurrentReturnsNilBeforeAnyValidRead(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"), KindAPIKey)
	if s.Current() != nil {
		t.Fatalf("expected nil credential for missing file")
	}
}

func TestAPIKeyKindProducesXAPIKeyHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeCredFile(t, dir, "sk-ant-test-key\n")

	s := NewStore(path, KindAPIKey)
	cred := s.Current()
	if cred == nil {
		t.Fatalf("expected a credential")
	}
	if cred.HeaderName != "x-api-key" {
		t.Fatalf("HeaderName = %q", cred.HeaderName)
	}
	if cred.HeaderValue != "sk-ant-test-key" {
		t.Fatalf("HeaderValue = %q", cred.HeaderValue)
	}
}

func TestOAuthKindProducesBearerHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeCredFile(t, dir, "sk-ant-oat01-test\n")

	s := NewStore(path, KindOAuthToken)
	cred := s.Current()
	if cred == nil {
		t.Fatalf("expected a credential")
	}
	if cred.HeaderName != "Authorization" {
		t.Fatalf("HeaderName = %q", cred.HeaderName)
	}
	if cred.HeaderValue != "Bearer sk-ant-oat01-test" {
		t.Fatalf("HeaderValue = %q", cred.HeaderValue)
	}
}

func TestReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeCredFile(t, dir, "first-value")

	s := NewStore(path, KindAPIKey)
	if got := s.Current().HeaderValue; got != "first-value" {
		t.Fatalf("HeaderValue = %q, want first-value", got)
	}

	// Ensure the mtime actually advances on filesystems with coarse
	// resolution.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("second-value"), 0o600); err != nil {
		t.Fatalf("rewrite cred file: %v", err)
	}
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if got := s.Current().HeaderValue; got != "second-value" {
		t.Fatalf("HeaderValue after reload = %q, want second-value", got)
	}
}

func TestParseFailureKeepsPreviousCredential(t *testing.T) {
	dir := t.TempDir()
	path := writeCredFile(t, dir, "good-value")

	s := NewStore(path, KindAPIKey)
	if s.Current() == nil {
		t.Fatalf("expected an initial credential")
	}

	future := time.Now().Add(time.Second)
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("truncate cred file: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if got := s.Current().HeaderValue; got != "good-value" {
		t.Fatalf("credential should be unchanged after empty-file parse failure, got %q", got)
	}
}
