package session

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

const persistVersion = 1

// persistedRow is the on-disk shape of one session row. Only the hash is
// ever written — raw tokens are memory-only, per spec.md §3 invariant (iv).
type persistedRow struct {
	TokenHash   string    `json:"token_hash"`
	ContainerID string    `json:"container_id"`
	ContainerIP string    `json:"container_ip"`
	Mode        Mode      `json:"mode"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type persistedFile struct {
	Version  int            `json:"version"`
	SavedAt  time.Time      `json:"saved_at"`
	Sessions []persistedRow `json:"sessions"`
}

// Manager is a thread-safe registry of container-to-session bindings. A
// single mutex protects the table, matching session_manager.py's global
// lock discipline. The mutex is not reentrant: helpers with a Locked
// suffix expect the caller to already hold it.
type Manager struct {
	mu         sync.Mutex
	byHash     map[string]*Session
	path       string
	defaultTTL time.Duration
	logger     *log.Logger
}

func NewManager(stateDir string, defaultTTL time.Duration, logger *log.Logger) *Manager {
	if defaultTTL == 0 {
		defaultTTL = DefaultTTLHours * time.Hour
	}
	m := &Manager{
		byHash:     make(map[string]*Session),
		path:       filepath.Join(stateDir, "sessions.json"),
		defaultTTL: defaultTTL,
		logger:     logger,
	}
	m.loadFromDisk()
	return m
}

// Register creates and persists a new session, returning the raw token
// exactly once — it is never retrievable again.
func (m *Manager) Register(containerID, containerIP string, mode Mode) (string, Session, error) {
	if mode != ModePrivate && mode != ModePublic {
		return "", Session{}, gatewayerr.New(gatewayerr.InvalidMode, "mode must be private or public")
	}

	raw, hash, err := generateToken()
	if err != nil {
		return "", Session{}, gatewayerr.New(gatewayerr.Internal, "token generation failed")
	}

	now := time.Now().UTC()
	sess := &Session{
		TokenHash:   hash,
		ContainerID: containerID,
		ContainerIP: containerIP,
		Mode:        mode,
		CreatedAt:   now,
		LastSeen:    now,
		ExpiresAt:   now.Add(m.defaultTTL),
	}

	m.mu.Lock()
	m.byHash[hash] = sess
	m.saveLocked()
	out := *sess
	m.mu.Unlock()

	return raw, out, nil
}

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	Valid   bool
	Session Session
}

// Validate looks up a session by its raw token's hash, checks expiry and
// IP binding, and heartbeats on success.
func (m *Manager) Validate(rawToken, sourceIP string) (ValidateResult, error) {
	if rawToken == "" {
		return ValidateResult{}, gatewayerr.New(gatewayerr.Unauthorized, "missing token")
	}
	hash := hashToken(rawToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byHash[hash]
	if !ok || !constantTimeEqual(sess.TokenHash, hash) {
		return ValidateResult{}, gatewayerr.New(gatewayerr.Unauthorized, "invalid or unknown session token")
	}

	now := time.Now().UTC()
	if sess.isExpired(now) {
		delete(m.byHash, hash)
		m.saveLocked()
		return ValidateResult{}, gatewayerr.New(gatewayerr.Expired, "session has expired")
	}

	if sourceIP != "" && sourceIP != sess.ContainerIP {
		return ValidateResult{}, gatewayerr.New(gatewayerr.IPMismatch, "session-container binding verification failed")
	}

	sess.extendTTL(now, m.defaultTTL)
	m.saveLocked()
	return ValidateResult{Valid: true, Session: *sess}, nil
}

func (m *Manager) GetByContainer(containerID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byHash {
		if s.ContainerID == containerID {
			return *s, true
		}
	}
	return Session{}, false
}

func (m *Manager) GetByIP(ip string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byHash {
		if s.ContainerIP == ip {
			return *s, true
		}
	}
	return Session{}, false
}

func (m *Manager) Delete(rawToken string) error {
	hash := hashToken(rawToken)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[hash]; !ok {
		return gatewayerr.New(gatewayerr.NotFound, "session not found")
	}
	delete(m.byHash, hash)
	m.saveLocked()
	return nil
}

func (m *Manager) DeleteByContainer(containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found string
	for hash, s := range m.byHash {
		if s.ContainerID == containerID {
			found = hash
			break
		}
	}
	if found == "" {
		return gatewayerr.New(gatewayerr.NotFound, "session not found")
	}
	delete(m.byHash, found)
	m.saveLocked()
	return nil
}

// PruneExpired removes every session whose TTL has passed and persists
// once. Idempotent: a second call with no intervening activity removes
// nothing further.
func (m *Manager) PruneExpired() int {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for hash, s := range m.byHash {
		if s.isExpired(now) {
			delete(m.byHash, hash)
			removed++
		}
	}
	if removed > 0 {
		m.saveLocked()
	}
	return removed
}

func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.byHash))
	for _, s := range m.byHash {
		out = append(out, s.summary())
	}
	return out
}

func (m *Manager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.byHash)
	m.byHash = make(map[string]*Session)
	m.saveLocked()
	return n
}

// saveLocked writes the table atomically (temp file + rename, mode 0600)
// per spec.md §4.2 and the original source's _save_to_disk discipline.
// Callers must hold m.mu. Persistence failures are logged, never
// propagated: a later successful save recovers.
func (m *Manager) saveLocked() {
	rows := make([]persistedRow, 0, len(m.byHash))
	for _, s := range m.byHash {
		rows = append(rows, persistedRow{
			TokenHash:   s.TokenHash,
			ContainerID: s.ContainerID,
			ContainerIP: s.ContainerIP,
			Mode:        s.Mode,
			CreatedAt:   s.CreatedAt,
			LastSeen:    s.LastSeen,
			ExpiresAt:   s.ExpiresAt,
		})
	}
	file := persistedFile{Version: persistVersion, SavedAt: time.Now().UTC(), Sessions: rows}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		m.logf("marshal session table: %v", err)
		return
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		m.logf("create temp session file: %v", err)
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		m.logf("write temp session file: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		m.logf("close temp session file: %v", err)
		return
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		m.logf("chmod temp session file: %v", err)
		return
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		m.logf("rename session file: %v", err)
		return
	}
}

// loadFromDisk reads the persisted table at startup, discarding expired
// rows. A missing or corrupted file is treated as an empty table.
func (m *Manager) loadFromDisk() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logf("read session file: %v", err)
		}
		return
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		m.logf("corrupted session file, starting empty: %v", err)
		return
	}

	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range file.Sessions {
		if now.After(row.ExpiresAt) {
			continue
		}
		m.byHash[row.TokenHash] = &Session{
			TokenHash:   row.TokenHash,
			ContainerID: row.ContainerID,
			ContainerIP: row.ContainerIP,
			Mode:        row.Mode,
			CreatedAt:   row.CreatedAt,
			LastSeen:    row.LastSeen,
			ExpiresAt:   row.ExpiresAt,
		}
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
