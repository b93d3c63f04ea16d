// Package config loads the gateway's configuration surface (spec.md §6).
//
// Scalar settings load from the environment, in the same style as
// apps/ReleaseParty/backend/internal/config: a small env() helper with
// defaults, and required fields reported as errors rather than panics. The
// list/map-shaped settings (trusted branch owners, per-class rate limits)
// additionally accept an optional YAML overlay file, since those don't fit
// a flat env-var model cleanly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RateLimits struct {
	GitPush          int `yaml:"git_push"`
	PRMutation       int `yaml:"pr_mutation"`
	BranchOperation  int `yaml:"branch_operation"`
	CredentialAccess int `yaml:"credential_access"`
	LogAccess        int `yaml:"log_access"`
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		GitPush:          200,
		PRMutation:       50,
		BranchOperation:  100,
		CredentialAccess: 20,
		LogAccess:        500,
	}
}

// overlay is the shape of the optional YAML config file.
type overlay struct {
	TrustedBranchOwners []string   `yaml:"trusted_branch_owners"`
	AgentIdentities     []string   `yaml:"agent_identities"`
	AgentBranchPrefixes []string   `yaml:"agent_branch_prefixes"`
	RateLimits          RateLimits `yaml:"rate_limits"`
}

type Config struct {
	ListenControl    string
	ListenAdaptation string
	AdminListen      string

	SessionTTL time.Duration
	StateDir   string

	UpstreamHost    string
	CredentialsFile string
	CredentialKind  string // "api-key" or "oauth-token"

	TrustedBranchOwners map[string]struct{}
	AgentIdentities     []string
	AgentBranchPrefixes []string
	IncognitoUser       string

	LauncherSecret string

	RateLimits RateLimits

	GitHubAppID            int64
	GitHubInstallationID   int64
	GitHubPrivateKeyPath   string
}

func Load() (Config, error) {
	ttlHours, err := strconv.Atoi(env("SESSION_TTL_HOURS", "24"))
	if err != nil {
		return Config{}, fmt.Errorf("session-ttl-hours: %w", err)
	}

	cfg := Config{
		ListenControl:       env("LISTEN_CONTROL", "127.0.0.1:8443"),
		ListenAdaptation:    env("LISTEN_ADAPTATION", "127.0.0.1:1344"),
		AdminListen:         env("ADMIN_LISTEN", "127.0.0.1:8444"),
		SessionTTL:          time.Duration(ttlHours) * time.Hour,
		StateDir:            env("STATE_DIR", "/var/lib/gateway-sidecar"),
		UpstreamHost:        env("UPSTREAM_HOST", "api.anthropic.com"),
		CredentialsFile:     env("CREDENTIALS_FILE", ""),
		CredentialKind:      env("CREDENTIAL_KIND", "oauth-token"),
		IncognitoUser:       env("INCOGNITO_USER", ""),
		LauncherSecret:      env("LAUNCHER_SECRET", ""),
		RateLimits:          DefaultRateLimits(),
		TrustedBranchOwners: map[string]struct{}{},
		AgentIdentities:     []string{"agent", "agent[bot]", "app/agent", "apps/agent"},
		AgentBranchPrefixes: []string{"agent-", "agent/"},
	}

	for _, name := range splitCSV(env("TRUSTED_BRANCH_OWNERS", "")) {
		cfg.TrustedBranchOwners[strings.ToLower(name)] = struct{}{}
	}
	if v := splitCSV(env("AGENT_IDENTITIES", "")); len(v) > 0 {
		cfg.AgentIdentities = v
	}
	if v := splitCSV(env("AGENT_BRANCH_PREFIXES", "")); len(v) > 0 {
		cfg.AgentBranchPrefixes = v
	}

	applyRateLimitEnv(&cfg.RateLimits)

	if v := strings.TrimSpace(os.Getenv("GITHUB_APP_ID")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("github-app-id: %w", err)
		}
		cfg.GitHubAppID = n
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_INSTALLATION_ID")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("github-installation-id: %w", err)
		}
		cfg.GitHubInstallationID = n
	}
	cfg.GitHubPrivateKeyPath = env("GITHUB_APP_PRIVATE_KEY_PATH", "")

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyOverlayFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config-file: %w", err)
		}
	}

	if cfg.CredentialsFile == "" {
		return Config{}, fmt.Errorf("missing CREDENTIALS_FILE")
	}
	if cfg.CredentialKind != "api-key" && cfg.CredentialKind != "oauth-token" {
		return Config{}, fmt.Errorf("invalid CREDENTIAL_KIND %q", cfg.CredentialKind)
	}
	if cfg.LauncherSecret == "" {
		return Config{}, fmt.Errorf("missing LAUNCHER_SECRET")
	}

	return cfg, nil
}

func applyOverlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return err
	}
	for _, name := range ov.TrustedBranchOwners {
		cfg.TrustedBranchOwners[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	if len(ov.AgentIdentities) > 0 {
		cfg.AgentIdentities = ov.AgentIdentities
	}
	if len(ov.AgentBranchPrefixes) > 0 {
		cfg.AgentBranchPrefixes = ov.AgentBranchPrefixes
	}
	if ov.RateLimits.GitPush > 0 {
		cfg.RateLimits.GitPush = ov.RateLimits.GitPush
	}
	if ov.RateLimits.PRMutation > 0 {
		cfg.RateLimits.PRMutation = ov.RateLimits.PRMutation
	}
	if ov.RateLimits.BranchOperation > 0 {
		cfg.RateLimits.BranchOperation = ov.RateLimits.BranchOperation
	}
	if ov.RateLimits.CredentialAccess > 0 {
		cfg.RateLimits.CredentialAccess = ov.RateLimits.CredentialAccess
	}
	if ov.RateLimits.LogAccess > 0 {
		cfg.RateLimits.LogAccess = ov.RateLimits.LogAccess
	}
	return nil
}

func applyRateLimitEnv(rl *RateLimits) {
	if v := intEnv("RATE_LIMIT_GIT_PUSH"); v > 0 {
		rl.GitPush = v
	}
	if v := intEnv("RATE_LIMIT_PR_MUTATION"); v > 0 {
		rl.PRMutation = v
	}
	if v := intEnv("RATE_LIMIT_BRANCH_OPERATION"); v > 0 {
		rl.BranchOperation = v
	}
	if v := intEnv("RATE_LIMIT_CREDENTIAL_ACCESS"); v > 0 {
		rl.CredentialAccess = v
	}
	if v := intEnv("RATE_LIMIT_LOG_ACCESS"); v > 0 {
		rl.LogAccess = v
	}
}

func intEnv(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
