package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silexa/gateway-sidecar/internal/adaptation"
	"github.com/silexa/gateway-sidecar/internal/audit"
	"github.com/silexa/gateway-sidecar/internal/config"
	"github.com/silexa/gateway-sidecar/internal/controlplane"
	"github.com/silexa/gateway-sidecar/internal/credential"
	"github.com/silexa/gateway-sidecar/internal/githubhost"
	"github.com/silexa/gateway-sidecar/internal/logaccess"
	"github.com/silexa/gateway-sidecar/internal/policy"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
	"github.com/silexa/gateway-sidecar/internal/session"
)

const prunerInterval = 15 * time.Minute

func main() {
	logger := log.New(os.Stdout, "gateway-sidecar ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		logger.Fatalf("state dir: %v", err)
	}
	if !controlplane.IsLoopbackAddr(cfg.AdminListen) {
		logger.Fatalf("admin-listen must be bound to loopback, got %q", cfg.AdminListen)
	}

	credentials := credential.NewStore(cfg.CredentialsFile, credential.Kind(cfg.CredentialKind))
	sessions := session.NewManager(cfg.StateDir, cfg.SessionTTL, logger)
	limiter := ratelimit.NewLimiter(ratelimit.Limits{
		ratelimit.ClassGitPush:          cfg.RateLimits.GitPush,
		ratelimit.ClassPRMutation:       cfg.RateLimits.PRMutation,
		ratelimit.ClassBranchOperation:  cfg.RateLimits.BranchOperation,
		ratelimit.ClassCredentialAccess: cfg.RateLimits.CredentialAccess,
		ratelimit.ClassLogAccess:        cfg.RateLimits.LogAccess,
	})

	auditLogPath := cfg.StateDir + "/audit.log"
	auditLogger, err := audit.NewLogger(cfg.StateDir)
	if err != nil {
		logger.Fatalf("audit logger: %v", err)
	}
	defer auditLogger.Close()

	logIndex, err := logaccess.LoadIndex(cfg.StateDir + "/log-index.json")
	if err != nil {
		logger.Fatalf("log index: %v", err)
	}
	logPolicy := logaccess.NewPolicy(logIndex)
	logReader := logaccess.NewReader()

	policyEngine, err := buildPolicyEngine(cfg, logger)
	if err != nil {
		logger.Fatalf("policy engine: %v", err)
	}
	defer policyEngine.Close()

	srv := controlplane.New(&controlplane.Server{
		Sessions:       sessions,
		Limiter:        limiter,
		Policy:         policyEngine,
		Audit:          auditLogger,
		LogIndex:       logIndex,
		LogPolicy:      logPolicy,
		LogReader:      logReader,
		LauncherSecret: cfg.LauncherSecret,
		AuditLogPath:   auditLogPath,
		Logger:         logger,
	})

	controlHTTP := &http.Server{
		Addr:              cfg.ListenControl,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	adminHTTP := &http.Server{
		Addr:              cfg.AdminListen,
		Handler:           srv.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	adaptationServer := adaptation.NewServer(credentials, cfg.UpstreamHost, logger)
	adaptationLn, err := net.Listen("tcp", cfg.ListenAdaptation)
	if err != nil {
		logger.Fatalf("adaptation listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Printf("control-plane listening on %s", cfg.ListenControl)
		if err := controlHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("control-plane server: %v", err)
		}
	}()
	go func() {
		logger.Printf("admin introspection listening on %s", cfg.AdminListen)
		if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("admin server: %v", err)
		}
	}()
	go func() {
		logger.Printf("adaptation server listening on %s", cfg.ListenAdaptation)
		if err := adaptationServer.Serve(ctx, adaptationLn); err != nil {
			logger.Fatalf("adaptation server: %v", err)
		}
	}()
	go runPruner(ctx, sessions, logger)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")
	cancel()
	_ = controlHTTP.Close()
	_ = adminHTTP.Close()
}

func buildPolicyEngine(cfg config.Config, logger *log.Logger) (*policy.Engine, error) {
	trusted := make(map[string]struct{}, len(cfg.TrustedBranchOwners))
	for k := range cfg.TrustedBranchOwners {
		trusted[k] = struct{}{}
	}

	if cfg.GitHubAppID == 0 {
		logger.Printf("no github-app-id configured; policy engine will fail-closed on every repo-host query")
	}

	app, err := githubhost.New(cfg.GitHubAppID, cfg.GitHubInstallationID, loadPrivateKey(cfg.GitHubPrivateKeyPath, logger))
	if err != nil {
		return nil, err
	}
	lookup, err := githubhost.NewLookup(app)
	if err != nil {
		return nil, err
	}

	return policy.NewEngine(lookup, policy.Config{
		AgentIdentities:     cfg.AgentIdentities,
		AgentBranchPrefixes: cfg.AgentBranchPrefixes,
		TrustedOwners:       trusted,
		IncognitoUser:       cfg.IncognitoUser,
	}, cfg.StateDir+"/policy-cache.sqlite")
}

func loadPrivateKey(path string, logger *log.Logger) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Printf("github app private key: %v", err)
		return nil
	}
	return data
}

func runPruner(ctx context.Context, sessions *session.Manager, logger *log.Logger) {
	ticker := time.NewTicker(prunerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := sessions.PruneExpired()
			if removed > 0 {
				logger.Printf("pruned %d expired sessions", removed)
			}
		}
	}
}
