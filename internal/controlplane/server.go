// Package controlplane implements the gateway's HTTP-style control-plane
// API (spec.md §4.6): session register/validate/delete, git execute, PR
// operations, and log access, all behind the fixed
// parse -> authenticate -> rate-limit -> authorize -> execute -> audit
// pipeline. Routing follows apps/ReleaseParty/backend/internal/api's
// chi.NewRouter()/r.Route idiom; the pipeline itself is inlined in each
// handler rather than built from chi middleware, because rate-limiting
// and authorization both need the operation class, which is only known
// once the handler has parsed the request body.
package controlplane

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/silexa/gateway-sidecar/internal/audit"
	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/logaccess"
	"github.com/silexa/gateway-sidecar/internal/policy"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
	"github.com/silexa/gateway-sidecar/internal/session"
)

type Server struct {
	Sessions       *session.Manager
	Limiter        *ratelimit.Limiter
	Policy         *policy.Engine
	Audit          *audit.Logger
	LogIndex       *logaccess.Index
	LogPolicy      *logaccess.Policy
	LogReader      *logaccess.Reader
	LauncherSecret string
	GitExecTimeout time.Duration
	RepoRoot       string
	AuditLogPath   string
	Logger         *log.Logger
}

func New(s *Server) *Server {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "gateway ", log.LstdFlags|log.LUTC)
	}
	if s.GitExecTimeout <= 0 {
		s.GitExecTimeout = 30 * time.Second
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Post("/session/register", s.handleSessionRegister)
	r.Post("/session/validate", s.handleSessionValidate)
	r.Delete("/session", s.handleSessionDelete)

	r.Post("/git/execute", s.handleGitExecute)

	r.Post("/pr/{op}", s.handlePROp)

	r.Get("/logs/list", s.handleLogsList)
	r.Get("/logs/task/{id}", s.handleLogsTask)
	r.Get("/logs/container/{id}", s.handleLogsContainer)
	r.Get("/logs/search", s.handleLogsSearch)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_sessions": len(s.Sessions.List()),
	})
}

// writeJSON mirrors apps/ReleaseParty/backend/internal/api's helper of
// the same name.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the deterministic failure shape of spec.md §7:
// {success:false, error, reason}, where error carries the error kind.
type errorResponse struct {
	Success bool             `json:"success"`
	Error   gatewayerr.Kind  `json:"error"`
	Reason  string           `json:"reason"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := gatewayerr.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{
		Success: false,
		Error:   kind,
		Reason:  gatewayerr.ReasonOf(err),
	})
}

func statusForKind(kind gatewayerr.Kind) int {
	switch kind {
	case gatewayerr.Unauthorized, gatewayerr.Expired, gatewayerr.IPMismatch:
		return http.StatusUnauthorized
	case gatewayerr.RateLimited:
		return http.StatusTooManyRequests
	case gatewayerr.PolicyDenied, gatewayerr.OperationNotAllowed:
		return http.StatusForbidden
	case gatewayerr.InvalidPattern, gatewayerr.BadRequest, gatewayerr.InvalidMode:
		return http.StatusBadRequest
	case gatewayerr.NotFound:
		return http.StatusNotFound
	case gatewayerr.Timeout:
		return http.StatusGatewayTimeout
	case gatewayerr.Unavailable:
		return http.StatusServiceUnavailable
	case gatewayerr.ClientClosed:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// peerIP extracts the authoritative source IP from the transport's peer
// address, per spec.md §4.6: any client-supplied forwarding header is
// ignored once a peer address is available.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
