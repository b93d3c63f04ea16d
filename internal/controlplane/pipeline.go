package controlplane

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/silexa/gateway-sidecar/internal/audit"
	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
	"github.com/silexa/gateway-sidecar/internal/session"
)

// extractBearerToken pulls the opaque session token out of the
// Authorization header. Unlike shared/middleware's JWT
// ExtractTokenFromHeader, there is no claims/signature step afterward —
// the bearer value is handed directly to the session manager.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// authenticate performs pipeline step 2: validate the bearer token
// against the presented peer IP.
func (s *Server) authenticate(r *http.Request) (session.ValidateResult, error) {
	token := extractBearerToken(r)
	if token == "" {
		return session.ValidateResult{}, gatewayerr.New(gatewayerr.Unauthorized, "missing bearer token")
	}
	return s.Sessions.Validate(token, peerIP(r))
}

// rateLimit performs pipeline step 3.
func (s *Server) rateLimit(sess session.Session, class ratelimit.Class) error {
	_, err := s.Limiter.Allow(sess.TokenHash, class, time.Now().UTC())
	return err
}

// audit performs pipeline step 6, emitting exactly one entry for each
// request that reaches denyAndAudit or allowAndAudit. A request rejected
// by authenticate is answered through writeError and gets no audit entry.
func (s *Server) audit(r *http.Request, sess session.Session, operation, target string, decision audit.Decision, reason string) {
	entry := audit.Entry{
		Timestamp:        time.Now().UTC(),
		RequestID:        uuid.NewString(),
		ContainerID:      sess.ContainerID,
		Operation:        operation,
		Target:           target,
		Decision:         decision,
		Reason:           reason,
		SourceIP:         peerIP(r),
	}
	if sess.TokenHash != "" {
		entry.SessionHashPrefix = session.HashPrefix(sess.TokenHash)
	}
	if err := s.Audit.Record(entry); err != nil {
		s.Logger.Printf("audit write failed: %v", err)
	}
}

// denyAndAudit writes the error response and a single deny audit entry,
// then returns — the short-circuit path every guarded handler uses.
func (s *Server) denyAndAudit(w http.ResponseWriter, r *http.Request, sess session.Session, operation, target string, err error) {
	s.audit(r, sess, operation, target, audit.DecisionDeny, gatewayerr.ReasonOf(err))
	writeError(w, err)
}

func (s *Server) allowAndAudit(r *http.Request, sess session.Session, operation, target string) {
	s.audit(r, sess, operation, target, audit.DecisionAllow, "")
}
