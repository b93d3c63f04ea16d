package controlplane

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/policy"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
	"github.com/silexa/gateway-sidecar/internal/session"
)

type prOpRequest struct {
	Token    string         `json:"token"`
	Repo     string         `json:"repo"`
	PRNumber int            `json:"pr_number"`
	Payload  map[string]any `json:"payload"`
}

// handlePROp dispatches POST /pr/{op}. The merge op is wired to always
// deny (spec.md §4.4, §9): a human must merge.
func (s *Server) handlePROp(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")

	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	var req prOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.denyAndAudit(w, r, sess, "pr."+op, "", gatewayerr.New(gatewayerr.BadRequest, "malformed request body"))
		return
	}
	target := req.Repo + "#" + strconv.Itoa(req.PRNumber)

	if err := s.rateLimit(sess, ratelimit.ClassPRMutation); err != nil {
		s.denyAndAudit(w, r, sess, "pr."+op, target, err)
		return
	}

	if err := s.Policy.CheckRepoVisibilityMatches(r.Context(), req.Repo, sess.Mode == session.ModePrivate); err != nil {
		s.denyAndAudit(w, r, sess, "pr."+op, target, err)
		return
	}

	switch op {
	case "merge":
		err := s.Policy.CheckMergeAllowed(r.Context(), req.Repo, req.PRNumber)
		s.denyAndAudit(w, r, sess, "pr.merge", target, err)
		return
	case "comment":
		if err := s.Policy.CheckPRCommentAllowed(r.Context(), req.Repo, req.PRNumber); err != nil {
			s.denyAndAudit(w, r, sess, "pr.comment", target, err)
			return
		}
	default:
		if err := s.Policy.CheckPROwnership(r.Context(), req.Repo, req.PRNumber, policy.AuthModeBot); err != nil {
			s.denyAndAudit(w, r, sess, "pr."+op, target, err)
			return
		}
	}

	s.allowAndAudit(r, sess, "pr."+op, target)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
