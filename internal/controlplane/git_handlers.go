package controlplane

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/policy"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
	"github.com/silexa/gateway-sidecar/internal/session"
	"github.com/silexa/gateway-sidecar/internal/subprocess"
)

// readOnlyGitOps are permitted under any valid session without a
// branch-ownership check, per spec.md §4.6.
var readOnlyGitOps = map[string]bool{
	"status": true,
	"fetch":  true,
	"log":    true,
	"diff":   true,
	"show":   true,
}

// gitAllowList is the fixed set of operations the endpoint accepts at
// all; anything outside it is operation-not-permitted, never silently
// passed to the shell.
var gitAllowList = map[string]bool{
	"status": true, "fetch": true, "log": true, "diff": true, "show": true,
	"push": true, "branch-create": true, "branch-delete": true,
}

type gitExecuteRequest struct {
	Token     string   `json:"token"`
	RepoPath  string   `json:"repo_path"`
	Repo      string   `json:"repo"`
	Branch    string   `json:"branch"`
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
}

type gitExecuteResponse struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (s *Server) handleGitExecute(w http.ResponseWriter, r *http.Request) {
	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	var req gitExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.denyAndAudit(w, r, sess, "git.execute", "", gatewayerr.New(gatewayerr.BadRequest, "malformed request body"))
		return
	}
	target := req.Repo + ":" + req.Operation

	if !gitAllowList[req.Operation] {
		s.denyAndAudit(w, r, sess, "git.execute", target, gatewayerr.New(gatewayerr.OperationNotAllowed, "git operation not in the allow-list"))
		return
	}

	class := ratelimit.ClassBranchOperation
	if req.Operation == "push" {
		class = ratelimit.ClassGitPush
	}
	if err := s.rateLimit(sess, class); err != nil {
		s.denyAndAudit(w, r, sess, "git.execute", target, err)
		return
	}

	if err := s.Policy.CheckRepoVisibilityMatches(r.Context(), req.Repo, sess.Mode == session.ModePrivate); err != nil {
		s.denyAndAudit(w, r, sess, "git.execute", target, err)
		return
	}

	if !readOnlyGitOps[req.Operation] {
		authMode := policy.AuthModeBot
		if err := s.Policy.CheckBranchOwnership(r.Context(), req.Repo, req.Branch, authMode); err != nil {
			s.denyAndAudit(w, r, sess, "git.execute", target, err)
			return
		}
	}

	res, err := subprocess.Run(r.Context(), req.RepoPath, "git", gitArgs(req.Operation, req.Args), s.GitExecTimeout)
	if err != nil {
		s.denyAndAudit(w, r, sess, "git.execute", target, err)
		return
	}

	s.allowAndAudit(r, sess, "git.execute", target)
	writeJSON(w, http.StatusOK, gitExecuteResponse{Success: true, Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode})
}

func gitArgs(operation string, extra []string) []string {
	switch operation {
	case "branch-create":
		return append([]string{"branch"}, extra...)
	case "branch-delete":
		return append([]string{"branch", "-D"}, extra...)
	default:
		return append([]string{strings.TrimSpace(operation)}, extra...)
	}
}
