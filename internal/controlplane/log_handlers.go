package controlplane

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/logaccess"
	"github.com/silexa/gateway-sidecar/internal/ratelimit"
)

func (s *Server) handleLogsList(w http.ResponseWriter, r *http.Request) {
	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	if err := s.rateLimit(sess, ratelimit.ClassLogAccess); err != nil {
		s.denyAndAudit(w, r, sess, "logs.list", "", err)
		return
	}

	entries := s.LogIndex.EntriesForContainer(sess.ContainerID)
	s.allowAndAudit(r, sess, "logs.list", "")
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleLogsTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	if err := s.rateLimit(sess, ratelimit.ClassLogAccess); err != nil {
		s.denyAndAudit(w, r, sess, "logs.task", taskID, err)
		return
	}

	if err := s.LogPolicy.CheckTaskAccess(sess.ContainerID, taskID); err != nil {
		s.denyAndAudit(w, r, sess, "logs.task", taskID, err)
		return
	}

	containerID, _ := s.LogIndex.ContainerForTask(taskID)
	path := ""
	for _, e := range s.LogIndex.EntriesForContainer(containerID) {
		if e.TaskID == taskID {
			path = e.LogFile
			break
		}
	}

	content, err := s.LogReader.Read(path)
	if err != nil {
		s.denyAndAudit(w, r, sess, "logs.task", taskID, err)
		return
	}

	s.allowAndAudit(r, sess, "logs.task", taskID)
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleLogsContainer(w http.ResponseWriter, r *http.Request) {
	containerID := chi.URLParam(r, "id")

	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	if err := s.rateLimit(sess, ratelimit.ClassLogAccess); err != nil {
		s.denyAndAudit(w, r, sess, "logs.container", containerID, err)
		return
	}

	if err := s.LogPolicy.CheckContainerAccess(sess.ContainerID, containerID); err != nil {
		s.denyAndAudit(w, r, sess, "logs.container", containerID, err)
		return
	}

	entries := s.LogIndex.EntriesForContainer(containerID)
	var combined []string
	truncated := false
	for _, e := range entries {
		res, err := s.LogReader.Read(e.LogFile)
		if err != nil {
			continue
		}
		combined = append(combined, res.Lines...)
		truncated = truncated || res.Truncated
	}

	s.allowAndAudit(r, sess, "logs.container", containerID)
	writeJSON(w, http.StatusOK, logaccess.ReadResult{Lines: combined, Truncated: truncated})
}

func (s *Server) handleLogsSearch(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	scope := r.URL.Query().Get("scope")

	result, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess := result.Session

	if err := s.rateLimit(sess, ratelimit.ClassLogAccess); err != nil {
		s.denyAndAudit(w, r, sess, "logs.search", pattern, err)
		return
	}

	if err := s.LogPolicy.CheckSearchScope(scope); err != nil {
		s.denyAndAudit(w, r, sess, "logs.search", pattern, err)
		return
	}

	safe, err := logaccess.CompileSafe(pattern)
	if err != nil {
		s.denyAndAudit(w, r, sess, "logs.search", pattern, err)
		return
	}

	matches, err := s.LogReader.SearchContainer(s.LogIndex, sess.ContainerID, safe)
	if err != nil {
		s.denyAndAudit(w, r, sess, "logs.search", pattern, gatewayerr.New(gatewayerr.Internal, "search failed"))
		return
	}

	s.allowAndAudit(r, sess, "logs.search", pattern)
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
