package controlplane

import (
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// AdminRouter builds the loopback-only introspection listener
// (SPEC_FULL.md §6): read-only session and audit visibility for an
// operator, no bearer auth beyond the bind restriction itself.
func (s *Server) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/sessions", s.handleAdminSessions)
	r.Get("/admin/audit/tail", s.handleAdminAuditTail)
	return r
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Sessions.List()})
}

func (s *Server) handleAdminAuditTail(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	lines, err := s.Audit.TailLines(s.AuditLogPath, n)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit log unreadable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// IsLoopbackAddr reports whether addr's host is "localhost" or a
// loopback IP literal. An empty host binds every interface and is not
// loopback. The admin listener refuses to bind otherwise
// (SPEC_FULL.md §8).
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
