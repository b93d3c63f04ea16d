package controlplane

import (
	"encoding/json"
	"net/http"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
	"github.com/silexa/gateway-sidecar/internal/session"
)

type registerRequest struct {
	LauncherSecret string `json:"launcher_secret"`
	ContainerID    string `json:"container_id"`
	ContainerIP    string `json:"container_ip"`
	Mode           string `json:"mode"`
}

type registerResponse struct {
	Token   string         `json:"token"`
	Session session.Summary `json:"session_summary"`
}

// handleSessionRegister is the one endpoint besides /health that does
// not consult an existing session: it requires the shared launcher
// secret instead (spec.md §4.6).
func (s *Server) handleSessionRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.BadRequest, "malformed request body"))
		return
	}
	if req.LauncherSecret == "" || req.LauncherSecret != s.LauncherSecret {
		writeError(w, gatewayerr.New(gatewayerr.Unauthorized, "invalid launcher secret"))
		return
	}

	token, sess, err := s.Sessions.Register(req.ContainerID, req.ContainerIP, session.Mode(req.Mode))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{Token: token, Session: summaryOf(sess)})
}

func summaryOf(sess session.Session) session.Summary {
	return session.Summary{
		HashPrefix:  session.HashPrefix(sess.TokenHash),
		ContainerID: sess.ContainerID,
		ContainerIP: sess.ContainerIP,
		Mode:        sess.Mode,
		CreatedAt:   sess.CreatedAt,
		LastSeen:    sess.LastSeen,
		ExpiresAt:   sess.ExpiresAt,
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid       bool   `json:"valid"`
	Mode        string `json:"mode"`
	ContainerID string `json:"container_id"`
}

func (s *Server) handleSessionValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.BadRequest, "malformed request body"))
		return
	}

	result, err := s.Sessions.Validate(req.Token, peerIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:       result.Valid,
		Mode:        string(result.Session.Mode),
		ContainerID: result.Session.ContainerID,
	})
}

type deleteRequest struct {
	LauncherSecret string `json:"launcher_secret"`
	Token          string `json:"token"`
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.BadRequest, "malformed request body"))
		return
	}
	if req.LauncherSecret == "" || req.LauncherSecret != s.LauncherSecret {
		writeError(w, gatewayerr.New(gatewayerr.Unauthorized, "invalid launcher secret"))
		return
	}

	if err := s.Sessions.Delete(req.Token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
