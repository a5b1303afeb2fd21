package api

import (
	"errors"
	"net/http"

	"github.com/ignite/adops-console/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.svc.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.respondUpstreamError(w, err)
		return
	}

	token, err := s.svc.Tokens.Issue(user)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{
		"id":       claims.Subject,
		"username": claims.Username,
		"email":    claims.Email,
		"role":     claims.Role,
	})
}
