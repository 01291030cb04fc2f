package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/server/services"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type checkResponse struct {
	Message string            `json:"message"`
	User    services.Identity `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body services.SignupInput
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	if _, err := s.users.Signup(r.Context(), body); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			writeMessage(w, http.StatusBadRequest, "User already exists")
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "User signed up successfully")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	_, pair, err := s.users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			writeMessage(w, http.StatusUnauthorized, "Email is not valid")
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.cookies.set(w, pair)
	writeMessage(w, http.StatusOK, "login successful")
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, accessCookie)
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	id, err := s.users.Check(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{Message: "Authenticated", User: *id})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, refreshCookie)
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	pair, err := s.users.Refresh(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.cookies.set(w, pair)
	writeMessage(w, http.StatusOK, "Token refreshed")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.users.Logout(r.Context(), cookieValue(r, refreshCookie))

	var ae *common.AuthenticationError
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		writeMessage(w, http.StatusBadRequest, "Session expired")
		return
	case errors.As(err, &ae):
		writeMessage(w, http.StatusBadRequest, "Token is not valid")
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}

	s.cookies.clear(w)
	writeMessage(w, http.StatusOK, "Logout successfully")
}
