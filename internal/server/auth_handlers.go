package server

import (
	"net/http"

	"filevault/internal/app"
	"filevault/pkg/domain"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "too many registrations, retry later") {
		s.audit(r, "register", "rate_limited")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, "register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts, retry later") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	s.audit(r, "logout", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerifyRequest(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.passwordLimiter, "too many requests, retry later") {
		s.audit(r, "verify.request", "rate_limited")
		return
	}
	if err := s.app.RequestVerification(r.Context(), user.ID); err != nil {
		s.audit(r, "verify.request", "fail", "user_id", user.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "verify.request", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		s.audit(r, "verify", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "verify", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.passwordLimiter, "too many requests, retry later") {
		s.audit(r, "password.forgot", "rate_limited")
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.audit(r, "password.forgot", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "password.forgot", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.passwordLimiter, "too many requests, retry later") {
		s.audit(r, "password.reset", "rate_limited")
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.audit(r, "password.reset", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "password.reset", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type profileUpdateRequest struct {
	Name            *string `json:"name"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.GetProfile(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user.ID, app.ProfileUpdate{
		Name:            req.Name,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	res, err := s.app.DeleteAccount(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "profile.delete", "success", "user_id", user.ID, "files_deleted", res.FilesDeletedCount)
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, res)
}
