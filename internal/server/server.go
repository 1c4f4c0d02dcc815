package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"filevault/internal/app"
	"filevault/internal/ratelimit"
	"filevault/internal/util"
	"filevault/pkg/auth"
	"filevault/pkg/domain"
)

const sessionCookieName = "token"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Tokens *auth.TokenManager

	RedisAddr     string
	RedisPassword string

	SignupRateLimitPerMinute   int
	LoginRateLimitPerMinute    int
	PasswordRateLimitPerMinute int
	UploadRateLimitPerMinute   int

	MaxUploadBytes int64
	CookieSecure   bool
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies

	// Limiters may be injected directly; when nil they are built from
	// RedisAddr. Tests inject miniredis-backed limiters this way.
	SignupLimiter   *ratelimit.FixedWindowLimiter
	LoginLimiter    *ratelimit.FixedWindowLimiter
	PasswordLimiter *ratelimit.FixedWindowLimiter
	UploadLimiter   *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP API.
type Server struct {
	app    *app.App
	tokens *auth.TokenManager
	mux    *http.ServeMux

	maxUploadBytes int64
	cookieSecure   bool
	allowedOrigins []string
	trustedProxies *util.TrustedProxies

	signupLimiter   *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	passwordLimiter *ratelimit.FixedWindowLimiter
	uploadLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	newLimiter := func(existing *ratelimit.FixedWindowLimiter, name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
		if existing != nil {
			return existing, nil
		}
		if limit <= 0 {
			limit = fallback
		}
		prefix := "filevault:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter(cfg.SignupLimiter, "signup", cfg.SignupRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter(cfg.LoginLimiter, "login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	passwordLimiter, err := newLimiter(cfg.PasswordLimiter, "password", cfg.PasswordRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	uploadLimiter, err := newLimiter(cfg.UploadLimiter, "upload", cfg.UploadRateLimitPerMinute, 30)
	if err != nil {
		return nil, err
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	s := &Server{
		app:             cfg.App,
		tokens:          cfg.Tokens,
		mux:             http.NewServeMux(),
		maxUploadBytes:  maxUpload,
		cookieSecure:    cfg.CookieSecure,
		allowedOrigins:  cfg.AllowedOrigins,
		trustedProxies:  cfg.TrustedProxies,
		signupLimiter:   signupLimiter,
		loginLimiter:    loginLimiter,
		passwordLimiter: passwordLimiter,
		uploadLimiter:   uploadLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the fully wrapped handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/auth/verify", s.handleVerifyEmail)
	s.mux.HandleFunc("POST /api/auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("POST /api/auth/reset-password", s.handleResetPassword)
	s.mux.Handle("POST /api/auth/verify-request", s.authenticated(s.handleVerifyRequest))

	s.mux.Handle("GET /api/profile", s.authenticated(s.handleGetProfile))
	s.mux.Handle("PATCH /api/profile", s.authenticated(s.handleUpdateProfile))
	s.mux.Handle("DELETE /api/profile", s.authenticated(s.handleDeleteProfile))

	s.mux.Handle("GET /api/files", s.authenticated(s.handleListFiles))
	s.mux.Handle("POST /api/files", s.authenticated(s.handleUpload))
	s.mux.Handle("GET /api/files/{id}", s.authenticated(s.handleGetFile))
	s.mux.Handle("GET /api/files/{id}/download", s.authenticated(s.handleDownload))
	s.mux.Handle("PATCH /api/files/{id}", s.authenticated(s.handleRename))
	s.mux.Handle("DELETE /api/files/{id}", s.authenticated(s.handleDeleteFile))
	s.mux.Handle("DELETE /api/files/batch", s.authenticated(s.handleDeleteFilesBatch))
	s.mux.Handle("POST /api/files/batch/download", s.authenticated(s.handleZipDownload))

	s.mux.Handle("GET /api/admin/users", s.adminOnly(s.handleListUsers))
	s.mux.Handle("GET /api/admin/users/{id}", s.adminOnly(s.handleGetUser))
	s.mux.Handle("PATCH /api/admin/users/{id}", s.adminOnly(s.handleUpdateUser))
	s.mux.Handle("DELETE /api/admin/users/{id}", s.adminOnly(s.handleDeleteUser))
	s.mux.Handle("PATCH /api/admin/users/batch", s.adminOnly(s.handleBatchBan))
	s.mux.Handle("DELETE /api/admin/users/batch", s.adminOnly(s.handleBatchDeleteUsers))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the session cookie into a live account. Banned
// accounts lose access immediately, whatever their cookie says.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		if user.Role != domain.RoleAdmin {
			s.audit(r, "admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		s.audit(r, "authorize", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	claims, err := s.tokens.VerifySession(cookie.Value)
	if err != nil {
		s.audit(r, "authorize", "fail", "reason", "invalid_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	user, err := s.app.UserByID(r.Context(), claims.UserID)
	if err != nil {
		s.audit(r, "authorize", "fail", "reason", "unknown_user")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	if user.Banned {
		s.audit(r, "authorize", "fail", "user_id", user.ID, "reason", "banned")
		writeError(w, http.StatusForbidden, "account is banned")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.app.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors onto HTTP statuses. Unexpected
// errors become an opaque 500 and are logged with the request id.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrAccountBanned),
		errors.Is(err, app.ErrForbidden),
		errors.Is(err, app.ErrTargetIsAdmin),
		errors.Is(err, app.ErrSelfTarget):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrEmailDomainNotAllowed),
		errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrAlreadyVerified),
		errors.Is(err, app.ErrNoIDs),
		errors.Is(err, app.ErrFilenameEmpty),
		errors.Is(err, app.ErrEmptyFile),
		errors.Is(err, app.ErrUnknownRole),
		errors.Is(err, app.ErrNothingToApply),
		errors.Is(err, app.ErrTokenConsumed),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrWrongPurpose):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"error", err, "path", r.URL.Path, "method", r.Method)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
