package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"filevault/internal/mail"
	"filevault/internal/util"
	"filevault/pkg/auth"
	"filevault/pkg/domain"
	"filevault/pkg/storage"
	"filevault/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string

	Store     store.Store
	Blobs     storage.BlobStore
	Mailer    mail.Mailer
	Tokens    *auth.TokenManager
	SingleUse auth.SingleUse

	BaseURL             string
	AppName             string
	MaxStorageBytes     int64
	MaxUploadBytes      int64
	AllowedEmailDomains []string
}

// App is the core application service wiring storage, blobs, mail and auth.
type App struct {
	store     store.Store
	blobs     storage.BlobStore
	mailer    mail.Mailer
	tokens    *auth.TokenManager
	singleUse auth.SingleUse

	baseURL         string
	appName         string
	maxStorageBytes int64
	maxUploadBytes  int64
	allowedDomains  map[string]bool
}

// New constructs the application. Store, Blobs, Mailer, Tokens and SingleUse
// must be provided by the caller; construction of concrete backends lives in
// cmd/server so tests can inject in-memory implementations here.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.NewMemoryMailer()
	}
	if cfg.SingleUse == nil {
		cfg.SingleUse = auth.NewMemorySingleUse()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	if cfg.AppName == "" {
		cfg.AppName = "FileVault"
	}

	allowed := make(map[string]bool, len(cfg.AllowedEmailDomains))
	for _, d := range cfg.AllowedEmailDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			allowed[d] = true
		}
	}

	return &App{
		store:           dataStore,
		blobs:           cfg.Blobs,
		mailer:          cfg.Mailer,
		tokens:          cfg.Tokens,
		singleUse:       cfg.SingleUse,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		appName:         cfg.AppName,
		maxStorageBytes: cfg.MaxStorageBytes,
		maxUploadBytes:  cfg.MaxUploadBytes,
		allowedDomains:  allowed,
	}, nil
}

// SessionTTL exposes the session token lifetime for cookie max-age.
func (a *App) SessionTTL() time.Duration { return a.tokens.SessionTTL() }

// Register creates an unverified USER account and sends a verification link.
// Mail failures are logged, not returned; the account exists either way.
func (a *App) Register(ctx context.Context, name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return domain.User{}, "", ErrNameRequired
	}
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := a.checkEmailDomain(email); err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	a.sendVerificationMail(ctx, user)

	token, err := a.tokens.SignSession(user.ID, user.Role)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("sign session: %w", err)
	}
	return user, token, nil
}

// Login checks credentials and returns the user plus a session token.
// Unknown email and wrong password fail identically; banned accounts are
// rejected after the password check so the error does not leak existence.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("get user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Banned {
		return domain.User{}, "", ErrAccountBanned
	}
	token, err := a.tokens.SignSession(user.ID, user.Role)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("sign session: %w", err)
	}
	return user, token, nil
}

// RequestVerification sends a fresh verification link to an unverified user.
func (a *App) RequestVerification(ctx context.Context, userID string) error {
	user, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if user.Verified {
		return ErrAlreadyVerified
	}
	return a.sendVerificationMailErr(ctx, user)
}

// VerifyEmail consumes a verification token and marks the account verified.
// Verifying an already-verified account succeeds without effect.
func (a *App) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	claims, err := a.tokens.VerifyPurpose(token, auth.PurposeEmailVerify)
	if err != nil {
		return domain.User{}, err
	}
	if err := a.consumeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return domain.User{}, err
	}
	user, found, err := a.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	if user.Verified {
		return user, nil
	}
	user.Verified = true
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// RequestPasswordReset mails a reset link. An unregistered email is reported
// as ErrNotFound so the caller can tell the user to check the address.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailAndPasswordRequired
	}
	user, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	token, err := a.tokens.SignPurpose(user.Email, user.ID, auth.PurposePasswordReset, util.NewID())
	if err != nil {
		return fmt.Errorf("sign reset token: %w", err)
	}
	link := a.link("/reset-password", token)
	if err := a.mailer.SendPasswordReset(user.Email, user.Name, link); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (a *App) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	claims, err := a.tokens.VerifyPurpose(token, auth.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := a.consumeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	user, found, err := a.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (a *App) consumeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	ok, err := a.singleUse.Consume(ctx, jti, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenConsumed
	}
	return nil
}

func (a *App) sendVerificationMail(ctx context.Context, user domain.User) {
	if err := a.sendVerificationMailErr(ctx, user); err != nil {
		util.LoggerFromContext(ctx).Warn("verification mail failed", "error", err, "user_id", user.ID)
	}
}

func (a *App) sendVerificationMailErr(_ context.Context, user domain.User) error {
	token, err := a.tokens.SignPurpose(user.Email, user.ID, auth.PurposeEmailVerify, util.NewID())
	if err != nil {
		return fmt.Errorf("sign verify token: %w", err)
	}
	link := a.link("/verify-email", token)
	if err := a.mailer.SendVerification(user.Email, user.Name, link); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

func (a *App) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", a.baseURL, path, url.QueryEscape(token))
}

func (a *App) checkEmailDomain(email string) error {
	if len(a.allowedDomains) == 0 {
		return nil
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ErrEmailDomainNotAllowed
	}
	if !a.allowedDomains[email[at+1:]] {
		return ErrEmailDomainNotAllowed
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
