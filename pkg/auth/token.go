package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"filevault/pkg/domain"
)

// Token purposes for emailed one-time links.
const (
	PurposeEmailVerify   = "email-verify"
	PurposePasswordReset = "password-reset"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrWrongPurpose = errors.New("invalid token purpose")
)

// SessionClaims is the payload of a session cookie token.
type SessionClaims struct {
	UserID string          `json:"userId"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// PurposeClaims is the payload of an emailed verification or reset token.
type PurposeClaims struct {
	Email   string `json:"email"`
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 session and purpose tokens.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	purposeTTL time.Duration
}

// NewTokenManager builds a manager with the given signing secret. TTLs fall
// back to one day for sessions and one hour for purpose tokens.
func NewTokenManager(secret string, sessionTTL, purposeTTL time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if purposeTTL <= 0 {
		purposeTTL = time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		purposeTTL: purposeTTL,
	}, nil
}

// SessionTTL reports the configured session lifetime, used for cookie MaxAge.
func (m *TokenManager) SessionTTL() time.Duration {
	return m.sessionTTL
}

// SignSession issues a session token carrying user id and role.
func (m *TokenManager) SignSession(userID string, role domain.UserRole) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifySession validates a session token and returns its claims.
func (m *TokenManager) VerifySession(token string) (SessionClaims, error) {
	var claims SessionClaims
	if err := m.parse(token, &claims); err != nil {
		return SessionClaims{}, err
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// SignPurpose issues a one-hour token for an emailed link. The jti claim
// makes consumed tokens trackable for single use.
func (m *TokenManager) SignPurpose(email, userID, purpose, jti string) (string, error) {
	now := time.Now().UTC()
	claims := PurposeClaims{
		Email:   email,
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.purposeTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyPurpose validates a purpose token and checks it was minted for the
// expected purpose.
func (m *TokenManager) VerifyPurpose(token, purpose string) (PurposeClaims, error) {
	var claims PurposeClaims
	if err := m.parse(token, &claims); err != nil {
		return PurposeClaims{}, err
	}
	if claims.Purpose != purpose {
		return PurposeClaims{}, ErrWrongPurpose
	}
	return claims, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
