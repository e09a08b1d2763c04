package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flavalia/avalia/internal/platform/telemetry"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token       string    `json:"token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LoginName   string    `json:"login_name"`
	Role        Role      `json:"role"`
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func WithMetrics(m *telemetry.Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// Verifier checks submitted credentials against the directory and mints
// a token on success.
type Verifier struct {
	dir       Directory
	hasher    Hasher
	tokens    *TokenService
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	dummyHash string
}

func NewVerifier(dir Directory, hasher Hasher, tokens *TokenService, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		dir:    dir,
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	// Compared against when the login name is unknown, so that path costs
	// one hash comparison like the others.
	v.dummyHash, _ = hasher.Hash("avalia-unknown-login")
	return v
}

// Login authenticates loginName/password. Unknown logins, wrong passwords
// and inactive accounts all fail with ErrInvalidCredentials.
func (v *Verifier) Login(ctx context.Context, loginName, password string) (*LoginResult, error) {
	p, err := v.dir.ByLoginName(ctx, loginName)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			v.metrics.LoginAttempt("error")
			return nil, fmt.Errorf("looking up principal: %w", err)
		}
		v.hasher.Compare(password, v.dummyHash)
		return nil, v.reject(ctx, loginName, "unknown_login")
	}

	if !v.hasher.Compare(password, p.PasswordHash) {
		return nil, v.reject(ctx, loginName, "bad_password")
	}
	if !p.Active {
		return nil, v.reject(ctx, loginName, "inactive")
	}

	token, expiresAt, err := v.tokens.MintWithExpiry(p.LoginName, p.Role, p.ID)
	if err != nil {
		v.metrics.LoginAttempt("error")
		return nil, fmt.Errorf("minting token: %w", err)
	}

	v.metrics.LoginAttempt("success")
	v.logger.InfoContext(ctx, "login succeeded", "user_id", p.ID, "role", p.Role)

	return &LoginResult{
		Token:       token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      p.ID,
		DisplayName: p.DisplayName,
		LoginName:   p.LoginName,
		Role:        p.Role,
	}, nil
}

func (v *Verifier) reject(ctx context.Context, loginName, reason string) error {
	v.metrics.LoginAttempt("invalid_credentials")
	v.logger.InfoContext(ctx, "login rejected", "login_name", loginName, "reason", reason)
	return ErrInvalidCredentials
}
