package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type avaliaClaims struct {
	jwt.RegisteredClaims
	Role   Role  `json:"role"`
	UserID int64 `json:"uid"`
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for minting and verification.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// TokenService mints and verifies HS256 access tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenService struct {
	signingKey []byte
	issuer     string
	expiry     time.Duration
	now        func() time.Time
}

func NewTokenService(signingKey, issuer string, expiry time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		expiry:     expiry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expiry returns the lifetime of minted tokens.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Mint creates a signed token for the given login name, role and user id.
func (s *TokenService) Mint(loginName string, role Role, userID int64) (string, error) {
	token, _, err := s.MintWithExpiry(loginName, role, userID)
	return token, err
}

// MintWithExpiry is Mint that also returns the expiry embedded in the
// token, truncated to whole seconds like the exp claim.
func (s *TokenService) MintWithExpiry(loginName string, role Role, userID int64) (string, time.Time, error) {
	if loginName == "" || !role.Valid() || userID <= 0 {
		return "", time.Time{}, fmt.Errorf("minting token: incomplete identity (login=%q role=%q uid=%d)", loginName, role, userID)
	}

	now := s.now()
	claims := avaliaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   loginName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Role:   role,
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, issuer and expiry and returns the embedded
// identity. Expired tokens fail with an error matching both
// ErrTokenExpired and ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &avaliaClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*avaliaClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || !claims.Role.Valid() || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}

	return &Identity{
		UserID:    claims.UserID,
		LoginName: claims.Subject,
		Role:      claims.Role,
	}, nil
}
