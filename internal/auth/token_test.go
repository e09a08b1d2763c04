package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-must-be-32-chars!!"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenService_MintAndVerify(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)

	token, err := svc.Mint("alice", auth.RoleTeacher, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.LoginName)
	assert.Equal(t, auth.RoleTeacher, got.Role)
	assert.Equal(t, int64(42), got.UserID)
}

func TestTokenService_MintRejectsIncompleteIdentity(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)

	_, err := svc.Mint("", auth.RoleAdmin, 1)
	assert.Error(t, err)
	_, err = svc.Mint("alice", auth.Role("STUDENT"), 1)
	assert.Error(t, err)
	_, err = svc.Mint("alice", auth.RoleAdmin, 0)
	assert.Error(t, err)
}

func TestTokenService_MintWithExpiryMatchesClaim(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour, auth.WithClock(fixedClock(issued)))

	token, expiresAt, err := svc.MintWithExpiry("alice", auth.RoleTeacher, 7)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	assert.True(t, expiresAt.Equal(claims.ExpiresAt.Time), "expiry %s, exp claim %s", expiresAt, claims.ExpiresAt.Time)
	assert.True(t, expiresAt.Equal(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)))
}

func TestTokenService_ExpiryIsHardBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	minter := auth.NewTokenService(testSigningKey, "avalia", time.Hour, auth.WithClock(fixedClock(issued)))

	token, err := minter.Mint("alice", auth.RoleTeacher, 7)
	require.NoError(t, err)

	justBefore := auth.NewTokenService(testSigningKey, "avalia", time.Hour,
		auth.WithClock(fixedClock(issued.Add(time.Hour-time.Second))))
	_, err = justBefore.Verify(token)
	require.NoError(t, err)

	atExpiry := auth.NewTokenService(testSigningKey, "avalia", time.Hour,
		auth.WithClock(fixedClock(issued.Add(time.Hour))))
	_, err = atExpiry.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	later := auth.NewTokenService(testSigningKey, "avalia", time.Hour,
		auth.WithClock(fixedClock(issued.Add(48*time.Hour))))
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_InvalidSignature(t *testing.T) {
	svc1 := auth.NewTokenService("signing-key-one-must-be-32-chars!!", "avalia", time.Hour)
	svc2 := auth.NewTokenService("signing-key-two-must-be-32-chars!!", "avalia", time.Hour)

	token, err := svc1.Mint("alice", auth.RoleTeacher, 1)
	require.NoError(t, err)

	_, err = svc2.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	assert.NotErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_WrongIssuer(t *testing.T) {
	svc1 := auth.NewTokenService(testSigningKey, "avalia", time.Hour)
	svc2 := auth.NewTokenService(testSigningKey, "other-service", time.Hour)

	token, err := svc1.Mint("alice", auth.RoleTeacher, 1)
	require.NoError(t, err)

	_, err = svc2.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_MalformedToken(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)

	_, err := svc.Verify("not.a.jwt")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, err = svc.Verify("")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_TamperedPayload(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)

	token, err := svc.Mint("alice", auth.RoleTeacher, 1)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	escalated := strings.Replace(string(payload), `"TEACHER"`, `"ADMIN"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(escalated))

	_, err = svc.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_MissingClaims(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)
	now := time.Now()

	cases := map[string]jwt.MapClaims{
		"no uid":   {"iss": "avalia", "sub": "alice", "role": "TEACHER", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"no role":  {"iss": "avalia", "sub": "alice", "uid": 3, "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"bad role": {"iss": "avalia", "sub": "alice", "uid": 3, "role": "ROOT", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"no sub":   {"iss": "avalia", "uid": 3, "role": "TEACHER", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
		"no exp":   {"iss": "avalia", "sub": "alice", "uid": 3, "role": "TEACHER", "iat": now.Unix()},
		"uid text": {"iss": "avalia", "sub": "alice", "uid": "three", "role": "TEACHER", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()},
	}

	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
			require.NoError(t, err)

			_, err = svc.Verify(token)
			assert.ErrorIs(t, err, auth.ErrTokenInvalid)
		})
	}
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "avalia", time.Hour)
	now := time.Now()

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "avalia", "sub": "mallory", "uid": 1, "role": "ADMIN",
		"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
