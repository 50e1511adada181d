package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/aitoolflow/engine/pkg/errors"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), 0)
	uid := uuid.New()

	tok, err := issuer.Issue(uid)
	require.NoError(t, err)

	got, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, got)
	assert.Equal(t, DefaultTTL, issuer.TTL())
}

func TestTokenPayload(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour, WithClock(fixedClock(now)))
	uid := uuid.New()

	tok, err := issuer.Issue(uid)
	require.NoError(t, err)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(tok, &claims)
	require.NoError(t, err)
	assert.Equal(t, uid.String(), claims.UserID)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyMissingToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), 0)
	_, err := issuer.Verify("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.True(t, appErr.IsCode(err, appErr.CodeUnauthorized))
}

func TestVerifyRejects(t *testing.T) {
	now := time.Now()
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour, WithClock(fixedClock(now)))
	uid := uuid.New()
	valid, err := issuer.Issue(uid)
	require.NoError(t, err)

	other := NewTokenIssuer([]byte("other-secret"), time.Hour)
	foreign, err := other.Issue(uid)
	require.NoError(t, err)

	past := NewTokenIssuer([]byte("test-secret"), time.Hour, WithClock(fixedClock(now.Add(-2*time.Hour))))
	expired, err := past.Issue(uid)
	require.NoError(t, err)

	otherUser, err := issuer.Issue(uuid.New())
	require.NoError(t, err)
	vp, op := strings.Split(valid, "."), strings.Split(otherUser, ".")
	tampered := vp[0] + "." + op[1] + "." + vp[2]

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uid.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not-a-jwt",
		"tampered":     tampered,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Verify(tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
			assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))
		})
	}
}
