// Package auth issues and verifies stateless session tokens.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	appErr "github.com/aitoolflow/engine/pkg/errors"
)

// DefaultTTL is the session token lifetime.
const DefaultTTL = 24 * time.Hour

var (
	// ErrUnauthenticated means no token was presented.
	ErrUnauthenticated = appErr.New(appErr.CodeUnauthorized, "missing bearer token")
	// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
	ErrInvalidToken = appErr.New(appErr.CodeForbidden, "invalid or expired token")
)

// Claims is the token payload: {user_id, iat, exp}.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens with a server-held secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a TokenIssuer.
type Option func(*TokenIssuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *TokenIssuer) { t.now = now }
}

func NewTokenIssuer(secret []byte, ttl time.Duration, opts ...Option) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Issue returns a signed token bound to userID.
func (t *TokenIssuer) Issue(userID uuid.UUID) (string, error) {
	issued := t.now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(t.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "sign token failed")
	}
	return s, nil
}

// Verify checks signature and expiry and returns the bound user id. No I/O.
func (t *TokenIssuer) Verify(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err == nil && !parsed.Valid {
		err = jwt.ErrTokenInvalidClaims
	}
	if err != nil {
		return uuid.Nil, appErr.Wrap(err, ErrInvalidToken.Code, ErrInvalidToken.Message)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, appErr.Wrap(err, ErrInvalidToken.Code, ErrInvalidToken.Message)
	}
	return id, nil
}

// TTL reports the configured lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
