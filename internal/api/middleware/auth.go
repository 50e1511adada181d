package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aitoolflow/engine/internal/api/types"
	"github.com/aitoolflow/engine/internal/auth"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

type userKeyType string

const UserIDKey userKeyType = "user_id"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Auth requires a Bearer token. A missing or non-Bearer header answers 401,
// a token that fails verification answers 403.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if len(ah) < len("Bearer ") || !strings.EqualFold(ah[:len("Bearer ")], "bearer ") {
				writeAuthError(w, http.StatusUnauthorized, auth.ErrUnauthenticated)
				return
			}
			uid, err := verifier.Verify(strings.TrimSpace(ah[len("Bearer "):]))
			if err != nil {
				status := http.StatusForbidden
				if appErr.IsCode(err, appErr.CodeUnauthorized) {
					status = http.StatusUnauthorized
				}
				writeAuthError(w, status, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	var ae *appErr.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: string(appErr.CodeOf(err))})
}

// WithUserID stores uid the way Auth does. Used by handler tests.
func WithUserID(ctx context.Context, uid uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return uid, ok && uid != uuid.Nil
}
