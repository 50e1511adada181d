package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aitoolflow/engine/internal/api/middleware"
	"github.com/aitoolflow/engine/internal/api/types"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Validator checks request DTOs.
type Validator interface {
	Struct(any) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code appErr.Code) int {
	switch code {
	case appErr.CodeInvalid:
		return http.StatusBadRequest
	case appErr.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErr.CodeForbidden:
		return http.StatusForbidden
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict:
		return http.StatusConflict
	case appErr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a client-safe body. Server errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := appErr.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.L().Error("request failed",
			zap.String("id", middleware.GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if code == appErr.CodeUnknown {
			code = appErr.CodeInternal
		}
		writeJSON(w, status, types.ErrorResponse{Error: "internal error", Code: string(code)})
		return
	}
	msg := http.StatusText(status)
	var ae *appErr.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: string(code)})
}

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(r *http.Request, v Validator, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid json")
	}
	if v == nil {
		return nil
	}
	return v.Struct(dst)
}

// requireUser returns the authenticated user id. Routes using it sit behind Auth.
func requireUser(r *http.Request) (uuid.UUID, error) {
	uid, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, appErr.New(appErr.CodeUnauthorized, "missing bearer token")
	}
	return uid, nil
}

// uuidParam parses a path parameter. A malformed id cannot name a stored row,
// so it answers 404 like any other unknown id.
func uuidParam(r *http.Request, name, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, appErr.New(appErr.CodeNotFound, entity+" not found")
	}
	return id, nil
}
