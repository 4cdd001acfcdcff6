package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/horizonsync/authcore"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{"error": msg}
	if rid, ok := authcore.RequestIDFromContext(r.Context()); ok {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// engineError maps engine sentinels onto the HTTP status vocabulary.
// Reuse detection deliberately lands on the same response as any other
// invalid refresh token.
func (a *API) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authcore.ErrInvalidSecondFactor):
		writeError(w, r, http.StatusUnauthorized, "invalid mfa code")
	case errors.Is(err, authcore.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, authcore.ErrInvalidAccessToken):
		writeError(w, r, http.StatusUnauthorized, "invalid access token")
	case errors.Is(err, authcore.ErrAccountLocked):
		writeError(w, r, http.StatusForbidden, "account locked")
	case errors.Is(err, authcore.ErrAccountSuspended):
		writeError(w, r, http.StatusForbidden, "account suspended")
	case errors.Is(err, authcore.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, "account inactive")
	case errors.Is(err, authcore.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, authcore.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "session not found")
	case errors.Is(err, authcore.ErrAccountNotFound):
		writeError(w, r, http.StatusNotFound, "account not found")
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRefreshRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, authcore.ErrMFAAlreadyEnabled):
		writeError(w, r, http.StatusBadRequest, "mfa already enabled")
	case errors.Is(err, authcore.ErrMFANotEnabled):
		writeError(w, r, http.StatusBadRequest, "mfa not enabled")
	case errors.Is(err, authcore.ErrMFANotPending):
		writeError(w, r, http.StatusBadRequest, "no pending mfa enrollment")
	case errors.Is(err, authcore.ErrBackupCodeRegenerationRequiresTOTP):
		writeError(w, r, http.StatusBadRequest, "totp code required")
	case errors.Is(err, authcore.ErrEngineClosed):
		writeError(w, r, http.StatusServiceUnavailable, "shutting down")
	default:
		a.log.Error("handler error", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
