package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"schoold/internal/auth"
)

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a stable machine-readable code. Codes are part of the
// API contract; clients branch on them, so never echo raw internals here.
func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]any{"error": code})
}

// respondAuthError maps orchestrator errors onto HTTP statuses and codes.
// Unknown errors collapse to a 500 with no detail leaked.
func (a *API) respondAuthError(w http.ResponseWriter, err error) {
	var rl *auth.RateLimitedError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate_limited",
			"retry_after": rl.RetryAfter,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, auth.ErrEmailNotVerified):
		respondError(w, http.StatusForbidden, "email_not_verified")
	case errors.Is(err, auth.ErrPendingApproval):
		respondError(w, http.StatusForbidden, "pending_approval")
	case errors.Is(err, auth.ErrAlreadyRegistered):
		respondError(w, http.StatusConflict, "already_registered")
	case errors.Is(err, auth.ErrEmailExists):
		respondError(w, http.StatusConflict, "email_exists")
	case errors.Is(err, auth.ErrTooManyAttempts):
		respondError(w, http.StatusTooManyRequests, "too_many_attempts")
	case errors.Is(err, auth.ErrInvalidOrExpiredOTP):
		respondError(w, http.StatusBadRequest, "invalid_or_expired_otp")
	case errors.Is(err, auth.ErrInvalidOrExpired):
		respondError(w, http.StatusBadRequest, "invalid_or_expired_token")
	case errors.Is(err, auth.ErrSessionSuperseded):
		respondError(w, http.StatusUnauthorized, "session_superseded")
	case errors.Is(err, auth.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found")
	default:
		a.log.Error().Err(err).Msg("auth operation failed")
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}
