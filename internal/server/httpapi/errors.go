package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/common"
)

type errorResponse struct {
	Error    string     `json:"error"`
	Reason   string     `json:"reason"`
	UnlockAt *time.Time `json:"unlock_at,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	reason string
}

// errorTable maps service errors to HTTP status and a machine-readable
// reason. Specific validation reasons precede the generic ErrValidation.
var errorTable = []errorMapping{
	{common.ErrChallengeNotFound, http.StatusBadRequest, "challenge_not_found"},
	{common.ErrChallengeUsed, http.StatusBadRequest, "challenge_used"},
	{common.ErrChallengeExpired, http.StatusBadRequest, "challenge_expired"},
	{common.ErrNonceMismatch, http.StatusBadRequest, "nonce_mismatch"},
	{common.ErrPayloadHashMismatch, http.StatusBadRequest, "payload_hash_mismatch"},
	{common.ErrInsufficientWork, http.StatusBadRequest, "insufficient_work"},
	{common.ErrInsufficientDifficulty, http.StatusBadRequest, "insufficient_difficulty"},
	{common.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
	{common.ErrAdmissionRequired, http.StatusBadRequest, "admission_required"},
	{common.ErrAdmissionAmbiguous, http.StatusBadRequest, "admission_ambiguous"},

	{common.ErrTokenInvalidFormat, http.StatusUnauthorized, "token_invalid_format"},
	{common.ErrTokenNotFound, http.StatusUnauthorized, "token_not_found"},
	{common.ErrTokenConsumed, http.StatusUnauthorized, "token_consumed"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{common.ErrTokenLimitExceeded, http.StatusRequestEntityTooLarge, "token_limit_exceeded"},

	{common.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{common.ErrInvalidTokenValue, http.StatusBadRequest, "invalid_token"},
	{common.ErrUnlockTooSoon, http.StatusBadRequest, "unlock_too_soon"},
	{common.ErrUnlockTooLate, http.StatusBadRequest, "unlock_too_late"},
	{common.ErrExpiryGap, http.StatusBadRequest, "expiry_gap"},
	{common.ErrExpiryTooLate, http.StatusBadRequest, "expiry_too_late"},
	{common.ErrUnlockNotLater, http.StatusBadRequest, "unlock_not_later"},
	{common.ErrExpiryShortened, http.StatusBadRequest, "expiry_shortened"},
	{common.ErrAlreadyUnlocked, http.StatusBadRequest, "already_unlocked"},
	{common.ErrUnknownTier, http.StatusBadRequest, "unknown_tier"},
	{common.ErrValidation, http.StatusBadRequest, "validation_error"},

	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
}

// classify returns the status and reason for err; unknown errors are 500.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.reason
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}

// fail maps a service error to a response. Internal errors are logged and
// alerted without leaking details to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := classify(err)
	if status != http.StatusInternalServerError {
		s.logger.Warn(r.Context(), "request rejected", "path", r.URL.Path, "reason", reason)
		writeError(w, status, err.Error(), reason)
		return
	}

	s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	s.alert(r, "Unhandled Error", err.Error())
	writeError(w, status, "internal server error", reason)
}
