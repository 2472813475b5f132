package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/auth"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/services"
)

const (
	feedbackMinLength = 10
	feedbackMaxLength = 2000
)

type createChallengeRequest struct {
	PayloadHash    string `json:"payload_hash"`
	CiphertextSize int64  `json:"ciphertext_size"`
}

type challengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Nonce       string    `json:"nonce"`
	Difficulty  int       `json:"difficulty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Algorithm   string    `json:"algorithm"`
}

type powProof struct {
	ChallengeID string `json:"challenge_id"`
	Nonce       string `json:"nonce"`
	Counter     uint64 `json:"counter"`
	PayloadHash string `json:"payload_hash"`
}

// createSecretRequest carries the payload as base64 strings, which
// encoding/json decodes into the byte slices.
type createSecretRequest struct {
	Ciphertext   []byte    `json:"ciphertext"`
	IV           []byte    `json:"iv"`
	AuthTag      []byte    `json:"auth_tag"`
	UnlockAt     time.Time `json:"unlock_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	EditToken    string    `json:"edit_token"`
	DecryptToken string    `json:"decrypt_token"`
	PowProof     *powProof `json:"pow_proof,omitempty"`
}

type createSecretResponse struct {
	SecretID  string    `json:"secret_id"`
	UnlockAt  time.Time `json:"unlock_at"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type editSecretRequest struct {
	UnlockAt  time.Time  `json:"unlock_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type editSecretResponse struct {
	SecretID  string    `json:"secret_id"`
	UnlockAt  time.Time `json:"unlock_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type statusResponse struct {
	Exists    bool       `json:"exists"`
	Status    string     `json:"status"`
	UnlockAt  *time.Time `json:"unlock_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type retrieveResponse struct {
	Status      string     `json:"status"`
	Ciphertext  []byte     `json:"ciphertext"`
	IV          []byte     `json:"iv"`
	AuthTag     []byte     `json:"auth_tag"`
	UnlockAt    time.Time  `json:"unlock_at"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}

type issueTokenRequest struct {
	Tier             string  `json:"tier"`
	PaymentProvider  *string `json:"payment_provider,omitempty"`
	PaymentReference *string `json:"payment_reference,omitempty"`
}

type issueTokenResponse struct {
	Token             string    `json:"token"`
	Tier              string    `json:"tier"`
	MaxCiphertextSize int64     `json:"max_ciphertext_size"`
	MaxExpiryDays     int       `json:"max_expiry_days"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type validateTokenResponse struct {
	Valid             bool       `json:"valid"`
	Consumed          bool       `json:"consumed"`
	Tier              string     `json:"tier,omitempty"`
	MaxCiphertextSize int64      `json:"max_ciphertext_size,omitempty"`
	MaxExpiryDays     int        `json:"max_expiry_days,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Error             string     `json:"error,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

type feedbackRequest struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

type feedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "payload_too_large")
			return false
		}
		writeError(w, http.StatusBadRequest, "malformed request body", "invalid_request")
		return false
	}
	return true
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header, writing a 401 when absent.
func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	token, ok := strings.CutPrefix(h, common.BearerPrefix)
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "invalid authorization header format", "invalid_authorization")
		return "", false
	}
	return token, true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if !s.decode(w, r, &req) {
		return
	}

	c, err := s.svc.Challenges.Generate(r.Context(), req.PayloadHash, req.CiphertextSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, challengeResponse{
		ChallengeID: c.ID,
		Nonce:       c.Nonce,
		Difficulty:  c.Difficulty,
		ExpiresAt:   c.ExpiresAt,
		Algorithm:   "sha256",
	})
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	var req createSecretRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UnlockAt.IsZero() || req.ExpiresAt.IsZero() {
		writeError(w, http.StatusBadRequest, "unlock_at and expires_at are required", "validation_error")
		return
	}

	var pow *services.PowAdmission
	if req.PowProof != nil {
		pow = &services.PowAdmission{
			ChallengeID: req.PowProof.ChallengeID,
			Nonce:       req.PowProof.Nonce,
			Counter:     req.PowProof.Counter,
			PayloadHash: req.PowProof.PayloadHash,
		}
	}
	proof, err := services.NewAdmissionProof(pow, r.Header.Get(common.CapabilityTokenHeaderName))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	secret, err := s.svc.Secrets.Create(r.Context(), &services.CreateRequest{
		Ciphertext:   req.Ciphertext,
		IV:           req.IV,
		AuthTag:      req.AuthTag,
		UnlockAt:     req.UnlockAt.UTC(),
		ExpiresAt:    req.ExpiresAt.UTC(),
		EditToken:    req.EditToken,
		DecryptToken: req.DecryptToken,
		Admission:    proof,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSecretResponse{
		SecretID:  secret.ID,
		UnlockAt:  secret.UnlockAt,
		ExpiresAt: secret.ExpiresAt,
		CreatedAt: secret.CreatedAt,
	})
}

func (s *Server) editSecret(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}
	var req editSecretRequest
	if !s.decode(w, r, &req) {
		return
	}

	var expires time.Time
	if req.ExpiresAt != nil {
		expires = req.ExpiresAt.UTC()
	}
	secret, err := s.svc.Secrets.Edit(r.Context(), token, req.UnlockAt.UTC(), expires)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, editSecretResponse{
		SecretID:  secret.ID,
		UnlockAt:  secret.UnlockAt,
		ExpiresAt: secret.ExpiresAt,
		UpdatedAt: s.now().UTC(),
	})
}

func toStatusResponse(st *services.SecretStatus) statusResponse {
	resp := statusResponse{Exists: st.Exists, Status: string(st.State)}
	if st.Secret != nil {
		unlock, expires := st.Secret.UnlockAt, st.Secret.ExpiresAt
		resp.UnlockAt, resp.ExpiresAt = &unlock, &expires
	}
	return resp
}

func (s *Server) secretStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}
	st, err := s.svc.Secrets.Status(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

func (s *Server) secretStatusByID(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Secrets.StatusByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

func (s *Server) retrieveSecret(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Secrets.Retrieve(r.Context(), token)
	if err != nil {
		if status, _ := classify(err); status == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "Secret not found", "not_found")
			return
		}
		s.fail(w, r, err)
		return
	}

	switch res.State {
	case models.StatePending:
		unlock := res.Secret.UnlockAt
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:    "Secret is not yet available",
			Reason:   string(models.StatePending),
			UnlockAt: &unlock,
		})
	case models.StateExpired, models.StateRetrieved:
		writeError(w, http.StatusGone, fmt.Sprintf("Secret is %s", res.State), string(res.State))
	default:
		writeJSON(w, http.StatusOK, retrieveResponse{
			Status:      string(res.State),
			Ciphertext:  res.Secret.Ciphertext,
			IV:          res.Secret.IV,
			AuthTag:     res.Secret.AuthTag,
			UnlockAt:    res.Secret.UnlockAt,
			RetrievedAt: res.Secret.RetrievedAt,
		})
	}
}

func (s *Server) issueCapabilityToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(w, r)
	if !ok {
		return
	}
	if _, err := auth.Authorize(token, s.signingKey, auth.RoleIssuer); err != nil {
		s.logger.Warn(r.Context(), "issuer authorization failed", "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var req issueTokenRequest
	if !s.decode(w, r, &req) {
		return
	}

	t, raw, err := s.svc.Tokens.Issue(r.Context(), req.Tier, req.PaymentProvider, req.PaymentReference)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueTokenResponse{
		Token:             raw,
		Tier:              t.Tier,
		MaxCiphertextSize: t.MaxCiphertextSize,
		MaxExpiryDays:     t.MaxExpiryDays,
		ExpiresAt:         t.ExpiresAt,
	})
}

func (s *Server) validateCapabilityToken(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Tokens.Validate(r.Context(), r.Header.Get(common.CapabilityTokenHeaderName))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := validateTokenResponse{Valid: v.Valid, Consumed: v.Consumed}
	if v.Token != nil {
		expires := v.Token.ExpiresAt
		resp.Tier = v.Token.Tier
		resp.MaxCiphertextSize = v.Token.MaxCiphertextSize
		resp.MaxExpiryDays = v.Token.MaxExpiryDays
		resp.ExpiresAt = &expires
	}
	if v.Reason != nil {
		_, resp.Reason = classify(v.Reason)
		resp.Error = v.Reason.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req) {
		return
	}

	n := utf8.RuneCountInString(req.Message)
	if n < feedbackMinLength || n > feedbackMaxLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("message must be between %d and %d characters", feedbackMinLength, feedbackMaxLength),
			"validation_error")
		return
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid email address", "validation_error")
			return
		}
	}

	contact := req.Email
	if contact == "" {
		contact = "not provided"
	}
	if s.feedback != nil {
		s.feedback.Post(r.Context(), fmt.Sprintf("**New Feedback**\n\n%s\n\n**Contact:** %s", req.Message, contact))
	}
	s.logger.Info(r.Context(), "feedback submitted", "has_email", req.Email != "", "message_length", n)

	writeJSON(w, http.StatusCreated, feedbackResponse{Success: true, Message: "Thank you for your feedback!"})
}
