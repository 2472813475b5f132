// Package httpapi exposes the secret delivery services over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/richmiles/in-the-event-of-my-death/internal/alerting"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/services"
)

type ChallengeService interface {
	Generate(ctx context.Context, payloadHash string, size int64) (*models.Challenge, error)
}

type CapabilityTokenService interface {
	Issue(ctx context.Context, tier string, paymentProvider, paymentReference *string) (*models.CapabilityToken, string, error)
	Validate(ctx context.Context, raw string) (*services.TokenValidation, error)
}

type SecretService interface {
	Create(ctx context.Context, r *services.CreateRequest) (*models.Secret, error)
	Edit(ctx context.Context, rawEditToken string, newUnlockAt, newExpiresAt time.Time) (*models.Secret, error)
	Status(ctx context.Context, rawDecryptToken string) (*services.SecretStatus, error)
	StatusByID(ctx context.Context, id string) (*services.SecretStatus, error)
	Retrieve(ctx context.Context, rawDecryptToken string) (*services.RetrieveResult, error)
}

// Notifier delivers operator alerts and free-form webhook messages.
type Notifier interface {
	Alert(ctx context.Context, a alerting.Alert) bool
	Post(ctx context.Context, content string) bool
}

// Services groups the business services the handlers call.
type Services struct {
	Challenges ChallengeService
	Tokens     CapabilityTokenService
	Secrets    SecretService
}

type Server struct {
	address    string
	logger     logging.Logger
	svc        Services
	alerts     Notifier
	feedback   Notifier
	signingKey []byte
	maxBody    int64
	now        func() time.Time

	challengeLimit *ipLimiter
	createLimit    *ipLimiter
	retrieveLimit  *ipLimiter
}

func NewServer(cfg *config.Config, l logging.Logger, svc Services, alerts, feedback Notifier) *Server {
	return &Server{
		address:    cfg.HTTPAddr,
		logger:     l.With("module", "http_server"),
		svc:        svc,
		alerts:     alerts,
		feedback:   feedback,
		signingKey: []byte(cfg.InternalSigningKey),
		maxBody:    maxRequestBody(cfg),
		now:        time.Now,

		challengeLimit: newIPLimiter(cfg.RateLimitChallenges, time.Minute),
		createLimit:    newIPLimiter(cfg.RateLimitCreates, time.Minute),
		retrieveLimit:  newIPLimiter(cfg.RateLimitRetrieves, time.Minute),
	}
}

// maxRequestBody bounds request bodies by the largest admissible
// ciphertext, base64 expanded, plus room for the JSON envelope.
func maxRequestBody(cfg *config.Config) int64 {
	largest := cfg.MaxCiphertextSize
	for _, t := range cfg.CapabilityTiers {
		if t.MaxCiphertextSize > largest {
			largest = t.MaxCiphertextSize
		}
	}
	return largest/3*4 + 4 + 64<<10
}

// Handler builds the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.recoverPanics)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/challenges", s.challengeLimit.wrap(s.createChallenge)).Methods(http.MethodPost)
	api.Handle("/secrets", s.createLimit.wrap(s.createSecret)).Methods(http.MethodPost)
	api.Handle("/secrets/edit", s.retrieveLimit.wrap(s.editSecret)).Methods(http.MethodPut)
	api.Handle("/secrets/status", s.retrieveLimit.wrap(s.secretStatus)).Methods(http.MethodGet)
	api.Handle("/secrets/retrieve", s.retrieveLimit.wrap(s.retrieveSecret)).Methods(http.MethodGet)
	api.Handle("/secrets/{id}/status", s.retrieveLimit.wrap(s.secretStatusByID)).Methods(http.MethodGet)
	api.HandleFunc("/capability-tokens", s.issueCapabilityToken).Methods(http.MethodPost)
	api.Handle("/capability-tokens/validate", s.retrieveLimit.wrap(s.validateCapabilityToken)).Methods(http.MethodGet)
	api.Handle("/feedback", s.createLimit.wrap(s.submitFeedback)).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
