package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"mivoto/internal/container"
	"mivoto/internal/middleware"
	"mivoto/pkg/errors"
)

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger().Component("http")

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.AccessLog(log))
	r.Use(chiMiddleware.Recoverer)
	// ledger receipt polling can take up to 30s per attempt
	r.Use(chiMiddleware.Timeout(90 * time.Second))

	healthHandler := NewHealthHandler(c)
	authHandler := NewAuthHandler(c)
	eligibilityHandler := NewEligibilityHandler(c)
	votingHandler := NewVotingHandler(c)
	ballotHandler := NewBallotHandler(c)
	internalAuth := middleware.InternalAuth(cfg.InternalAPIToken, log)

	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/callback", authHandler.Callback)
		r.Post("/eligibility", eligibilityHandler.Issue)

		r.Route("/votes", func(r chi.Router) {
			r.Post("/cast", votingHandler.CastVote)
			r.Get("/{receipt}/verify", votingHandler.VerifyReceipt)
		})

		r.Route("/ballots", func(r chi.Router) {
			r.Get("/", ballotHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ballotHandler.Get)
				r.Get("/tally", ballotHandler.Tally)
				r.Get("/result", ballotHandler.Result)
				r.Get("/result/verify", ballotHandler.VerifyResult)
				r.With(internalAuth).Post("/finalize", ballotHandler.Finalize)
			})
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(internalAuth)
		r.Get("/vote-status", votingHandler.VoteStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, errors.NewNotFoundError("Endpoint not found"), log)
	})

	return r
}
