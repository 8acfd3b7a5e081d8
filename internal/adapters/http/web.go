// Package web exposes the change workflow as a JSON API. Handlers are
// thin: decode, resolve identity, call the orchestrator or projection,
// encode. Authentication happens at the reverse proxy; the caller
// identity arrives in forwarded headers.
package web

import (
	"net/http"
	"time"

	"percentuais/internal/adapters/http/middleware"
	advisorStore "percentuais/internal/adapters/storage/advisor"
	branchStore "percentuais/internal/adapters/storage/branch"
	ledgerStore "percentuais/internal/adapters/storage/ledger"
	otpStore "percentuais/internal/adapters/storage/otp"
	outboxStore "percentuais/internal/adapters/storage/outbox"
	"percentuais/internal/application/notify"
	"percentuais/internal/application/orchestrators"
)

// Stores holds all storage dependencies.
type Stores struct {
	Ledger       ledgerStore.Store
	BranchStore  branchStore.Store
	AdvisorStore advisorStore.Store
	OTPStore     otpStore.Store
	OutboxStore  outboxStore.Store
}

// Server wires handlers to their dependencies.
type Server struct {
	stores    *Stores
	notifier  *notify.Dispatcher
	processor *orchestrators.OutboxProcessor

	reviewBaseURL     string
	complianceAddress string
	sessionTTL        time.Duration

	now func() time.Time
}

// Options carries the non-store configuration of the server.
type Options struct {
	ReviewBaseURL     string
	ComplianceAddress string
	SessionTTL        time.Duration
}

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10

// NewServer creates a Server.
func NewServer(s *Stores, notifier *notify.Dispatcher, processor *orchestrators.OutboxProcessor, opts Options) *Server {
	return &Server{
		stores:            s,
		notifier:          notifier,
		processor:         processor,
		reviewBaseURL:     opts.ReviewBaseURL,
		complianceAddress: opts.ComplianceAddress,
		sessionTTL:        opts.SessionTTL,
		now:               time.Now,
	}
}

// NewMux wires the API routes behind the middleware chain.
func NewMux(srv *Server) http.Handler {
	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)

	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.WithIdentity,
		middleware.RateLimit(limiter),
	)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/changes/stage", s.handleStageChanges)
	mux.HandleFunc("POST /api/changes/confirm", s.handleConfirmCode)
	mux.HandleFunc("POST /api/changes/discard", s.handleDiscardSession)

	mux.HandleFunc("GET /api/reviews", s.handleReviewQueue)
	mux.HandleFunc("POST /api/reviews/confirm", s.handleConfirmReview)

	mux.HandleFunc("POST /api/declarations/accept", s.handleAcceptDeclaration)
	mux.HandleFunc("POST /api/declarations/decline", s.handleDeclineDeclaration)

	mux.HandleFunc("GET /api/stats", s.handleChangeStats)
	mux.HandleFunc("GET /api/branches/{name}/grid", s.handleBranchGrid)

	mux.HandleFunc("GET /api/admin/outbox", s.handleOutboxList)
	mux.HandleFunc("POST /api/admin/outbox/retry", s.handleOutboxRetry)
	mux.HandleFunc("POST /api/admin/outbox/abandon", s.handleOutboxAbandon)
}
