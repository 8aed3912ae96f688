// Package api exposes the HTTP surface of the service: telephony
// webhooks, the media stream websocket, agent tool endpoints and the
// admin API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/api/middleware"
	"github.com/duevoice/duevoice/internal/bridge"
	"github.com/duevoice/duevoice/internal/config"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/email"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger

	customers database.CustomerRepository
	calls     database.CallRepository
	admins    database.AdminUserRepository

	sessions   *agent.Store
	verifier   *agent.Verifier
	negotiator *agent.Negotiator

	dialer    bridge.EngineDialer
	lifecycle bridge.SessionHandler
	registry  *bridge.Registry

	mailer   *email.Sender
	smtpConf email.SMTPConfig

	jwtSecret      []byte
	metricsHandler http.Handler

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted. registry,
// sessions and metricsHandler may be nil; the server then runs with its
// own counters and no scrape endpoint.
func NewServer(cfg *config.Config, db *database.DB, dialer bridge.EngineDialer, registry *bridge.Registry, sessions *agent.Store, metricsHandler http.Handler, logger *slog.Logger) (*Server, error) {
	secret, err := cfg.JWTSecretBytes()
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry = bridge.NewRegistry()
	}
	if sessions == nil {
		sessions = agent.NewStore()
	}

	customers := database.NewCustomerRepository(db)
	calls := database.NewCallRepository(db)
	admins := database.NewAdminUserRepository(db)

	policy := agent.Policy{
		SettlementDiscountPct:    cfg.SettlementDiscountPct,
		SettlementMinOverdueDays: cfg.SettlementMinOverdue,
		PaymentPlanMonths:        cfg.PaymentPlanMonths,
	}

	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		logger:     logger.With("subsystem", "api"),
		customers:  customers,
		calls:      calls,
		admins:     admins,
		sessions:   sessions,
		verifier:   agent.NewVerifier(customers, cfg.MaxVerifyAttempts, logger),
		negotiator: agent.NewNegotiator(calls, policy, logger),
		dialer:     dialer,
		lifecycle:  bridge.NewLifecycle(calls, customers, logger),
		registry:   registry,
		mailer:     email.NewSender(logger),
		smtpConf: email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLS:      cfg.SMTPTLS,
		},
		jwtSecret:      secret,
		metricsHandler: metricsHandler,
		apiLimiter:     middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter:    middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Verifier returns the identity verifier so its attempt counters can be
// exported as metrics.
func (s *Server) Verifier() *agent.Verifier {
	return s.verifier
}

// Close releases server-held background resources.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	// Telephony webhooks. The provider posts form-encoded call events.
	r.Route("/webhooks/voice", func(r chi.Router) {
		r.Post("/incoming", s.handleIncomingCall)
		r.Post("/status", s.handleCallStatus)
	})

	// Agent tool endpoints, invoked by the voice engine mid-call.
	r.Route("/webhooks/tools", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))
		r.Post("/verify-identity", s.handleToolVerifyIdentity)
		r.Post("/payment-options", s.handleToolPaymentOptions)
		r.Post("/record-payment", s.handleToolRecordPayment)
	})

	// Media stream websocket.
	r.Get("/ws/stream", s.handleStream)

	// Admin API under /api/v1.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.authLimiter))
			r.Post("/setup", s.handleSetup)
			r.Post("/auth/login", s.handleLogin)
		})

		// Protected admin routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.jwtSecret))

			r.Get("/auth/me", s.handleMe)

			r.Route("/customers", func(r chi.Router) {
				r.Post("/", s.handleCreateCustomer)
				r.Get("/{id}", s.handleGetCustomer)
			})

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleListCalls)
				r.Post("/test", s.handleCreateTestCall)
				r.Get("/{sid}", s.handleGetCall)
			})

			r.Get("/dashboard/stats", s.handleDashboardStats)
		})
	})

	if s.metricsHandler != nil {
		r.Get("/metrics", s.metricsHandler.ServeHTTP)
	}

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
