package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/sttgateway/internal/api/handlers"
	"github.com/nikhilbhutani/sttgateway/internal/api/middleware"
	"github.com/nikhilbhutani/sttgateway/internal/auth"
	"github.com/nikhilbhutani/sttgateway/internal/config"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
)

// Deps are the services the router exposes. cmd/api builds them.
type Deps struct {
	Transcriber handlers.Transcriber
	Usage       handlers.UsageSummarizer
	Chain       handlers.ChainInfo
	Directory   auth.Directory
	Limiter     middleware.WindowCounter
	Ready       map[string]handlers.Pinger
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Router struct {
	mux    *chi.Mux
	cfg    *config.Config
	deps   Deps
	jwt    *auth.JWTMiddleware
	apikey *auth.APIKeyMiddleware
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Router{
		mux:    chi.NewRouter(),
		cfg:    cfg,
		deps:   deps,
		jwt:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret, deps.Directory),
		apikey: auth.NewAPIKeyMiddleware(deps.Directory, cfg.Auth.APIKeyHeader),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Logger, rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins, rt.cfg.Auth.APIKeyHeader))

	// Health and metrics endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Ready)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.HandlerFor(rt.deps.Gatherer, promhttp.HandlerOpts{}))

	rl := middleware.NewRateLimiter(rt.deps.Limiter, rt.cfg.Server.RateLimitRPS, rt.deps.Logger)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT
		r.Use(rt.apikey.Authenticate)
		r.Use(rt.jwt.Authenticate)
		r.Use(rl.Limit)

		transcribeH := handlers.NewTranscribeHandler(rt.deps.Transcriber, rt.cfg.STT.MaxAudioBytes, rt.deps.Logger)
		usageH := handlers.NewUsageHandler(rt.deps.Usage)
		providersH := handlers.NewProvidersHandler(rt.deps.Chain)
		r.Route("/stt", func(r chi.Router) {
			r.Post("/transcribe", transcribeH.Transcribe)
			r.Get("/usage", usageH.Summary)
			r.Get("/providers", providersH.List)
		})
	})

	return r
}
