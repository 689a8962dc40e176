// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/tutormarket/internal/adapters/http/swagger"
	"github.com/okian/tutormarket/internal/domain/types"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	HealthProvider
	StatsProvider
	PricingDependencies
	RankDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	pricingHandler *PricingHandler
	rankHandler    *RankHandler

	corsOrigins     []string
	rateLimit       int
	rateLimitWindow time.Duration
	logger          logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		pricingHandler:  NewPricingHandler(deps),
		rankHandler:     NewRankHandler(deps),
		corsOrigins:     []string{"*"},
		rateLimit:       100,
		rateLimitWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Router builds the chi router with the middleware stack and every route.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.With(MetricsMiddleware("healthz")).Get("/healthz", s.healthHandler.HandleHealth)
	r.With(MetricsMiddleware("stats")).Get("/stats", s.statsHandler.HandleStats)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)

	r.Route("/api/v1", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(s.rateLimit, s.rateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, types.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"})
				}),
			))
		}
		r.Route("/pricing", func(r chi.Router) {
			r.With(MetricsMiddleware("pricing_suggest")).Post("/{profileID}/suggest", s.pricingHandler.HandleSuggest)
			r.With(MetricsMiddleware("pricing_comparables")).Post("/{profileID}/comparables", s.pricingHandler.HandleComparables)
			r.With(MetricsMiddleware("pricing_log")).Post("/suggestions", s.pricingHandler.HandleLogSuggestion)
			r.With(MetricsMiddleware("pricing_get")).Get("/suggestions/{suggestionID}", s.pricingHandler.HandleGetSuggestion)
			r.With(MetricsMiddleware("pricing_accept")).Post("/suggestions/{suggestionID}/accept", s.pricingHandler.HandleAccept)
		})
		r.Route("/ranking", func(r chi.Router) {
			r.With(MetricsMiddleware("ranking_candidates")).Post("/", s.rankHandler.HandleRankCandidates)
			r.With(MetricsMiddleware("ranking")).Post("/{profileID}", s.rankHandler.HandleRank)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Code: "NOT_FOUND", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, types.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
