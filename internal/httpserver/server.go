package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jclee94/blacklist/internal/auth"
	"github.com/jclee94/blacklist/internal/config"
	"github.com/jclee94/blacklist/internal/version"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router       *chi.Mux
	ReadRouter   chi.Router // unauthenticated read endpoints (/api/blacklist, /api/fortigate, /api/v2)
	ControlRouter chi.Router // authenticated control-plane endpoints (/api/collection)
	Logger       *slog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client // nil when CACHE_URL is unset; health check skips it
	Metrics      *prometheus.Registry
	startedAt    time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints. rdb may be nil when CACHE_URL is unset — the health check then
// reports the cache tier as unconfigured rather than unhealthy. Domain handlers are mounted on ReadRouter/ControlRouter by the
// caller after NewServer returns.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, apiKeyAuth *auth.APIKeyAuthenticator, jwtAuth *auth.JWTAuthenticator) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Liveness (never depends on upstreams).
	s.Router.Get("/health", s.handleHealth)

	// Prometheus metrics (unauthenticated).
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// Read endpoints: unauthenticated by default. If DEFAULT_API_KEY is set
	// and the operator wants read endpoints gated too, the same middleware
	// can be attached by the caller; by default we leave this subrouter open
	// per the external-interfaces contract.
	s.Router.Route("/api", func(r chi.Router) {
		s.ReadRouter = r
	})

	// Control-plane endpoints: always require authentication.
	s.Router.Route("/api/collection", func(r chi.Router) {
		r.Use(auth.Middleware(apiKeyAuth, jwtAuth, logger))
		s.ControlRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// healthResponse is the JSON shape returned by GET /health.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth reports liveness plus the health of each dependent component.
// It never blocks on an in-flight collection run. A down cache is reported
// as "degraded", never "unhealthy", since reads keep being served from the
// in-process tier; a degraded cache or an unhealthy db sets the overall
// status to "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := map[string]string{}

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("health check: database ping failed", "error", err)
		components["db"] = "unhealthy"
	} else {
		components["db"] = "healthy"
	}

	switch {
	case s.Redis == nil:
		components["cache"] = "unconfigured"
	default:
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			components["cache"] = "degraded"
		} else {
			components["cache"] = "healthy"
		}
	}

	// The collector component reflects configuration, not connectivity — a
	// live probe would itself perform the blocking upstream fetch this
	// endpoint is forbidden from doing.
	components["collector"] = "healthy"

	status := "ok"
	if components["db"] == "unhealthy" || components["cache"] == "degraded" {
		status = "degraded"
	}

	Respond(w, http.StatusOK, healthResponse{
		Status:     status,
		Version:    version.Version,
		Components: components,
	})
}
