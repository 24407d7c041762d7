// Package app wires the blacklist service's component graph and runs it in
// one of two modes: "api" serves reads and the control plane;
// "collector-worker" runs the scheduler's periodic collection loop. Mirrors
// the teacher's app.Run / runAPI / runWorker split.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jclee94/blacklist/internal/auth"
	"github.com/jclee94/blacklist/internal/config"
	"github.com/jclee94/blacklist/internal/httpserver"
	"github.com/jclee94/blacklist/internal/platform"
	"github.com/jclee94/blacklist/internal/telemetry"
	"github.com/jclee94/blacklist/internal/vault"
	"github.com/jclee94/blacklist/internal/version"
	"github.com/jclee94/blacklist/pkg/cache"
	"github.com/jclee94/blacklist/pkg/collection"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/collector/regtech"
	"github.com/jclee94/blacklist/pkg/collector/secudium"
	"github.com/jclee94/blacklist/pkg/control"
	"github.com/jclee94/blacklist/pkg/ingest"
	"github.com/jclee94/blacklist/pkg/ipstore"
	"github.com/jclee94/blacklist/pkg/scheduler"
	"github.com/jclee94/blacklist/pkg/serving"
)

const cacheTTL = 5 * time.Minute

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or collector-worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting blacklist",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "blacklist", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.CacheURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.CacheURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	} else {
		logger.Info("cache: CACHE_URL unset, serving reads from the in-process tier only")
	}

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	comp, err := buildComponents(ctx, cfg, logger, db, rdb)
	if err != nil {
		return fmt.Errorf("building component graph: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, comp)
	case "collector-worker":
		return runCollectorWorker(ctx, cfg, logger, comp)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// components holds every domain object built once and shared across modes.
type components struct {
	ipStore    *ipstore.Store
	runs       *collection.Store
	cacheLayer *cache.Layer
	vault      *vault.Vault
	collectors []collector.Collector
	pipeline   *ingest.Pipeline
	scheduler  *scheduler.Scheduler
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*components, error) {
	ipStore := ipstore.NewStore(db)
	runs := collection.NewStore(db)
	cacheLayer := cache.NewLayer(rdb, logger, cacheTTL)

	// A nil rdb (CACHE_URL unset) leaves rateLimiter nil too: vault.Probe and
	// vault.Record both treat a nil limiter as "no lockout enforced" rather
	// than dereferencing a Redis client that was never connected.
	var rateLimiter *auth.RateLimiter
	if rdb != nil {
		rateLimiter = auth.NewRateLimiter(rdb, "vault_lockout", cfg.MaxAuthAttempts, time.Duration(cfg.BlockDurationHours)*time.Hour)
	}

	keyVersions := vault.NewKeyVersionStore(db)
	keyVersion, err := keyVersions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vault key version: %w", err)
	}

	v, err := vault.New(cfg.VaultPath, cfg.VaultSeedPath, keyVersion, rateLimiter)
	if err != nil {
		return nil, fmt.Errorf("opening credential vault: %w", err)
	}

	// Seed fallback credentials from env vars when the vault has no entry
	// yet, so a fresh deployment can collect before an operator calls
	// POST /api/collection/credentials.
	if err := seedFallbackCredential(v, ipstore.SourceRegtech, cfg.RegtechUsername, cfg.RegtechPassword); err != nil {
		return nil, err
	}
	if err := seedFallbackCredential(v, ipstore.SourceSecudium, cfg.SecudiumUsername, cfg.SecudiumPassword); err != nil {
		return nil, err
	}

	collectors := []collector.Collector{
		regtech.New(cfg.RegtechBaseURL, v, logger),
		secudium.New(cfg.SecudiumBaseURL, cfg.SecudiumEnabled, v, logger),
	}

	pipeline := ingest.NewPipeline(ipStore, rdb)

	sched := scheduler.New(collectors, pipeline, runs, logger, cfg.MaxConcurrentCollections, cfg.RetentionDays)
	if !cfg.CollectionAllowed() {
		for _, c := range collectors {
			sched.Enable(c.Source(), false)
		}
		logger.Info("collection disabled at startup", "force_disable", cfg.ForceDisableCollection)
	}

	return &components{
		ipStore:    ipStore,
		runs:       runs,
		cacheLayer: cacheLayer,
		vault:      v,
		collectors: collectors,
		pipeline:   pipeline,
		scheduler:  sched,
	}, nil
}

// seedFallbackCredential writes username/password into the vault only when
// both are set and the vault has no entry yet — an operator-supplied
// credential set via the control plane always wins on restart.
func seedFallbackCredential(v *vault.Vault, source ipstore.Source, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := v.Get(source); err == nil {
		return nil
	} else if !errors.Is(err, vault.ErrNotFound) {
		return fmt.Errorf("checking existing vault entry for %s: %w", source, err)
	}
	if err := v.Put(source, username, password); err != nil {
		return fmt.Errorf("seeding fallback credential for %s: %w", source, err)
	}
	return nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, comp *components) error {
	var apiKeyAuth *auth.APIKeyAuthenticator
	if cfg.DefaultAPIKey != "" {
		apiKeyAuth = auth.NewAPIKeyAuthenticator(cfg.DefaultAPIKey)
	} else {
		apiKeyAuth = auth.NewAPIKeyAuthenticator()
		logger.Info("control plane: DEFAULT_API_KEY not set, falling back to bearer JWT only")
	}

	var jwtAuth *auth.JWTAuthenticator
	if cfg.JWTSecretKey != "" {
		jwtAuth = auth.NewJWTAuthenticator(cfg.JWTSecretKey)
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, apiKeyAuth, jwtAuth)

	servingHandler := serving.NewHandler(comp.ipStore, comp.runs, comp.cacheLayer)
	servingHandler.Mount(srv.ReadRouter)

	controlHandler := control.NewHandler(comp.scheduler, comp.runs, comp.vault)
	controlHandler.Mount(srv.ControlRouter)

	if rdb != nil {
		go comp.cacheLayer.SubscribeInvalidation(ctx)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runCollectorWorker runs the scheduler's periodic collection loop. The
// pool bounding concurrent collector I/O (COLLECTOR_WORKER_POOL_SIZE) is
// distinct from MaxConcurrentCollections, which scheduler.New already
// enforces via its own semaphore — this mode just blocks on Scheduler.Run.
func runCollectorWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, comp *components) error {
	logger.Info("collector worker started",
		"sources", len(comp.collectors),
		"max_concurrent_collections", cfg.MaxConcurrentCollections,
		"collector_worker_pool_size", cfg.CollectorWorkerPoolSize,
	)
	return comp.scheduler.Run(ctx)
}
