package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rakhadjo/payverify/internal/common"
	"github.com/rakhadjo/payverify/internal/config"
	"github.com/rakhadjo/payverify/internal/events"
	"github.com/rakhadjo/payverify/internal/health"
	"github.com/rakhadjo/payverify/internal/intent"
	"github.com/rakhadjo/payverify/internal/issuer"
	"github.com/rakhadjo/payverify/internal/obs"
	"github.com/rakhadjo/payverify/internal/provider"
	"github.com/rakhadjo/payverify/internal/ratelimit"
	"github.com/rakhadjo/payverify/internal/storage/postgres"
	"github.com/rakhadjo/payverify/internal/verifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "payverify")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "payverify-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	probes := map[string]health.Pinger{}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		probes["redis"] = redisPinger{client: redisClient}
	}

	var store intent.Store
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		pgStore := postgres.NewStore(pool)
		probes["postgres"] = pgStore
		store = pgStore
	case config.StoreRedis:
		redisStore := intent.NewRedisStore(redisClient)
		probes["store"] = redisStore
		store = redisStore
	default:
		store = intent.NewMemStore()
	}

	var providerClient provider.Client
	if strings.TrimSpace(cfg.ProviderKeyID) != "" {
		providerClient = provider.Checkout{
			KeyID:     cfg.ProviderKeyID,
			KeySecret: cfg.ProviderKeySecret,
			BaseURL:   cfg.ProviderBaseURL,
			Sandbox:   cfg.AppEnv != "production",
		}
	}

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}

	issuerSvc, err := issuer.NewService(issuer.Config{
		Store:    store,
		Provider: providerClient,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise issuer")
	}
	verifierSvc, err := verifier.NewService(verifier.Config{
		Store:  store,
		Secret: []byte(cfg.SignatureSecret),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise verifier")
	}

	issuerHandler := &issuer.Handler{Svc: issuerSvc, Events: bus}
	verifyHandler := &verifier.Handler{
		Svc:    verifierSvc,
		Events: bus,
		Guard:  &verifier.ReplayGuard{Client: redisClient, TTL: cfg.ReplayGuardTTL},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Probes: probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	verifyLimit := ratelimit.Middleware(
		ratelimit.SlidingWindow{Client: redisClient, Prefix: "rl:verify:"},
		func(r *http.Request) string { return common.ClientIP(r) },
		cfg.VerifyRateWindow,
		cfg.VerifyRateMax,
		func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	)

	r.Route("/v1", func(v chi.Router) {
		v.Post("/orders", issuerHandler.Create)
		v.Get("/orders/{orderId}", issuerHandler.Get)
		v.With(verifyLimit).Post("/orders/{orderId}/verify", verifyHandler.Verify)
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "payverify-api")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func connectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
