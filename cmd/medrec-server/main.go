package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/records"
	"github.com/medrec/medrec/internal/extraction"
	"github.com/medrec/medrec/internal/platform/aiextract"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/db"
	"github.com/medrec/medrec/internal/platform/hipaa"
	"github.com/medrec/medrec/internal/platform/middleware"
	"github.com/medrec/medrec/internal/platform/telemetry"
	"github.com/medrec/medrec/internal/platform/textlayer"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medrec-server",
		Short: "Medical record extraction API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

// backends holds the resources opened for the configured store and blob
// backends. Nil fields are backends not in use.
type backends struct {
	repo  records.Repository
	blobs blobstore.Store
	pool  *pgxpool.Pool
	rdb   *redis.Client
	minio *blobstore.MinIOStore
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.rdb != nil {
		b.rdb.Close()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.repo = records.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	case config.BackendRedis:
		rdb, err := records.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.rdb = rdb
		b.repo = records.NewRepoRedis(rdb)
		logger.Info().Msg("connected to redis")
	default:
		b.repo = records.NewMemoryRepo()
		logger.Warn().Msg("using in-memory document store; documents are lost on restart")
	}

	switch cfg.BlobBackend {
	case config.BackendMinIO:
		store, err := blobstore.NewMinIOStore(ctx, blobstore.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.minio = store
		b.blobs = store
		logger.Info().Str("bucket", cfg.MinIOBucket).Msg("connected to object storage")
	default:
		b.blobs = blobstore.NewMemoryStore()
	}
	return b, nil
}

// newAI returns the Vertex AI client, or nil when AI extraction is not
// configured.
func newAI(ctx context.Context, cfg *config.Config) (*aiextract.Client, error) {
	if !cfg.AIEnabled() {
		return nil, nil
	}
	return aiextract.New(ctx, aiextract.Config{
		ProjectID: cfg.AIProjectID,
		Region:    cfg.AIRegion,
		Model:     cfg.AIModel,
		Timeout:   cfg.AITimeout,
	})
}

func newService(cfg *config.Config, b *backends, ai *aiextract.Client, logger zerolog.Logger) *records.Service {
	engine := extraction.New(extraction.Options{YearPivot: cfg.YearPivot})

	var ocr textlayer.TextRecognizer
	if ai != nil {
		ocr = ai
	}
	svc := records.NewService(b.repo, b.blobs, textlayer.New(ocr), engine, logger).
		WithConcurrency(cfg.BatchConcurrency)
	if ai != nil {
		svc.WithAI(ai)
	}
	return svc
}

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage backends")
	}
	defer b.Close()

	ai, err := newAI(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create ai client")
	}
	if ai != nil {
		defer ai.Close()
		logger.Info().Str("model", cfg.AIModel).Msg("ai extraction enabled")
	} else {
		logger.Warn().Msg("AI_PROJECT_ID not set; using the local extraction engine only")
	}

	tp := telemetry.New()
	svc := newService(cfg, b, ai, logger).WithMetrics(tp)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tp.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxBodySize, cfg.MaxUploadSize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, middleware.IsUpload))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" {
		logger.Warn().Msg("development mode: all requests are authenticated as an administrator")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
			Logger:     logger,
		}))
	}

	// Audit middleware; entries are persisted when Postgres is available.
	var recorder middleware.AuditRecorder
	if b.pool != nil {
		recorder = hipaa.NewAccessLog(b.pool)
	}
	e.Use(middleware.Audit(logger, recorder))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	switch {
	case b.pool != nil:
		e.GET("/health/db", db.PoolHealthHandler(b.pool))
	case b.rdb != nil:
		e.GET("/health/db", db.HealthHandler(redisPinger{b.rdb}, nil))
	}
	if b.minio != nil {
		e.GET("/health/blob", db.HealthHandler(b.minio, nil))
	}
	e.GET("/metrics", tp.Handler())

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	records.NewHandler(svc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreBackend).Str("blobs", cfg.BlobBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
