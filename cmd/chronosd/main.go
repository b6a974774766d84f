package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chronoslabs/chronos/internal/identity"
	"github.com/chronoslabs/chronos/internal/ledger"
	"github.com/chronoslabs/chronos/internal/proof"
	"github.com/chronoslabs/chronos/internal/server/handler"
	"github.com/chronoslabs/chronos/internal/temporal"
	"github.com/chronoslabs/chronos/internal/verifier"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("chronosd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("chronosd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8460)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("auth.signing_secret", "")
	viper.SetDefault("auth.issuer", "chronosd")
	viper.SetDefault("auth.token_ttl_seconds", 3600)
	viper.SetDefault("sweep.interval", "5m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Ledger ───────────────────────────────────────────────────────────────
	var chain ledger.Ledger
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		chain = ledger.NewPostgresLedger(db, logger)
	} else {
		logger.Info("no database.url configured, using in-memory ledger")
		chain = ledger.New(logger)
	}

	startCtx := context.Background()
	if err := chain.Verify(startCtx); err != nil {
		logger.Warn("ledger integrity check FAILED at startup", zap.Error(err))
	} else {
		n, _ := chain.Len(startCtx)
		logger.Info("ledger verified", zap.Int("transactions", n))
	}

	// ── Core components ──────────────────────────────────────────────────────
	coord := temporal.NewCoordinator(logger)
	proofs := proof.NewEngine(logger)
	v := verifier.New(chain, coord, proofs, logger)

	// ── Service tokens ───────────────────────────────────────────────────────
	var tokens *identity.TokenIssuer
	if secret := viper.GetString("auth.signing_secret"); secret != "" {
		ttl := time.Duration(viper.GetInt("auth.token_ttl_seconds")) * time.Second
		tokens = identity.NewTokenIssuer([]byte(secret), viper.GetString("auth.issuer"), ttl)
		logger.Info("service token auth enabled", zap.Duration("ttl", ttl))
	} else {
		logger.Warn("auth.signing_secret not set — write endpoints are UNAUTHENTICATED; do not use in production")
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	rps := viper.GetInt("server.rate_limit_rps")
	if rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	auth := handler.RequireToken(tokens, logger)

	v1 := router.Group("/api/v1")
	handler.NewLedgerHandler(chain, v, logger).Register(v1, auth)
	handler.NewTemporalHandler(coord, logger).Register(v1, auth)
	handler.NewProofHandler(proofs, logger).Register(v1, auth)
	handler.NewReportHandler(v, logger).Register(v1)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: periodic chain verification sweep ────────────────────────
	sweepInterval := viper.GetDuration("sweep.interval")
	if sweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					err := chain.Verify(ctx)
					cancel()
					handler.RecordIntegritySweep(err == nil)
					if err != nil {
						logger.Error("integrity sweep detected a broken chain", zap.Error(err))
					}
				case <-quit:
					return
				}
			}
		}()
	}

	httpPort := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("chronosd listening", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down chronosd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("chronosd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
