// Package api wires together all HTTP routes of the consumer registry.
//
// Route grouping philosophy:
//   - Single-consumer reads (GET /api/v1/consumers/:key) accept anonymous
//     callers; an unauthenticated request simply lands at the public
//     redaction tier, so there is nothing to protect at the transport layer.
//   - Everything that writes, lists, or resolves identities requires a
//     bearer token. Capability checks beyond "authenticated" live in the
//     registration core, which takes the acting identity explicitly.
package api

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/consumer-registry/consumer-registry/internal/api/registry"
	"github.com/consumer-registry/consumer-registry/internal/audit"
	"github.com/consumer-registry/consumer-registry/internal/config"
	"github.com/consumer-registry/consumer-registry/internal/consumers"
	"github.com/consumer-registry/consumer-registry/internal/crypto"
	"github.com/consumer-registry/consumer-registry/internal/db/repositories"
	"github.com/consumer-registry/consumer-registry/internal/middleware"
	"github.com/consumer-registry/consumer-registry/internal/telemetry"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
	shipper      audit.Shipper
	stopGauge    context.CancelFunc
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests drain first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.stopGauge != nil {
		bg.stopGauge()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("closing audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. The replica handle is
// optional; when nil all reads go to the primary.
func NewRouter(cfg *config.Config, db *sql.DB, replica *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	deriver, err := buildDeriver(&cfg.Registry)
	if err != nil {
		return nil, nil, fmt.Errorf("registry key material: %w", err)
	}

	shipper, err := buildShipper(&cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("audit shippers: %w", err)
	}

	userRepo := repositories.NewUserRepository(db)

	svc := consumers.NewService(db, deriver, consumers.Options{
		KeyPrefix:   cfg.Registry.KeyPrefix,
		ProposalTTL: cfg.Registry.ProposalRetention,
		Shipper:     shipper,
		Replica:     replica,
	})

	consumerHandlers := registry.NewConsumerHandlers(svc)
	tokenHandlers := registry.NewTokenHandlers(svc)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(db))

	// Readiness check endpoint (includes the replica when configured)
	router.GET("/ready", readinessHandler(db, replica))

	// API version
	router.GET("/version", versionHandler())

	bg := &BackgroundServices{shipper: shipper}

	// Rate limiters. With Redis configured the buckets are shared across
	// replicas; otherwise each process keeps its own.
	var generalLimiter, proposeLimiter middleware.Limiter
	if addr := cfg.Security.RateLimiting.RedisAddr; addr != "" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Security.RateLimiting.RedisPassword,
			DB:       cfg.Security.RateLimiting.RedisDB,
		})
		generalLimiter = middleware.NewRedisRateLimiter(bg.redisClient, middleware.DefaultRateLimitConfig())
		proposeLimiter = middleware.NewRedisRateLimiter(bg.redisClient, middleware.ProposeRateLimitConfig())
	} else {
		general := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
		propose := middleware.NewRateLimiter(middleware.ProposeRateLimitConfig())
		bg.rateLimiters = []*middleware.RateLimiter{general, propose}
		generalLimiter, proposeLimiter = general, propose
	}

	apiV1 := router.Group("/api/v1")
	{
		// Single-consumer view: public tier without a token, owner/manage
		// tier with one.
		publicGroup := apiV1.Group("")
		publicGroup.Use(middleware.RateLimitMiddleware(generalLimiter, middleware.DefaultRateLimitConfig()))
		publicGroup.Use(middleware.OptionalAuthMiddleware(userRepo))
		{
			publicGroup.GET("/consumers/:key", consumerHandlers.GetHandler())
		}

		// Authenticated endpoints
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalLimiter, middleware.DefaultRateLimitConfig()))
		authenticatedGroup.Use(middleware.AuthMiddleware(userRepo))
		{
			// Registration is the abuse magnet, so it gets the strict limiter
			// on top of the general one.
			authenticatedGroup.POST("/consumers",
				middleware.RateLimitMiddleware(proposeLimiter, middleware.ProposeRateLimitConfig()),
				consumerHandlers.ProposeHandler())

			authenticatedGroup.GET("/consumers", consumerHandlers.ListHandler())
			authenticatedGroup.PUT("/consumers/:key", consumerHandlers.UpdateHandler())

			// Review transitions; the core enforces consumers:manage.
			authenticatedGroup.POST("/consumers/:key/approve", consumerHandlers.ApproveHandler())
			authenticatedGroup.POST("/consumers/:key/reject", consumerHandlers.RejectHandler())
			authenticatedGroup.POST("/consumers/:key/disable", consumerHandlers.DisableHandler())
			authenticatedGroup.POST("/consumers/:key/reenable", consumerHandlers.ReenableHandler())

			authenticatedGroup.GET("/consumers/:key/audit", consumerHandlers.AuditTrailHandler())
			authenticatedGroup.DELETE("/tokens/:id", tokenHandlers.RenounceHandler())
			authenticatedGroup.GET("/users/:username", consumerHandlers.ResolveUserHandler())
		}
	}

	// Consumers-by-stage gauge refresher
	if cfg.Telemetry.Enabled && cfg.Telemetry.Metrics.Enabled {
		every := cfg.Telemetry.Metrics.StagePollEvery
		if every <= 0 {
			every = time.Minute
		}
		statsDB := db
		if replica != nil {
			statsDB = replica
		}
		stats := repositories.NewStatsRepository(sqlx.NewDb(statsDB, "postgres"))
		gaugeCtx, cancel := context.WithCancel(context.Background())
		bg.stopGauge = cancel
		go telemetry.RefreshStageGauge(gaugeCtx, stats, every)
	}

	return router, bg, nil
}

// buildDeriver assembles the registry secret deriver from either the raw hex
// key or the passphrase+salt derivation.
func buildDeriver(cfg *config.RegistryConfig) (*crypto.SecretDeriver, error) {
	if cfg.SecretKeyHex != "" {
		key, err := hex.DecodeString(cfg.SecretKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decode secret_key_hex: %w", err)
		}
		return crypto.NewSecretDeriver(key)
	}
	return crypto.DeriveSecretDeriver(cfg.SecretPassphrase, []byte(cfg.SecretSalt), cfg.SecretIterations)
}

// buildShipper assembles the configured external audit shippers into a single
// fan-out shipper. Returns nil when shipping is disabled; the in-database
// audit trail is written regardless.
func buildShipper(cfg *config.AuditConfig) (audit.Shipper, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var shippers []audit.Shipper
	for _, sc := range cfg.Shippers {
		if !sc.Enabled {
			continue
		}
		switch sc.Type {
		case "file":
			s, err := audit.NewFileShipper(sc.File.Path)
			if err != nil {
				return nil, fmt.Errorf("file shipper: %w", err)
			}
			shippers = append(shippers, s)
		case "webhook":
			timeout := time.Duration(sc.Webhook.TimeoutSecs) * time.Second
			shippers = append(shippers, audit.NewWebhookShipper(sc.Webhook.URL, sc.Webhook.Headers, timeout))
		default:
			return nil, fmt.Errorf("unknown shipper type %q", sc.Type)
		}
	}
	if len(shippers) == 0 {
		return nil, nil
	}
	if len(shippers) == 1 {
		return shippers[0], nil
	}
	return audit.NewMultiShipper(shippers...), nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /healthz [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the primary and, when configured, the read replica.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks: map"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/healthz), this also checks the read replica so a readiness
// gate fails when listing reads would error.
func readinessHandler(db, replica *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if replica != nil {
			if err := replica.Ping(); err != nil {
				checks["replica"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "replica not ready",
				})
				return
			}
			checks["replica"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
