// Package server assembles the gin engine: global middleware, health and
// metrics endpoints, and every API handler.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/handlers"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/sessions"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/users"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Deps is everything the router needs. Optional parts may be nil.
type Deps struct {
	Config    *config.Config
	Verifier  middleware.Verifier
	IDTokens  middleware.Verifier
	Blacklist *sessions.Blacklist
	Redis     *redis.Client
	Users     *users.Service
	Documents repository.Repository
	Blobs     blob.Store
	Links     *share.Manager
	Gate      *access.Gate
	Stream    *comments.Stream
	Checks    map[string]Check
	Gatherer  prometheus.Gatherer
	Clock     clock.Clock
	StartTime time.Time
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d Deps) *gin.Engine {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.StartTime.IsZero() {
		d.StartTime = d.Clock.Now()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	cfg := d.Config

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && d.Redis != nil {
			r.Use(middleware.RedisRateLimitMiddleware(d.Redis, "api", cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window, d.Clock))
		} else {
			r.Use(middleware.RateLimitMiddleware("api", cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readyHandler(d))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	handlers.RegisterSwagger(r)

	var rev middleware.RevocationChecker
	if d.Blacklist.Enabled() {
		rev = d.Blacklist
	}
	auth := middleware.AuthMiddleware(d.Verifier, rev)
	optAuth := middleware.OptionalAuth(d.Verifier, rev)

	root := r.Group("/")
	if d.Users != nil {
		handlers.NewAuthHandler(cfg, d.Users, d.Blacklist, d.IDTokens).Register(root, auth)
	}
	handlers.NewDocumentHandler(d.Documents, d.Blobs, d.Gate, d.Links, handlers.DocumentOptions{
		MaxBytes:   cfg.Upload.MaxBytes,
		PresignTTL: cfg.MinIO.PresignTTL,
		Clock:      d.Clock,
	}).Register(root, auth)
	handlers.NewSharedHandler(d.Documents, d.Blobs, d.Gate, cfg.MinIO.PresignTTL).Register(root, optAuth)
	handlers.NewCommentsHandler(d.Gate, d.Stream, 0).Register(root, auth, optAuth)

	if mem, ok := d.Blobs.(*blob.MemoryStore); ok {
		r.GET("/blobs/*path", memoryBlobHandler(mem, d.Clock))
	}
	return r
}

func readyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := make(map[string]bool, len(d.Checks))
		for name, check := range d.Checks {
			err := check(ctx)
			deps[name] = err == nil
			if err != nil {
				ready = false
			}
		}
		body := gin.H{"deps": deps, "uptime": d.Clock.Since(d.StartTime).Round(time.Second).String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	}
}

// corsMiddleware allows the configured origins; "*" allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			h.Set("Access-Control-Expose-Headers", "Content-Length")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// memoryBlobHandler serves the in-memory blob store's presigned URLs when
// MinIO is not configured.
func memoryBlobHandler(store *blob.MemoryStore, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := strconv.ParseInt(c.Query("expires"), 10, 64)
		if err != nil || clk.Now().Unix() > exp {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "url_expired", "message": "download link expired"})
			return
		}
		data, ct, ok := store.Open(strings.TrimPrefix(c.Param("path"), "/"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Not found."})
			return
		}
		c.Data(http.StatusOK, ct, data)
	}
}
