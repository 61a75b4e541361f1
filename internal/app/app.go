// Package app wires configuration into a running service: stores, blob
// storage, Redis, token verification, the comment stream and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/oidc"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/server"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/sessions"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/tokens"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/users"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/metrics"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	oidcAttempts    = 5
)

// Options overrides process-wide defaults, mainly for tests.
type Options struct {
	Clock      clock.Clock
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type App struct {
	cfg     *config.Config
	stores  *Stores
	redis   *redis.Client
	router  *gin.Engine
	server  *http.Server
	sweeper *share.Sweeper

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New builds the service. It fails only when a configured MongoDB cannot be
// reached; every other dependency degrades with a warning.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	clk := opts.Clock
	metrics.RegisterCollectors(opts.Registerer)

	stores, err := OpenStores(ctx, cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	a := &App{cfg: cfg, stores: stores}
	a.redis = connectRedis(ctx, cfg.Redis)

	blobs, err := openBlobs(ctx, cfg, clk)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	links, err := share.NewManager(stores.Documents, share.Options{
		Origin:           cfg.Server.PublicOrigin,
		TTL:              cfg.Share.LinkTTL,
		ExpiredRetention: cfg.Share.ExpiredRetention,
		CacheSize:        cfg.Share.CacheSize,
		Clock:            clk,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.sweeper = share.NewSweeper(links, cfg.Share.SweepInterval)

	gate := access.NewGate(stores.Documents, links, clk)
	usersSvc := users.NewService(stores.Users)

	var notifier comments.Notifier = comments.NewLocalNotifier()
	if a.redis != nil {
		notifier = comments.NewRedisNotifier(a.redis, "")
	} else if stores.Persistent() {
		logger.Warnf("Redis is not configured; live comments only reach subscribers on this instance")
	}
	stream := comments.NewStream(stores.Comments, notifier, gate, usersSvc, clk)

	verifier, idTokens := buildVerifiers(ctx, cfg)

	checks := map[string]server.Check{"mongo": stores.Ping}
	if cfg.Redis.Addr() != "" {
		checks["redis"] = func(ctx context.Context) error {
			if a.redis == nil {
				return errors.New("redis unavailable")
			}
			return a.redis.Ping(ctx).Err()
		}
	}
	checks["auth"] = func(context.Context) error {
		if verifier == nil {
			return errors.New("no token verifier configured")
		}
		return nil
	}

	a.router = server.NewRouter(server.Deps{
		Config:    cfg,
		Verifier:  verifier,
		IDTokens:  idTokens,
		Blacklist: sessions.NewBlacklist(a.redis),
		Redis:     a.redis,
		Users:     usersSvc,
		Documents: stores.Documents,
		Blobs:     blobs,
		Links:     links,
		Gate:      gate,
		Stream:    stream,
		Checks:    checks,
		Gatherer:  opts.Gatherer,
		Clock:     clk,
	})

	a.baseCtx, a.cancelBase = context.WithCancel(context.Background())
	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return a.baseCtx },
	}
	// Comment streams never go idle; end them so Shutdown can complete.
	a.server.RegisterOnShutdown(a.cancelBase)
	return a, nil
}

// Handler exposes the router, e.g. for httptest.
func (a *App) Handler() http.Handler { return a.router }

// Run serves HTTP and sweeps expired share tokens until ctx is done or the
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sweeper.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases connections. Safe to call after Run returned.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.cancelBase != nil {
		a.cancelBase()
	}
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.stores != nil {
		err = multierr.Append(err, a.stores.Close(ctx))
	}
	return err
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	addr := cfg.Addr()
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("Redis at %s unavailable, continuing without it: %v", addr, err)
		_ = client.Close()
		return nil
	}
	logger.Infof("connected to Redis at %s", addr)
	return client
}

func openBlobs(ctx context.Context, cfg *config.Config, clk clock.Clock) (blob.Store, error) {
	if cfg.MinIO.Endpoint == "" {
		base := "http://" + net.JoinHostPort(publicHost(cfg.Server.Host), cfg.Server.Port) + "/blobs"
		logger.Warnf("MINIO_ENDPOINT is not set; PDFs are kept in memory and served from %s", base)
		return blob.NewMemoryStore(base, clk), nil
	}
	s, err := blob.NewMinIOStore(ctx, cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return s, nil
}

func publicHost(h string) string {
	if h == "" || h == "0.0.0.0" || h == "::" {
		return "localhost"
	}
	return h
}

// buildVerifiers returns the bearer token verifier for API routes and the
// id_token verifier used by login. Either may be nil.
func buildVerifiers(ctx context.Context, cfg *config.Config) (api, idTokens middleware.Verifier) {
	if cfg.JWT.InsecureVerify {
		logger.Warn("ALLOW_INSECURE_TOKEN is set: token signatures are NOT verified")
		v := oidc.NewInsecureVerifier()
		return v, v
	}

	var chain middleware.Verifiers
	if cfg.JWT.Secret != "" {
		hs, err := tokens.NewHS256Verifier(cfg.JWT.Secret)
		if err != nil {
			logger.Warnf("HS256 verifier: %v", err)
		} else {
			chain = append(chain, hs)
		}
	}
	if issuer := cfg.Keycloak.Issuer(); issuer != "" {
		ov, err := oidc.NewVerifierWithRetry(ctx, issuer, cfg.Keycloak.ClientID, oidcAttempts)
		if err != nil {
			logger.Warnf("OIDC verifier for %s unavailable: %v", issuer, err)
		} else {
			chain = append(chain, ov)
			idTokens = ov
		}
	}
	switch len(chain) {
	case 0:
		return nil, idTokens
	case 1:
		return chain[0], idTokens
	}
	return chain, idTokens
}
