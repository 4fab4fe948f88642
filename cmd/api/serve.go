package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/api"
	"github.com/yourusername/market-api/internal/auth"
	"github.com/yourusername/market-api/internal/config"
	"github.com/yourusername/market-api/internal/logging"
	"github.com/yourusername/market-api/internal/metrics"
	"github.com/yourusername/market-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.EphemeralSecrets {
		logger.Warn("JWT secrets are not set; using ephemeral secrets, tokens will not survive a restart")
	}

	gin.SetMode(cfg.GinMode)

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, closeCache, err := setupUserCache(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	deps, err := buildDeps(cfg, db, cache)
	if err != nil {
		return err
	}

	router := newRouter(cfg, logger, deps.metrics)
	setupRoutes(router, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// routeDeps はルーティングに必要な組み立て済みの依存関係です。
type routeDeps struct {
	store   store.Store
	auth    *auth.Manager
	hasher  auth.PasswordHasher
	cache   api.UserInvalidator
	metrics *metrics.Metrics
}

func buildDeps(cfg *config.Config, db store.Store, cache *store.UserCache) (*routeDeps, error) {
	tokens, err := auth.NewTokens(auth.TokenConfig{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	deps := &routeDeps{
		store:   db,
		hasher:  auth.NewPasswordHasher(cfg.BcryptCost),
		metrics: metrics.New(),
	}

	var lookup store.UserLookup = db
	if cache != nil {
		lookup = cache
		deps.cache = cache
	}

	deps.auth, err = auth.NewManager(auth.Options{
		Tokens:                    tokens,
		Users:                     db,
		Lookup:                    lookup,
		Hasher:                    deps.hasher,
		Cookies:                   auth.CookiePolicy{Secure: cfg.GinMode == gin.ReleaseMode},
		Metrics:                   deps.metrics,
		RefreshAcceptsAccessToken: cfg.RefreshAcceptsAccessToken,
	})
	if err != nil {
		return nil, err
	}
	return deps, nil
}
