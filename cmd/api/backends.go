package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/config"
	"github.com/yourusername/market-api/internal/store"
)

// openStore は DATABASE_URL があれば PostgreSQL、無ければインメモリのストアを返します。
// インメモリは開発用で、release モードでは Validate で弾かれます。
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is not set; using in-memory store")
		return store.NewMemory(), nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", zap.String("database", redactURL(cfg.DatabaseURL)))
	return pg, nil
}

// setupUserCache は REDIS_URL が設定されていればユーザーキャッシュを作成します。
// 接続できない場合はキャッシュ無しで起動を続けます。
func setupUserCache(ctx context.Context, cfg *config.Config, backing store.UserLookup, logger *zap.Logger) (*store.UserCache, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		logger.Warn("redis unavailable; user cache disabled", zap.String("redis", redactURL(cfg.RedisURL)), zap.Error(err))
		return nil, func() {}, nil
	}

	cache := store.NewUserCache(rdb, cfg.UserCacheTTL, backing)
	cache.OnError(func(op string, err error) {
		logger.Warn("user cache error", zap.String("op", op), zap.Error(err))
	})
	logger.Info("user cache enabled", zap.String("redis", redactURL(cfg.RedisURL)), zap.Duration("ttl", cfg.UserCacheTTL))
	return cache, func() { _ = rdb.Close() }, nil
}

// redactURL は接続URLからパスワードを取り除きます。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
