package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/api"
	"github.com/yourusername/market-api/internal/config"
	"github.com/yourusername/market-api/internal/logging"
	"github.com/yourusername/market-api/internal/metrics"
)

// newRouter は共通ミドルウェアを設定したルーターを作成します。
func newRouter(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger), m.Middleware())

	// CORSミドルウェアの設定（クッキー認証のため credentials を許可）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		logging.RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "market-api",
		"version": "0.1.0",
	})
}

// setupRoutes は認証と各リソースのルートを登録します。
func setupRoutes(router *gin.Engine, deps *routeDeps) {
	// 誰でも叩けるヘルスチェックとメトリクス
	router.GET("/health", handleHealth)
	router.GET("/metrics", deps.metrics.Handler())

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", deps.auth.Register)
		authRoutes.POST("/login", deps.auth.Login)
		authRoutes.POST("/logout", deps.auth.Logout)
		authRoutes.POST("/refresh", deps.auth.RequireRefresh(), deps.auth.Refresh)
	}

	api.Mount(router, api.Deps{
		Store:     deps.store,
		Auth:      deps.auth,
		Hasher:    deps.hasher,
		UserCache: deps.cache,
	})
}
