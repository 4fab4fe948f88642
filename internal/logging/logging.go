// Package logging は zap による構造化ログとリクエストログのミドルウェアを提供します。
package logging

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// RequestIDHeader はリクエストIDを受け渡すヘッダーです。
	RequestIDHeader = "X-Request-Id"

	contextLoggerKey = "logging.logger"
)

// New はログレベルと Gin のモードに合わせた zap.Logger を作成します。
// release モードでは JSON、それ以外では開発者向けのコンソール出力になります。
func New(level, ginMode string) (*zap.Logger, error) {
	var cfg zap.Config
	if ginMode == gin.ReleaseMode {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Middleware はリクエストIDを払い出し、リクエスト単位のロガーをコンテキストに載せ、完了時にアクセスログを出力します。
func Middleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		logger := base.With(zap.String("request_id", requestID))
		c.Set(contextLoggerKey, logger)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("http.request", fields...)
		case status >= 400:
			logger.Warn("http.request", fields...)
		default:
			logger.Info("http.request", fields...)
		}
	}
}

// FromContext はリクエスト単位のロガーを返します。ミドルウェアを通っていない場合は何も出力しないロガーを返します。
func FromContext(c *gin.Context) *zap.Logger {
	if c != nil {
		if v, ok := c.Get(contextLoggerKey); ok {
			if logger, ok := v.(*zap.Logger); ok {
				return logger
			}
		}
	}
	return zap.NewNop()
}
