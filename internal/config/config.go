// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength は JWT 署名鍵に要求する最小バイト数です。
const MinSecretLength = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabaseURL string // PostgreSQL接続URL（空の場合はインメモリストア）
	DBMaxConns  int32  // コネクションプールの最大接続数

	// キャッシュ設定
	RedisURL     string        // ユーザーキャッシュ用Redis接続URL（空の場合は無効）
	UserCacheTTL time.Duration // ユーザーキャッシュの有効期限

	// 認証設定
	JWTAccessSecret  string        // アクセストークン署名鍵
	JWTRefreshSecret string        // リフレッシュトークン署名鍵
	AccessTokenTTL   time.Duration // アクセストークンの有効期限
	RefreshTokenTTL  time.Duration // リフレッシュトークンの有効期限
	BcryptCost       int           // bcrypt のコスト
	// RefreshAcceptsAccessToken が true の場合、/auth/refresh はアクセストークンで認証します。
	// 既存クライアントとの互換用で、既定はリフレッシュトークンでの認証です。
	RefreshAcceptsAccessToken bool

	// EphemeralSecrets は署名鍵が未設定のため起動時に乱数で生成したことを示します。
	EphemeralSecrets bool
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getEnvAsInt("DB_MAX_CONNS", 10)),

		RedisURL:     getEnv("REDIS_URL", ""),
		UserCacheTTL: getEnvAsDuration("USER_CACHE_TTL", 5*time.Minute),

		JWTAccessSecret:           getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:            getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:           getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:                getEnvAsInt("BCRYPT_COST", 10),
		RefreshAcceptsAccessToken: getEnvAsBool("AUTH_REFRESH_ACCEPTS_ACCESS_TOKEN", false),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 開発環境では署名鍵が無くても起動できるようにする（再起動でトークンは無効になる）
	if config.GinMode != "release" {
		if err := config.fillEphemeralSecrets(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}

	if c.GinMode == "release" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
		if len(c.JWTAccessSecret) < MinSecretLength {
			return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes in release mode", MinSecretLength)
		}
		if len(c.JWTRefreshSecret) < MinSecretLength {
			return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes in release mode", MinSecretLength)
		}
		if c.JWTAccessSecret == c.JWTRefreshSecret {
			return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) fillEphemeralSecrets() error {
	if c.JWTAccessSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.JWTAccessSecret = secret
		c.EphemeralSecrets = true
	}
	if c.JWTRefreshSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.JWTRefreshSecret = secret
		c.EphemeralSecrets = true
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, MinSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 15m, 168h）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
