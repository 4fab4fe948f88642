// Package auth はトークンの発行・検証、認証ゲート、登録・ログイン・ログアウト・リフレッシュを提供します。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/metrics"
	"github.com/yourusername/market-api/internal/store"
)

// ErrInvalidCredentials はログイン失敗です。メールアドレスが無いのかパスワード違いなのかは区別しません。
var ErrInvalidCredentials = httperr.New(http.StatusBadRequest, "INVALID_CREDENTIALS", "Wrong email or password")

// 未登録メールアドレスでも bcrypt の比較を行うためのパスワードです。
const dummyPassword = "market-api/dummy-password"

// Options は Manager の依存関係です。
type Options struct {
	Tokens *Tokens
	Users  store.UserStore
	// Lookup はゲートでのユーザー参照です。nil の場合は Users を使います。
	Lookup  store.UserLookup
	Hasher  PasswordHasher
	Cookies CookiePolicy
	Metrics *metrics.Metrics
	// RefreshAcceptsAccessToken が true のとき、/auth/refresh はアクセストークンで認証します。
	RefreshAcceptsAccessToken bool
	Now                       func() time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	tokens               *Tokens
	users                store.UserStore
	lookup               store.UserLookup
	hasher               PasswordHasher
	cookies              CookiePolicy
	metrics              *metrics.Metrics
	refreshAcceptsAccess bool
	now                  func() time.Time
	dummyHash            string
}

// NewManager は認証マネージャーを作成します。
func NewManager(opts Options) (*Manager, error) {
	if opts.Tokens == nil {
		return nil, errors.New("auth: tokens are required")
	}
	if opts.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if opts.Hasher.cost == 0 {
		opts.Hasher = NewPasswordHasher(0)
	}
	if opts.Lookup == nil {
		opts.Lookup = opts.Users
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummyHash, err := opts.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to prepare dummy hash: %w", err)
	}

	return &Manager{
		tokens:               opts.Tokens,
		users:                opts.Users,
		lookup:               opts.Lookup,
		hasher:               opts.Hasher,
		cookies:              opts.Cookies,
		metrics:              opts.Metrics,
		refreshAcceptsAccess: opts.RefreshAcceptsAccessToken,
		now:                  opts.Now,
		dummyHash:            dummyHash,
	}, nil
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Nickname string `json:"nickname" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=72"`
}

// Register は /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.InvalidInput(err))
		return
	}
	email := strings.TrimSpace(req.Email)
	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		httperr.Respond(c, httperr.BadRequest("Nickname is required"))
		return
	}

	ctx := c.Request.Context()
	if _, err := m.users.FindUserByEmail(ctx, email); err == nil {
		httperr.Respond(c, httperr.BadRequest("Email is already in use"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		httperr.Respond(c, err)
		return
	}
	if _, err := m.users.FindUserByNickname(ctx, nickname); err == nil {
		httperr.Respond(c, httperr.BadRequest("Nickname is already in use"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		httperr.Respond(c, err)
		return
	}

	hash, err := m.hasher.Hash(req.Password)
	if err != nil {
		httperr.Respond(c, fmt.Errorf("hash password: %w", err))
		return
	}

	user, err := m.users.CreateUser(ctx, store.CreateUserInput{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrConflict) {
		// 確認後に同じ値が登録された場合
		httperr.Respond(c, httperr.BadRequest("Email or nickname is already in use"))
		return
	}
	if err != nil {
		httperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.Respond(c, httperr.InvalidInput(err))
		return
	}

	user, err := m.users.FindUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.hasher.Compare(m.dummyHash, req.Password)
		httperr.Respond(c, ErrInvalidCredentials)
		return
	case err != nil:
		httperr.Respond(c, err)
		return
	}

	if !m.hasher.Compare(user.PasswordHash, req.Password) {
		httperr.Respond(c, ErrInvalidCredentials)
		return
	}

	if !m.issue(c, user.ID, "login") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

// Logout は /auth/logout のハンドラーです。トークンは失効させず、クッキーを削除するだけです。
func (m *Manager) Logout(c *gin.Context) {
	m.cookies.clearTokens(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// Refresh は /auth/refresh のハンドラーです。RequireRefresh の後ろで使います。
func (m *Manager) Refresh(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		httperr.Respond(c, httperr.Unauthorized())
		return
	}
	if !m.issue(c, user.ID, "refresh") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tokens refreshed successfully"})
}

func (m *Manager) issue(c *gin.Context, userID int64, reason string) bool {
	pair, err := m.tokens.Issue(userID)
	if err != nil {
		httperr.Respond(c, fmt.Errorf("issue tokens: %w", err))
		return false
	}
	m.cookies.setTokens(c, pair, m.now())
	m.metrics.ObserveTokensIssued(reason)
	return true
}
