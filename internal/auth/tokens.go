package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind はトークンの用途です。
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

const (
	// DefaultAccessTTL はアクセストークンの既定の有効期限です。
	DefaultAccessTTL = 60 * time.Minute
	// DefaultRefreshTTL はリフレッシュトークンの既定の有効期限です。
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minSecretLength = 32
	tokenIssuer     = "market-api"
)

// ErrInvalidCredential は署名不正・期限切れ・形式不正などでトークンを受け付けられないことを表します。
// 理由はクライアントに区別して返しません。
var ErrInvalidCredential = errors.New("auth: invalid credential")

// TokenConfig は署名鍵と有効期限の設定です。起動時に一度だけ作られ、以後は変更しません。
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair はログイン・リフレッシュ時に発行するトークンの組です。
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type tokenClaims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens はトークンの発行と検証を行います。状態を持たないため並行に利用できます。
type Tokens struct {
	cfg   TokenConfig
	now   func() time.Time
	newID func() string
}

// TokensOption は Tokens の生成オプションです。
type TokensOption func(*Tokens)

// WithClock は現在時刻の取得方法を差し替えます。
func WithClock(now func() time.Time) TokensOption {
	return func(t *Tokens) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIDSource はトークンID (jti) の生成方法を差し替えます。
func WithIDSource(newID func() string) TokensOption {
	return func(t *Tokens) {
		if newID != nil {
			t.newID = newID
		}
	}
}

// NewTokens は設定を検証して Tokens を作成します。署名鍵が使えない場合はエラーを返すので、起動を中止してください。
func NewTokens(cfg TokenConfig, opts ...TokensOption) (*Tokens, error) {
	if len(cfg.AccessSecret) < minSecretLength {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretLength)
	}
	if len(cfg.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token ttl must be positive")
	}

	t := &Tokens{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL はアクセストークンの有効期限を返します。
func (t *Tokens) AccessTTL() time.Duration { return t.cfg.AccessTTL }

// RefreshTTL はリフレッシュトークンの有効期限を返します。
func (t *Tokens) RefreshTTL() time.Duration { return t.cfg.RefreshTTL }

// Issue はアクセストークンとリフレッシュトークンを発行します。ログインとリフレッシュの両方で使います。
func (t *Tokens) Issue(principalID int64) (TokenPair, error) {
	if principalID <= 0 {
		return TokenPair{}, fmt.Errorf("invalid principal id: %d", principalID)
	}
	now := t.now()

	access, accessExp, err := t.sign(principalID, TokenAccess, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := t.sign(principalID, TokenRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify はトークンを検証し、ユーザーIDを返します。
// 失敗時は理由に関わらず ErrInvalidCredential を返します。
func (t *Tokens) Verify(token string, kind TokenKind) (int64, error) {
	secret, _, err := t.keyFor(kind)
	if err != nil {
		return 0, ErrInvalidCredential
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)

	var claims tokenClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidCredential
	}
	if claims.Kind != kind {
		return 0, ErrInvalidCredential
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCredential
	}
	return id, nil
}

func (t *Tokens) sign(principalID int64, kind TokenKind, now time.Time) (string, time.Time, error) {
	secret, ttl, err := t.keyFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(ttl)

	claims := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(principalID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        t.newID(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

func (t *Tokens) keyFor(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case TokenAccess:
		return t.cfg.AccessSecret, t.cfg.AccessTTL, nil
	case TokenRefresh:
		return t.cfg.RefreshSecret, t.cfg.RefreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token kind: %q", kind)
	}
}
