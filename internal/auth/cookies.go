package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"

	// RefreshPath はリフレッシュトークンのクッキーを送らせるパスです。
	RefreshPath = "/auth/refresh"
)

// CredentialSlot はトークンを運ぶクッキーと、そこに入るトークンの種類の組です。
type CredentialSlot struct {
	Cookie string
	Kind   TokenKind
}

var (
	// AccessSlot は全ルートに送られるアクセストークンのクッキーです。
	AccessSlot = CredentialSlot{Cookie: AccessTokenCookieName, Kind: TokenAccess}
	// RefreshSlot は RefreshPath にだけ送られるリフレッシュトークンのクッキーです。
	RefreshSlot = CredentialSlot{Cookie: RefreshTokenCookieName, Kind: TokenRefresh}
)

// read はリクエストからスロットのトークンを取り出します。無い場合は空文字を返します。
func (s CredentialSlot) read(c *gin.Context) string {
	value, err := c.Cookie(s.Cookie)
	if err != nil {
		return ""
	}
	return value
}

// CookiePolicy はトークンクッキーの属性です。どちらのクッキーも HttpOnly でスクリプトからは読めません。
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

func (p CookiePolicy) sameSite() http.SameSite {
	if p.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return p.SameSite
}

// setTokens は発行したトークンの組をクッキーに設定します。
func (p CookiePolicy) setTokens(c *gin.Context, pair TokenPair, now time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   p.Domain,
		Expires:  pair.AccessExpiresAt,
		MaxAge:   maxAge(pair.AccessExpiresAt, now),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.sameSite(),
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     RefreshPath,
		Domain:   p.Domain,
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   maxAge(pair.RefreshExpiresAt, now),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.sameSite(),
	})
}

// clearTokens は両方のクッキーを削除させます。設定時と同じ Path を指定しないとブラウザは削除しません。
func (p CookiePolicy) clearTokens(c *gin.Context) {
	for _, cookie := range []struct{ name, path string }{
		{AccessTokenCookieName, "/"},
		{RefreshTokenCookieName, RefreshPath},
	} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     cookie.name,
			Value:    "",
			Path:     cookie.path,
			Domain:   p.Domain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   p.Secure,
			SameSite: p.sameSite(),
		})
	}
}

func maxAge(expiresAt, now time.Time) int {
	seconds := int(expiresAt.Sub(now).Seconds())
	if seconds <= 0 {
		return -1
	}
	return seconds
}
