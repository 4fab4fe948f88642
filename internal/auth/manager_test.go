package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/market-api/internal/store"
)

type lookupFunc func(ctx context.Context, id int64) (*store.User, error)

func (f lookupFunc) FindUserByID(ctx context.Context, id int64) (*store.User, error) {
	return f(ctx, id)
}

type testEnv struct {
	manager *Manager
	users   *store.Memory
	tokens  *Tokens
	router  *gin.Engine
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &fakeClock{now: time.Now()}
	tokens := newTestTokens(t, clock)
	users := store.NewMemory()

	opts := Options{
		Tokens: tokens,
		Users:  users,
		Hasher: NewPasswordHasher(bcrypt.MinCost),
		Now:    clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	r := gin.New()
	g := r.Group("/auth")
	g.POST("/register", m.Register)
	g.POST("/login", m.Login)
	g.POST("/logout", m.Logout)
	g.POST("/refresh", m.RequireRefresh(), m.Refresh)
	r.GET("/me", m.RequireLogin(), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, user)
	})
	r.GET("/maybe", m.OptionalLogin(), func(c *gin.Context) {
		_, ok := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	return &testEnv{manager: m, users: users, tokens: tokens, router: r}
}

func (e *testEnv) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createUser(t *testing.T, email, nickname, password string) *store.User {
	t.Helper()
	hash, err := e.manager.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	user, err := e.users.CreateUser(context.Background(), store.CreateUserInput{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestRequiredGateWithoutCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	payload := decode(t, rec)
	if payload["code"] != "UNAUTHORIZED" || payload["message"] != "Authentication required" {
		t.Fatalf("unexpected body: %v", payload)
	}
}

func TestRequiredGateWithValidToken(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, err := env.tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	rec := env.do(http.MethodGet, "/me", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	if payload["nickname"] != "alice" {
		t.Fatalf("unexpected principal: %v", payload)
	}
	if _, ok := payload["passwordHash"]; ok {
		t.Fatal("password hash must not be exposed")
	}
}

func TestRequiredGateRejectsRefreshTokenAsAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, _ := env.tokens.Issue(user.ID)

	rec := env.do(http.MethodGet, "/me", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOptionalGateWithoutCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/maybe", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["authenticated"] != false {
		t.Fatal("expected anonymous principal")
	}
}

func TestOptionalGateWithInvalidToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/maybe", nil, &http.Cookie{Name: AccessTokenCookieName, Value: "garbage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["authenticated"] != false {
		t.Fatal("invalid token must resolve to anonymous")
	}
}

func TestOptionalGateWithValidToken(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, _ := env.tokens.Issue(user.ID)

	rec := env.do(http.MethodGet, "/maybe", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken})
	if decode(t, rec)["authenticated"] != true {
		t.Fatal("expected authenticated principal")
	}
}

func TestGateRejectsMissingPrincipal(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Lookup = lookupFunc(func(ctx context.Context, id int64) (*store.User, error) {
			return nil, store.ErrNotFound
		})
	})
	pair, _ := env.tokens.Issue(99)

	rec := env.do(http.MethodGet, "/me", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGateTreatsLookupFailureAsRejection(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Lookup = lookupFunc(func(ctx context.Context, id int64) (*store.User, error) {
			return nil, errors.New("connection refused")
		})
	})
	pair, _ := env.tokens.Issue(1)
	cookie := &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken}

	if rec := env.do(http.MethodGet, "/me", nil, cookie); rec.Code != http.StatusUnauthorized {
		t.Fatalf("required gate status = %d, want 401", rec.Code)
	}
	rec := env.do(http.MethodGet, "/maybe", nil, cookie)
	if rec.Code != http.StatusOK || decode(t, rec)["authenticated"] != false {
		t.Fatalf("optional gate should fall back to anonymous: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/auth/register", gin.H{
		"email":    "a@example.com",
		"nickname": "alice",
		"password": "secret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	payload := decode(t, rec)
	if payload["email"] != "a@example.com" {
		t.Fatalf("unexpected body: %v", payload)
	}
	if _, ok := payload["password"]; ok {
		t.Fatal("password must not be returned")
	}

	stored, err := env.users.FindUserByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail returned error: %v", err)
	}
	if stored.PasswordHash == "secret" || !env.manager.hasher.Compare(stored.PasswordHash, "secret") {
		t.Fatal("password must be stored as a bcrypt hash")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "a@example.com", "alice", "secret")

	cases := []gin.H{
		{"email": "a@example.com", "nickname": "other", "password": "secret"},
		{"email": "b@example.com", "nickname": "alice", "password": "secret"},
	}
	for _, body := range cases {
		rec := env.do(http.MethodPost, "/auth/register", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400 for %v", rec.Code, body)
		}
	}
}

func TestRegisterInvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/auth/register", gin.H{"email": "nope", "password": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if decode(t, rec)["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRegisterRejectsPasswordOverByteLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	// 30 文字だが 90 バイト
	rec := env.do(http.MethodPost, "/auth/register", gin.H{
		"email":    "a@example.com",
		"nickname": "alice",
		"password": strings.Repeat("あ", 30),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if _, err := env.users.FindUserByEmail(context.Background(), "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("user must not be created, got %v", err)
	}

	rec = env.do(http.MethodPost, "/auth/register", gin.H{
		"email":    "a@example.com",
		"nickname": "alice",
		"password": strings.Repeat("あ", 24),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for 72 bytes: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginSuccessSetsCookies(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")

	rec := env.do(http.MethodPost, "/auth/login", gin.H{"email": "a@example.com", "password": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["message"] != "Login successful" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	access := findCookie(rec, AccessTokenCookieName)
	refresh := findCookie(rec, RefreshTokenCookieName)
	if access == nil || refresh == nil {
		t.Fatal("expected both token cookies")
	}
	if !access.HttpOnly || access.Path != "/" {
		t.Fatalf("unexpected access cookie: %#v", access)
	}
	if !refresh.HttpOnly || refresh.Path != RefreshPath {
		t.Fatalf("unexpected refresh cookie: %#v", refresh)
	}
	if access.MaxAge != int(DefaultAccessTTL.Seconds()) {
		t.Fatalf("access MaxAge = %d", access.MaxAge)
	}

	id, err := env.tokens.Verify(access.Value, TokenAccess)
	if err != nil || id != user.ID {
		t.Fatalf("Verify = %d, %v; want %d", id, err, user.ID)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "a@example.com", "alice", "secret")

	cases := []gin.H{
		{"email": "a@example.com", "password": "wrong"},
		{"email": "missing@example.com", "password": "secret"},
	}
	for _, body := range cases {
		rec := env.do(http.MethodPost, "/auth/login", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		payload := decode(t, rec)
		if payload["code"] != "INVALID_CREDENTIALS" || payload["message"] != "Wrong email or password" {
			t.Fatalf("unexpected body: %v", payload)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Fatal("failed login must not set cookies")
		}
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, _ := env.tokens.Issue(user.ID)

	rec := env.do(http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: RefreshTokenCookieName, Value: pair.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["message"] != "Tokens refreshed successfully" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	access := findCookie(rec, AccessTokenCookieName)
	refresh := findCookie(rec, RefreshTokenCookieName)
	if access == nil || refresh == nil {
		t.Fatal("expected both token cookies")
	}
	if access.Value == pair.AccessToken || refresh.Value == pair.RefreshToken {
		t.Fatal("refresh must issue new tokens")
	}
	if id, err := env.tokens.Verify(refresh.Value, TokenRefresh); err != nil || id != user.ID {
		t.Fatalf("Verify = %d, %v", id, err)
	}
}

func TestRefreshRequiresRefreshTokenByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, _ := env.tokens.Issue(user.ID)

	rec := env.do(http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if findCookie(rec, AccessTokenCookieName) != nil {
		t.Fatal("rejected refresh must not set cookies")
	}
}

func TestRefreshAcceptsAccessTokenWhenConfigured(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RefreshAcceptsAccessToken = true })
	user := env.createUser(t, "a@example.com", "alice", "secret")
	pair, _ := env.tokens.Issue(user.ID)

	rec := env.do(http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: AccessTokenCookieName, Value: pair.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: RefreshTokenCookieName, Value: pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for refresh cookie in access mode", rec.Code)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/auth/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decode(t, rec)["message"] != "Logout successful" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	refresh := findCookie(rec, RefreshTokenCookieName)
	if refresh == nil || refresh.MaxAge >= 0 || refresh.Path != RefreshPath {
		t.Fatalf("refresh cookie must be cleared on its own path: %#v", refresh)
	}
	access := findCookie(rec, AccessTokenCookieName)
	if access == nil || access.MaxAge >= 0 {
		t.Fatalf("access cookie must be cleared: %#v", access)
	}
}
