package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/market-api/internal/auth"
	"github.com/yourusername/market-api/internal/store"
)

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type testServer struct {
	t      *testing.T
	store  *store.Memory
	tokens *auth.Tokens
	hasher auth.PasswordHasher
	cache  *recordingInvalidator
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokens(auth.TokenConfig{
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
	})
	if err != nil {
		t.Fatalf("NewTokens returned error: %v", err)
	}
	mem := store.NewMemory()
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	manager, err := auth.NewManager(auth.Options{
		Tokens: tokens,
		Users:  mem,
		Hasher: hasher,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	cache := &recordingInvalidator{}
	r := gin.New()
	Mount(r, Deps{
		Store:     mem,
		Auth:      manager,
		Hasher:    hasher,
		UserCache: cache,
	})

	return &testServer{t: t, store: mem, tokens: tokens, hasher: hasher, cache: cache, router: r}
}

func (s *testServer) createUser(email, nickname, password string) *store.User {
	s.t.Helper()
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.t.Fatalf("Hash returned error: %v", err)
	}
	user, err := s.store.CreateUser(context.Background(), store.CreateUserInput{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hash,
	})
	if err != nil {
		s.t.Fatalf("CreateUser returned error: %v", err)
	}
	return user
}

// cookie はユーザーのアクセストークンクッキーを返します。
func (s *testServer) cookie(user *store.User) *http.Cookie {
	s.t.Helper()
	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.t.Fatalf("Issue returned error: %v", err)
	}
	return &http.Cookie{Name: auth.AccessTokenCookieName, Value: pair.AccessToken}
}

func (s *testServer) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createProduct(owner *store.User, name string) *store.Product {
	s.t.Helper()
	p, err := s.store.CreateProduct(context.Background(), owner.ID, store.ProductInput{
		Name:        name,
		Description: name + " description",
		Price:       1000,
	})
	if err != nil {
		s.t.Fatalf("CreateProduct returned error: %v", err)
	}
	return p
}

func (s *testServer) createArticle(owner *store.User, title string) *store.Article {
	s.t.Helper()
	a, err := s.store.CreateArticle(context.Background(), owner.ID, store.ArticleInput{
		Title:   title,
		Content: title + " content",
	})
	if err != nil {
		s.t.Fatalf("CreateArticle returned error: %v", err)
	}
	return a
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	var payload struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &payload)
	if payload.Code != code {
		t.Fatalf("code = %q, want %q", payload.Code, code)
	}
}
