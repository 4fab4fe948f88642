package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/logging"
	"github.com/yourusername/market-api/internal/store"
)

// PasswordHasher はパスワードのハッシュ化と照合を行います。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// UserInvalidator はユーザー更新後にキャッシュを破棄します。
type UserInvalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// GetUserHandler は GET /users/:id のハンドラーを返します。
func GetUserHandler(users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		user, err := users.FindUserByID(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound("user", id))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type updateUserRequest struct {
	Nickname string `json:"nickname" binding:"required,max=50"`
}

// UpdateUserHandler は PATCH /users/:id のハンドラーを返します。本人のみ変更できます。
func UpdateUserHandler(users store.UserStore, cache UserInvalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}
		nickname := strings.TrimSpace(req.Nickname)
		if nickname == "" {
			httperr.Respond(c, httperr.BadRequest("Nickname is required"))
			return
		}

		ctx := c.Request.Context()
		if _, err := users.FindUserByID(ctx, id); errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound("user", id))
			return
		} else if err != nil {
			httperr.Respond(c, err)
			return
		}
		if id != me.ID {
			httperr.Respond(c, httperr.BadRequest("User does not match the authenticated user"))
			return
		}

		updated, err := users.UpdateUserNickname(ctx, id, nickname)
		if errors.Is(err, store.ErrConflict) {
			httperr.Respond(c, httperr.BadRequest("Nickname is already in use"))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		invalidate(c, cache, id)
		c.JSON(http.StatusOK, updated)
	}
}

type updatePasswordRequest struct {
	Password    string `json:"password" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,max=72"`
}

// UpdatePasswordHandler は PATCH /users/:id/updatePassword のハンドラーを返します。
// 現在のパスワードを照合してから新しいパスワードを保存します。
func UpdatePasswordHandler(users store.UserStore, hasher PasswordHasher, cache UserInvalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		var req updatePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}

		ctx := c.Request.Context()
		// キャッシュ経由のユーザーにはハッシュが無いのでストアから読み直す
		existing, err := users.FindUserByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound("user", id))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if id != me.ID {
			httperr.Respond(c, httperr.BadRequest("User does not match the authenticated user"))
			return
		}
		if !hasher.Compare(existing.PasswordHash, req.Password) {
			httperr.Respond(c, httperr.BadRequest("Wrong password"))
			return
		}

		hash, err := hasher.Hash(req.NewPassword)
		if err != nil {
			httperr.Respond(c, fmt.Errorf("hash password: %w", err))
			return
		}
		updated, err := users.UpdateUserPassword(ctx, id, hash)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		invalidate(c, cache, id)
		c.JSON(http.StatusOK, updated)
	}
}

// UserProductListHandler は GET /users/:id/getUserProductList のハンドラーを返します。
func UserProductListHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		q, err := parseListQuery(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		q.OwnerID = id

		list, total, err := products.ListProducts(c.Request.Context(), q)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, page[store.Product]{List: nonNil(list), TotalCount: total})
	}
}

// FavoritedProductsHandler は GET /users/:id/favorited のハンドラーを返します。
// 対象は認証済みの本人で、新しくお気に入りした順に返します。
func FavoritedProductsHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if id != me.ID {
			httperr.Respond(c, httperr.BadRequest("User does not match the authenticated user"))
			return
		}

		list, err := products.ListFavoritedProducts(c.Request.Context(), me.ID)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(list))
	}
}

func invalidate(c *gin.Context, cache UserInvalidator, id int64) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(c.Request.Context(), id); err != nil {
		logging.FromContext(c).Warn("user cache invalidation failed", zap.Int64("user_id", id), zap.Error(err))
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
