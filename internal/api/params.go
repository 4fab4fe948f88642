// Package api はユーザー・商品・記事・コメントの HTTP ハンドラーを提供します。
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/auth"
	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/store"
)

const (
	defaultPageSize = 10
	defaultLimit    = 10
)

type listParams struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"orderBy" binding:"omitempty,oneof=recent oldest"`
	Keyword  string `form:"keyword" binding:"omitempty,max=100"`
}

type cursorParams struct {
	Cursor int64 `form:"cursor" binding:"omitempty,min=1"`
	Limit  int   `form:"limit" binding:"omitempty,min=1,max=100"`
}

// parseID はパスパラメーターを正の整数として読み取ります。
func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperr.New(http.StatusBadRequest, "INVALID_INPUT", "Invalid "+name)
	}
	return id, nil
}

// parseListQuery は page / pageSize / orderBy / keyword を読み取り、既定値を補います。
func parseListQuery(c *gin.Context) (store.ListQuery, error) {
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		return store.ListQuery{}, httperr.InvalidInput(err)
	}
	q := store.ListQuery{
		Page:     p.Page,
		PageSize: p.PageSize,
		OrderBy:  store.OrderBy(p.OrderBy),
		Keyword:  strings.TrimSpace(p.Keyword),
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	if q.OrderBy == "" {
		q.OrderBy = store.OrderRecent
	}
	return q, nil
}

func parseCursorQuery(c *gin.Context) (cursorParams, error) {
	var p cursorParams
	if err := c.ShouldBindQuery(&p); err != nil {
		return cursorParams{}, httperr.InvalidInput(err)
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
	return p, nil
}

// principal はゲートが設定した利用者を返します。ゲートの後ろ以外で呼ばれた場合は 401 を返します。
func principal(c *gin.Context) (*store.User, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		httperr.Respond(c, httperr.Unauthorized())
		return nil, false
	}
	return user, true
}

// principalID は利用者の ID を返します。匿名なら 0 です。
func principalID(c *gin.Context) int64 {
	if user, ok := auth.CurrentUser(c); ok {
		return user.ID
	}
	return 0
}

// page はページ番号方式の一覧レスポンスです。
type page[T any] struct {
	List       []T `json:"list"`
	TotalCount int `json:"totalCount"`
}

// cursorPage はカーソル方式の一覧レスポンスです。NextCursor は続きが無ければ null です。
type cursorPage[T any] struct {
	List       []T    `json:"list"`
	NextCursor *int64 `json:"nextCursor"`
}

// splitCursor は limit+1 件取得した結果を、返す分と次のカーソルに分けます。
func splitCursor[T any](items []T, limit int, idOf func(T) int64) cursorPage[T] {
	out := cursorPage[T]{List: items}
	if len(items) > limit {
		next := idOf(items[limit])
		out.List = items[:limit]
		out.NextCursor = &next
	}
	if out.List == nil {
		out.List = []T{}
	}
	return out
}
