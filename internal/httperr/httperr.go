// Package httperr は API のエラー型と JSON エラーレスポンスの共通処理を提供します。
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourusername/market-api/internal/logging"
	"github.com/yourusername/market-api/internal/store"
)

// Error はクライアントに返すエラーです。Code は機械向け、Message は人向けの文言です。
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New は Error を作成します。
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// BadRequest は入力や所有者の不一致を表す 400 エラーです。
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "BAD_REQUEST", message)
}

// NotFound は対象が存在しないことを表す 404 エラーです。
func NotFound(resource string, id int64) *Error {
	return New(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Cannot find given %s (id: %d)", resource, id))
}

// Conflict は既に登録済みであることを表す 409 エラーです。
func Conflict(message string) *Error {
	return New(http.StatusConflict, "CONFLICT", message)
}

// Unauthorized は認証が必要であることを表す 401 エラーです。理由は区別しません。
func Unauthorized() *Error {
	return New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

// InvalidInput はバインド・バリデーションの失敗を 400 エラーに変換します。
func InvalidInput(err error) *Error {
	apiErr := New(http.StatusBadRequest, "INVALID_INPUT", "Invalid request")

	var verrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verrs):
		apiErr.Fields = make(map[string]string, len(verrs))
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			name := lowerFirst(fe.Field())
			apiErr.Fields[name] = fe.Tag()
			names = append(names, name)
		}
		apiErr.Message = "Invalid value for " + strings.Join(names, ", ")
	case errors.As(err, &typeErr):
		apiErr.Message = fmt.Sprintf("Invalid type for %s", typeErr.Field)
	case errors.As(err, &syntaxErr):
		apiErr.Message = "Malformed JSON body"
	}
	return apiErr
}

// Respond はエラーを JSON レスポンスに変換します。予期しないエラーはログに残して 500 を返します。
func Respond(c *gin.Context, err error) {
	apiErr := resolve(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logging.FromContext(c).Error("request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(apiErr.Status, body(apiErr))
}

func resolve(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, store.ErrNotFound):
		return New(http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, store.ErrConflict):
		return Conflict("Already exists")
	case errors.Is(err, context.Canceled):
		return New(http.StatusRequestTimeout, "REQUEST_CANCELED", "Request was canceled")
	default:
		return New(http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func body(e *Error) gin.H {
	h := gin.H{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Fields) > 0 {
		h["fields"] = e.Fields
	}
	return h
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
