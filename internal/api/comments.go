package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/store"
)

// CommentParent はコメントの付け先 (商品または記事) です。
type CommentParent struct {
	name   string
	find   func(ctx context.Context, id int64) error
	target func(id int64) store.CommentTarget
}

// ProductComments は商品へのコメントを表します。
func ProductComments(products store.ProductStore) CommentParent {
	return CommentParent{
		name: "product",
		find: func(ctx context.Context, id int64) error {
			_, err := products.FindProductByID(ctx, id)
			return err
		},
		target: func(id int64) store.CommentTarget { return store.CommentTarget{ProductID: id} },
	}
}

// ArticleComments は記事へのコメントを表します。
func ArticleComments(articles store.ArticleStore) CommentParent {
	return CommentParent{
		name: "article",
		find: func(ctx context.Context, id int64) error {
			_, err := articles.FindArticleByID(ctx, id)
			return err
		},
		target: func(id int64) store.CommentTarget { return store.CommentTarget{ArticleID: id} },
	}
}

func (p CommentParent) resolve(c *gin.Context) (int64, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return 0, err
	}
	if err := p.find(c.Request.Context(), id); errors.Is(err, store.ErrNotFound) {
		return 0, httperr.NotFound(p.name, id)
	} else if err != nil {
		return 0, err
	}
	return id, nil
}

type commentRequest struct {
	Content string `json:"content" binding:"required,max=1000"`
}

// CreateCommentHandler は POST /{products|articles}/:id/comments のハンドラーを返します。
func CreateCommentHandler(comments store.CommentStore, parent CommentParent) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}
		parentID, err := parent.resolve(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}

		comment, err := comments.CreateComment(c.Request.Context(), me.ID, parent.target(parentID), req.Content)
		if errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound(parent.name, parentID))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

// ListCommentsHandler は GET /{products|articles}/:id/comments のハンドラーを返します。
// 新しい順に limit 件返し、続きがあれば次のページ先頭の ID を nextCursor に入れます。
func ListCommentsHandler(comments store.CommentStore, parent CommentParent) gin.HandlerFunc {
	return func(c *gin.Context) {
		parentID, err := parent.resolve(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		p, err := parseCursorQuery(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}

		list, err := comments.ListComments(c.Request.Context(), store.CommentQuery{
			Target: parent.target(parentID),
			Cursor: p.Cursor,
			Limit:  p.Limit + 1,
		})
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, splitCursor(list, p.Limit, func(cm store.Comment) int64 { return cm.ID }))
	}
}

// UpdateCommentHandler は PATCH /comments/:id のハンドラーを返します。投稿者のみ変更できます。
func UpdateCommentHandler(comments store.CommentStore) gin.HandlerFunc {
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
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}
		if err := ownComment(c, comments, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}

		updated, err := comments.UpdateComment(c.Request.Context(), id, req.Content)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteCommentHandler は DELETE /comments/:id のハンドラーを返します。
func DeleteCommentHandler(comments store.CommentStore) gin.HandlerFunc {
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
		if err := ownComment(c, comments, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}
		if err := comments.DeleteComment(c.Request.Context(), id); err != nil {
			httperr.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func ownComment(c *gin.Context, comments store.CommentStore, id, ownerID int64) error {
	comment, err := comments.FindCommentByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return httperr.NotFound("comment", id)
	}
	if err != nil {
		return err
	}
	if comment.UserID != ownerID {
		return httperr.BadRequest("Comment does not belong to the authenticated user")
	}
	return nil
}
