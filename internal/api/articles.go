package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/store"
)

type createArticleRequest struct {
	Title   string  `json:"title" binding:"required,max=200"`
	Content string  `json:"content" binding:"required"`
	Image   *string `json:"image" binding:"omitempty,max=2048"`
}

type updateArticleRequest struct {
	Title   *string `json:"title" binding:"omitempty,min=1,max=200"`
	Content *string `json:"content" binding:"omitempty,min=1"`
	Image   *string `json:"image" binding:"omitempty,max=2048"`
}

// CreateArticleHandler は POST /articles のハンドラーを返します。
func CreateArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		var req createArticleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}

		article, err := articles.CreateArticle(c.Request.Context(), me.ID, store.ArticleInput{
			Title:   req.Title,
			Content: req.Content,
			Image:   req.Image,
		})
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, article)
	}
}

// ListArticlesHandler は GET /articles のハンドラーを返します。keyword はタイトルを対象にします。
func ListArticlesHandler(articles store.ArticleStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseListQuery(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		list, total, err := articles.ListArticles(c.Request.Context(), q)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, page[store.Article]{List: nonNil(list), TotalCount: total})
	}
}

// GetArticleHandler は GET /articles/:id のハンドラーを返します。
func GetArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		article, err := findArticle(c, articles, id)
		if err != nil {
			httperr.Respond(c, err)
			return
		}

		isLiked := false
		if viewer := principalID(c); viewer != 0 {
			_, err := articles.FindLike(c.Request.Context(), viewer, id)
			switch {
			case err == nil:
				isLiked = true
			case !errors.Is(err, store.ErrNotFound):
				httperr.Respond(c, err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"article": article,
			"isLiked": isLiked,
		})
	}
}

// UpdateArticleHandler は PATCH /articles/:id のハンドラーを返します。
func UpdateArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
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
		var req updateArticleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}
		if _, err := ownedArticle(c, articles, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}

		updated, err := articles.UpdateArticle(c.Request.Context(), id, store.ArticlePatch{
			Title:   req.Title,
			Content: req.Content,
			Image:   req.Image,
		})
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteArticleHandler は DELETE /articles/:id のハンドラーを返します。
func DeleteArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
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
		if _, err := ownedArticle(c, articles, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}
		if err := articles.DeleteArticle(c.Request.Context(), id); err != nil {
			httperr.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// LikeArticleHandler は POST /articles/:id/like のハンドラーを返します。
func LikeArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
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
		if _, err := findArticle(c, articles, id); err != nil {
			httperr.Respond(c, err)
			return
		}

		ctx := c.Request.Context()
		if _, err := articles.FindLike(ctx, me.ID, id); err == nil {
			httperr.Respond(c, httperr.Conflict("Article is already liked"))
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, err)
			return
		}

		like, err := articles.CreateLike(ctx, me.ID, id)
		if errors.Is(err, store.ErrConflict) {
			httperr.Respond(c, httperr.Conflict("Article is already liked"))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, like)
	}
}

// UnlikeArticleHandler は DELETE /articles/:id/like のハンドラーを返します。
func UnlikeArticleHandler(articles store.ArticleStore) gin.HandlerFunc {
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

		ctx := c.Request.Context()
		like, err := articles.FindLike(ctx, me.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound("like", id))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if err := articles.DeleteLike(ctx, like.ID); err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, like)
	}
}

func findArticle(c *gin.Context, articles store.ArticleStore, id int64) (*store.Article, error) {
	article, err := articles.FindArticleByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("article", id)
	}
	return article, err
}

func ownedArticle(c *gin.Context, articles store.ArticleStore, id, ownerID int64) (*store.Article, error) {
	article, err := findArticle(c, articles, id)
	if err != nil {
		return nil, err
	}
	if article.UserID != ownerID {
		return nil, httperr.BadRequest("Article does not belong to the authenticated user")
	}
	return article, nil
}
