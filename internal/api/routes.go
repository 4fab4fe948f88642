package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/auth"
	"github.com/yourusername/market-api/internal/store"
)

// Deps はルーティングに必要な依存関係です。
type Deps struct {
	Store  store.Store
	Auth   *auth.Manager
	Hasher PasswordHasher
	// UserCache はユーザー更新時に破棄するキャッシュです。無い場合は nil にします。
	UserCache UserInvalidator
}

// Mount は /users /products /articles /comments のルートを登録します。
func Mount(r gin.IRouter, d Deps) {
	s := d.Store
	requireLogin := d.Auth.RequireLogin()
	optionalLogin := d.Auth.OptionalLogin()

	users := r.Group("/users", requireLogin)
	{
		users.GET("/:id", GetUserHandler(s))
		users.PATCH("/:id", UpdateUserHandler(s, d.UserCache))
		users.PATCH("/:id/updatePassword", UpdatePasswordHandler(s, d.Hasher, d.UserCache))
		users.GET("/:id/getUserProductList", UserProductListHandler(s))
		users.GET("/:id/favorited", FavoritedProductsHandler(s))
	}

	productComments := ProductComments(s)
	products := r.Group("/products")
	{
		products.GET("", ListProductsHandler(s))
		products.POST("", requireLogin, CreateProductHandler(s))
		products.GET("/:id", optionalLogin, GetProductHandler(s))
		products.PATCH("/:id", requireLogin, UpdateProductHandler(s))
		products.DELETE("/:id", requireLogin, DeleteProductHandler(s))
		products.GET("/:id/comments", ListCommentsHandler(s, productComments))
		products.POST("/:id/comments", requireLogin, CreateCommentHandler(s, productComments))
		products.POST("/:id/favorite", requireLogin, FavoriteProductHandler(s))
		products.DELETE("/:id/favorite", requireLogin, UnfavoriteProductHandler(s))
	}

	articleComments := ArticleComments(s)
	articles := r.Group("/articles")
	{
		articles.GET("", ListArticlesHandler(s))
		articles.POST("", requireLogin, CreateArticleHandler(s))
		articles.GET("/:id", optionalLogin, GetArticleHandler(s))
		articles.PATCH("/:id", requireLogin, UpdateArticleHandler(s))
		articles.DELETE("/:id", requireLogin, DeleteArticleHandler(s))
		articles.GET("/:id/comments", ListCommentsHandler(s, articleComments))
		articles.POST("/:id/comments", requireLogin, CreateCommentHandler(s, articleComments))
		articles.POST("/:id/like", requireLogin, LikeArticleHandler(s))
		articles.DELETE("/:id/like", requireLogin, UnlikeArticleHandler(s))
	}

	comments := r.Group("/comments", requireLogin)
	{
		comments.PATCH("/:id", UpdateCommentHandler(s))
		comments.DELETE("/:id", DeleteCommentHandler(s))
	}
}
