// Package store はユーザー・商品・記事・コメント・いいね・お気に入りの永続化を提供します。
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound は対象のレコードが存在しないことを表します。
	ErrNotFound = errors.New("store: not found")
	// ErrConflict は一意制約に反する登録であることを表します。
	ErrConflict = errors.New("store: conflict")
)

// OrderBy は一覧の並び順です。
type OrderBy string

const (
	OrderRecent OrderBy = "recent"
	OrderOldest OrderBy = "oldest"
)

// User は登録ユーザーです。PasswordHash は JSON に出力しません。
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateUserInput はユーザー作成時の入力です。
type CreateUserInput struct {
	Email        string
	Nickname     string
	PasswordHash string
}

// Product は出品された商品です。
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Tags        []string  `json:"tags"`
	Images      []string  `json:"images"`
	UserID      int64     `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductInput は商品作成時の入力です。
type ProductInput struct {
	Name        string
	Description string
	Price       int64
	Tags        []string
	Images      []string
}

// ProductPatch は商品の部分更新です。nil のフィールドは変更しません。
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *int64
	Tags        *[]string
	Images      *[]string
}

// Article は掲示板の記事です。
type Article struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Image     *string   `json:"image"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ArticleInput は記事作成時の入力です。
type ArticleInput struct {
	Title   string
	Content string
	Image   *string
}

// ArticlePatch は記事の部分更新です。
type ArticlePatch struct {
	Title   *string
	Content *string
	Image   *string
}

// Comment は記事または商品に付くコメントです。ArticleID と ProductID のどちらか一方のみが設定されます。
type Comment struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	UserID    int64     `json:"userId"`
	ArticleID *int64    `json:"articleId,omitempty"`
	ProductID *int64    `json:"productId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommentTarget はコメントの付け先です。
type CommentTarget struct {
	ArticleID int64
	ProductID int64
}

// CommentQuery はカーソル方式のコメント取得条件です。
// Cursor が 0 以外のとき、ID が Cursor 以下のコメントを新しい順に最大 Limit 件返します。
type CommentQuery struct {
	Target CommentTarget
	Cursor int64
	Limit  int
}

// Like は記事へのいいねです。
type Like struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	ArticleID int64     `json:"articleId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Favorite は商品のお気に入り登録です。
type Favorite struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	ProductID int64     `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListQuery はページ番号方式の一覧取得条件です。
type ListQuery struct {
	Page     int
	PageSize int
	OrderBy  OrderBy
	Keyword  string
	// OwnerID が 0 以外のとき、そのユーザーの登録分に絞り込みます。
	OwnerID int64
}

// Offset はページ番号から読み飛ばす件数を計算します。
func (q ListQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// UserStore はユーザーの永続化を担います。
type UserStore interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByNickname(ctx context.Context, nickname string) (*User, error)
	UpdateUserNickname(ctx context.Context, id int64, nickname string) (*User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) (*User, error)
}

// ProductStore は商品とお気に入りの永続化を担います。
type ProductStore interface {
	CreateProduct(ctx context.Context, userID int64, in ProductInput) (*Product, error)
	FindProductByID(ctx context.Context, id int64) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListProducts(ctx context.Context, q ListQuery) ([]Product, int, error)

	FindFavorite(ctx context.Context, userID, productID int64) (*Favorite, error)
	CreateFavorite(ctx context.Context, userID, productID int64) (*Favorite, error)
	DeleteFavorite(ctx context.Context, id int64) error
	ListFavoritedProducts(ctx context.Context, userID int64) ([]Product, error)
}

// ArticleStore は記事といいねの永続化を担います。
type ArticleStore interface {
	CreateArticle(ctx context.Context, userID int64, in ArticleInput) (*Article, error)
	FindArticleByID(ctx context.Context, id int64) (*Article, error)
	UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error)
	DeleteArticle(ctx context.Context, id int64) error
	ListArticles(ctx context.Context, q ListQuery) ([]Article, int, error)

	FindLike(ctx context.Context, userID, articleID int64) (*Like, error)
	CreateLike(ctx context.Context, userID, articleID int64) (*Like, error)
	DeleteLike(ctx context.Context, id int64) error
}

// CommentStore はコメントの永続化を担います。
type CommentStore interface {
	CreateComment(ctx context.Context, userID int64, target CommentTarget, content string) (*Comment, error)
	FindCommentByID(ctx context.Context, id int64) (*Comment, error)
	UpdateComment(ctx context.Context, id int64, content string) (*Comment, error)
	DeleteComment(ctx context.Context, id int64) error
	ListComments(ctx context.Context, q CommentQuery) ([]Comment, error)
}

// Store はアプリケーションが利用する全ての永続化操作です。
type Store interface {
	UserStore
	ProductStore
	ArticleStore
	CommentStore
	Close()
}
