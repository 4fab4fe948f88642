package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres は PostgreSQL を使った Store 実装です。
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// 一覧の絞り込み条件。$1 は所有者ID（0 で全件）、$2 はキーワード。
// キーワードは % や _ も含めて文字どおりに部分一致させる。
const (
	productListFilter = `WHERE ($1::bigint = 0 OR user_id = $1::bigint)
		AND ($2::text = '' OR strpos(lower(name), lower($2::text)) > 0 OR strpos(lower(description), lower($2::text)) > 0)`
	articleListFilter = `WHERE ($1::bigint = 0 OR user_id = $1::bigint)
		AND ($2::text = '' OR strpos(lower(title), lower($2::text)) > 0)`
)

// NewPostgres は接続プールを作成し、疎通を確認してから Postgres を返します。
func NewPostgres(ctx context.Context, databaseURL string, maxConns int32) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Pool はマイグレーション用に接続プールを返します。
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Close は接続プールを閉じます。
func (p *Postgres) Close() { p.pool.Close() }

// --- users ---

const userColumns = `id, email, nickname, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Nickname, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx,
		`INSERT INTO users (email, nickname, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		in.Email, in.Nickname, in.PasswordHash,
	))
}

func (p *Postgres) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *Postgres) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (p *Postgres) FindUserByNickname(ctx context.Context, nickname string) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE nickname = $1`, nickname))
}

func (p *Postgres) UpdateUserNickname(ctx context.Context, id int64, nickname string) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx,
		`UPDATE users SET nickname = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, nickname,
	))
}

func (p *Postgres) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) (*User, error) {
	return scanUser(p.pool.QueryRow(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, passwordHash,
	))
}

// --- products ---

const productColumns = `id, name, description, price, tags, images, user_id, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var pr Product
	err := row.Scan(&pr.ID, &pr.Name, &pr.Description, &pr.Price, &pr.Tags, &pr.Images, &pr.UserID, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &pr, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		pr, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *pr)
	}
	return products, rows.Err()
}

func (p *Postgres) CreateProduct(ctx context.Context, userID int64, in ProductInput) (*Product, error) {
	return scanProduct(p.pool.QueryRow(ctx,
		`INSERT INTO products (name, description, price, tags, images, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+productColumns,
		in.Name, in.Description, in.Price, nonNil(in.Tags), nonNil(in.Images), userID,
	))
}

func (p *Postgres) FindProductByID(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (p *Postgres) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*Product, error) {
	return scanProduct(p.pool.QueryRow(ctx,
		`UPDATE products SET
		   name        = COALESCE($2::text, name),
		   description = COALESCE($3::text, description),
		   price       = COALESCE($4::bigint, price),
		   tags        = COALESCE($5::text[], tags),
		   images      = COALESCE($6::text[], images),
		   updated_at  = now()
		 WHERE id = $1
		 RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.Price, patch.Tags, patch.Images,
	))
}

func (p *Postgres) DeleteProduct(ctx context.Context, id int64) error {
	return p.execDelete(ctx, `DELETE FROM products WHERE id = $1`, id)
}

func (p *Postgres) ListProducts(ctx context.Context, q ListQuery) ([]Product, int, error) {
	const where = productListFilter

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM products `+where, q.OwnerID, q.Keyword).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products `+where+`
		 ORDER BY id `+orderDirection(q.OrderBy)+`
		 LIMIT $3 OFFSET $4`,
		q.OwnerID, q.Keyword, q.PageSize, q.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (p *Postgres) FindFavorite(ctx context.Context, userID, productID int64) (*Favorite, error) {
	var f Favorite
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, created_at FROM favorites WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	).Scan(&f.ID, &f.UserID, &f.ProductID, &f.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (p *Postgres) CreateFavorite(ctx context.Context, userID, productID int64) (*Favorite, error) {
	var f Favorite
	err := p.pool.QueryRow(ctx,
		`INSERT INTO favorites (user_id, product_id) VALUES ($1, $2)
		 RETURNING id, user_id, product_id, created_at`,
		userID, productID,
	).Scan(&f.ID, &f.UserID, &f.ProductID, &f.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (p *Postgres) DeleteFavorite(ctx context.Context, id int64) error {
	return p.execDelete(ctx, `DELETE FROM favorites WHERE id = $1`, id)
}

func (p *Postgres) ListFavoritedProducts(ctx context.Context, userID int64) ([]Product, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT p.id, p.name, p.description, p.price, p.tags, p.images, p.user_id, p.created_at, p.updated_at
		 FROM favorites f
		 JOIN products p ON p.id = f.product_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC, f.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// --- articles ---

const articleColumns = `id, title, content, image, user_id, created_at, updated_at`

func scanArticle(row pgx.Row) (*Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Image, &a.UserID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (p *Postgres) CreateArticle(ctx context.Context, userID int64, in ArticleInput) (*Article, error) {
	return scanArticle(p.pool.QueryRow(ctx,
		`INSERT INTO articles (title, content, image, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+articleColumns,
		in.Title, in.Content, in.Image, userID,
	))
}

func (p *Postgres) FindArticleByID(ctx context.Context, id int64) (*Article, error) {
	return scanArticle(p.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id))
}

func (p *Postgres) UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error) {
	return scanArticle(p.pool.QueryRow(ctx,
		`UPDATE articles SET
		   title      = COALESCE($2::text, title),
		   content    = COALESCE($3::text, content),
		   image      = COALESCE($4::text, image),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING `+articleColumns,
		id, patch.Title, patch.Content, patch.Image,
	))
}

func (p *Postgres) DeleteArticle(ctx context.Context, id int64) error {
	return p.execDelete(ctx, `DELETE FROM articles WHERE id = $1`, id)
}

func (p *Postgres) ListArticles(ctx context.Context, q ListQuery) ([]Article, int, error) {
	const where = articleListFilter

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM articles `+where, q.OwnerID, q.Keyword).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM articles `+where+`
		 ORDER BY id `+orderDirection(q.OrderBy)+`
		 LIMIT $3 OFFSET $4`,
		q.OwnerID, q.Keyword, q.PageSize, q.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (p *Postgres) FindLike(ctx context.Context, userID, articleID int64) (*Like, error) {
	var l Like
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, article_id, created_at FROM likes WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	).Scan(&l.ID, &l.UserID, &l.ArticleID, &l.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (p *Postgres) CreateLike(ctx context.Context, userID, articleID int64) (*Like, error) {
	var l Like
	err := p.pool.QueryRow(ctx,
		`INSERT INTO likes (user_id, article_id) VALUES ($1, $2)
		 RETURNING id, user_id, article_id, created_at`,
		userID, articleID,
	).Scan(&l.ID, &l.UserID, &l.ArticleID, &l.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (p *Postgres) DeleteLike(ctx context.Context, id int64) error {
	return p.execDelete(ctx, `DELETE FROM likes WHERE id = $1`, id)
}

// --- comments ---

const commentColumns = `id, content, user_id, article_id, product_id, created_at, updated_at`

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.Content, &c.UserID, &c.ArticleID, &c.ProductID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (p *Postgres) CreateComment(ctx context.Context, userID int64, target CommentTarget, content string) (*Comment, error) {
	return scanComment(p.pool.QueryRow(ctx,
		`INSERT INTO comments (content, user_id, article_id, product_id)
		 VALUES ($1, $2, NULLIF($3::bigint, 0), NULLIF($4::bigint, 0))
		 RETURNING `+commentColumns,
		content, userID, target.ArticleID, target.ProductID,
	))
}

func (p *Postgres) FindCommentByID(ctx context.Context, id int64) (*Comment, error) {
	return scanComment(p.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
}

func (p *Postgres) UpdateComment(ctx context.Context, id int64, content string) (*Comment, error) {
	return scanComment(p.pool.QueryRow(ctx,
		`UPDATE comments SET content = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+commentColumns,
		id, content,
	))
}

func (p *Postgres) DeleteComment(ctx context.Context, id int64) error {
	return p.execDelete(ctx, `DELETE FROM comments WHERE id = $1`, id)
}

func (p *Postgres) ListComments(ctx context.Context, q CommentQuery) ([]Comment, error) {
	column, targetID := "product_id", q.Target.ProductID
	if q.Target.ArticleID != 0 {
		column, targetID = "article_id", q.Target.ArticleID
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE `+column+` = $1 AND ($2::bigint = 0 OR id <= $2::bigint)
		 ORDER BY id DESC
		 LIMIT $3`,
		targetID, q.Cursor, q.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// --- helpers ---

func (p *Postgres) execDelete(ctx context.Context, sql string, id int64) error {
	tag, err := p.pool.Exec(ctx, sql, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// mapError は pgx のエラーをストアのセンチネルエラーに変換します。
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func orderDirection(o OrderBy) string {
	if o == OrderOldest {
		return "ASC"
	}
	return "DESC"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
