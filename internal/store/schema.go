package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements はテーブル定義です。何度実行しても結果が変わらないように IF NOT EXISTS を付けています。
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL,
		nickname      TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_users_email UNIQUE (email),
		CONSTRAINT uq_users_nickname UNIQUE (nickname)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL,
		price       BIGINT NOT NULL CHECK (price >= 0),
		tags        TEXT[] NOT NULL DEFAULT '{}',
		images      TEXT[] NOT NULL DEFAULT '{}',
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_user_id ON products (user_id)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		image      TEXT,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id         BIGSERIAL PRIMARY KEY,
		content    TEXT NOT NULL,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		article_id BIGINT REFERENCES articles(id) ON DELETE CASCADE,
		product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT ck_comments_single_target CHECK ((article_id IS NULL) <> (product_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_article_id ON comments (article_id, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_product_id ON comments (product_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_likes_user_article UNIQUE (user_id, article_id)
	)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_favorites_user_product UNIQUE (user_id, product_id)
	)`,
}

// Migrate はスキーマを作成します。
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}
	return tx.Commit(ctx)
}
