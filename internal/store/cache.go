package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "user:"
)

// UserLookup は ID からユーザーを取得する操作です。
type UserLookup interface {
	FindUserByID(ctx context.Context, id int64) (*User, error)
}

// cachedUser は Redis に保存するユーザー情報です。パスワードハッシュは保存しません。
type cachedUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserCache は認証ゲートのユーザー参照を Redis で読み通しキャッシュします。
// 返すユーザーの PasswordHash は常に空です。
type UserCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	backing UserLookup
	onError func(op string, err error)
}

// NewUserCache は UserCache を作成します。
func NewUserCache(rdb *redis.Client, ttl time.Duration, backing UserLookup) *UserCache {
	return &UserCache{
		rdb:     rdb,
		ttl:     ttl,
		backing: backing,
	}
}

// OnError は Redis 操作が失敗したときに呼ばれるコールバックを設定します。
func (c *UserCache) OnError(fn func(op string, err error)) {
	c.onError = fn
}

// FindUserByID はキャッシュを確認し、無ければ元のストアから取得して保存します。
// Redis の障害時は元のストアの結果をそのまま返します。
func (c *UserCache) FindUserByID(ctx context.Context, id int64) (*User, error) {
	data, err := c.rdb.Get(ctx, userKey(id)).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		jsonErr := json.Unmarshal(data, &cu)
		if jsonErr == nil {
			return &User{
				ID:        cu.ID,
				Email:     cu.Email,
				Nickname:  cu.Nickname,
				CreatedAt: cu.CreatedAt,
				UpdatedAt: cu.UpdatedAt,
			}, nil
		}
		c.report("decode", jsonErr)
	case !errors.Is(err, redis.Nil):
		c.report("get", err)
	}

	user, err := c.backing.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedUser{
		ID:        user.ID,
		Email:     user.Email,
		Nickname:  user.Nickname,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
	if err == nil {
		if setErr := c.rdb.Set(ctx, userKey(id), payload, c.ttl).Err(); setErr != nil {
			c.report("set", setErr)
		}
	}

	out := *user
	out.PasswordHash = ""
	return &out, nil
}

// Invalidate はユーザー情報の更新後にキャッシュを削除します。
func (c *UserCache) Invalidate(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, userKey(id)).Err()
}

func (c *UserCache) report(op string, err error) {
	if c.onError != nil && err != nil {
		c.onError(op, err)
	}
}

func userKey(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}
