package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory はDBを設定しない開発環境とテスト向けのインメモリ実装です。
// 返す値は常にコピーで、呼び出し側が変更しても内部状態には影響しません。
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	seq       int64
	users     map[int64]*User
	products  map[int64]*Product
	articles  map[int64]*Article
	comments  map[int64]*Comment
	likes     map[int64]*Like
	favorites map[int64]*Favorite
}

var _ Store = (*Memory)(nil)

// NewMemory はインメモリストアを作成します。
func NewMemory() *Memory {
	return &Memory{
		now:       func() time.Time { return time.Now().UTC() },
		users:     make(map[int64]*User),
		products:  make(map[int64]*Product),
		articles:  make(map[int64]*Article),
		comments:  make(map[int64]*Comment),
		likes:     make(map[int64]*Like),
		favorites: make(map[int64]*Favorite),
	}
}

// Close は何もしません。
func (m *Memory) Close() {}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// --- users ---

func (m *Memory) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == in.Email || u.Nickname == in.Nickname {
			return nil, ErrConflict
		}
	}
	now := m.now()
	u := &User{
		ID:           m.nextID(),
		Email:        in.Email,
		Nickname:     in.Nickname,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	out := *u
	return &out, nil
}

func (m *Memory) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return m.findUser(ctx, func(u *User) bool { return u.ID == id })
}

func (m *Memory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return m.findUser(ctx, func(u *User) bool { return u.Email == email })
}

func (m *Memory) FindUserByNickname(ctx context.Context, nickname string) (*User, error) {
	return m.findUser(ctx, func(u *User) bool { return u.Nickname == nickname })
}

func (m *Memory) findUser(ctx context.Context, match func(*User) bool) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateUserNickname(ctx context.Context, id int64, nickname string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, other := range m.users {
		if other.ID != id && other.Nickname == nickname {
			return nil, ErrConflict
		}
	}
	u.Nickname = nickname
	u.UpdatedAt = m.now()
	out := *u
	return &out, nil
}

func (m *Memory) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = m.now()
	out := *u
	return &out, nil
}

// --- products ---

func (m *Memory) CreateProduct(ctx context.Context, userID int64, in ProductInput) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	p := &Product{
		ID:          m.nextID(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Tags:        cloneStrings(in.Tags),
		Images:      cloneStrings(in.Images),
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.products[p.ID] = p
	return copyProduct(p), nil
}

func (m *Memory) FindProductByID(ctx context.Context, id int64) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProduct(p), nil
}

func (m *Memory) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Tags != nil {
		p.Tags = cloneStrings(*patch.Tags)
	}
	if patch.Images != nil {
		p.Images = cloneStrings(*patch.Images)
	}
	p.UpdatedAt = m.now()
	return copyProduct(p), nil
}

func (m *Memory) DeleteProduct(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	for fid, f := range m.favorites {
		if f.ProductID == id {
			delete(m.favorites, fid)
		}
	}
	for cid, c := range m.comments {
		if c.ProductID != nil && *c.ProductID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

func (m *Memory) ListProducts(ctx context.Context, q ListQuery) ([]Product, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keyword := strings.ToLower(q.Keyword)
	var matched []Product
	for _, p := range m.products {
		if q.OwnerID != 0 && p.UserID != q.OwnerID {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(p.Name), keyword) &&
			!strings.Contains(strings.ToLower(p.Description), keyword) {
			continue
		}
		matched = append(matched, *copyProduct(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.OrderBy == OrderOldest {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, q), len(matched), nil
}

func (m *Memory) FindFavorite(ctx context.Context, userID, productID int64) (*Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.favorites {
		if f.UserID == userID && f.ProductID == productID {
			out := *f
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateFavorite(ctx context.Context, userID, productID int64) (*Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[productID]; !ok {
		return nil, ErrNotFound
	}
	for _, f := range m.favorites {
		if f.UserID == userID && f.ProductID == productID {
			return nil, ErrConflict
		}
	}
	f := &Favorite{ID: m.nextID(), UserID: userID, ProductID: productID, CreatedAt: m.now()}
	m.favorites[f.ID] = f
	out := *f
	return &out, nil
}

func (m *Memory) DeleteFavorite(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.favorites[id]; !ok {
		return ErrNotFound
	}
	delete(m.favorites, id)
	return nil
}

func (m *Memory) ListFavoritedProducts(ctx context.Context, userID int64) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var favs []*Favorite
	for _, f := range m.favorites {
		if f.UserID == userID {
			favs = append(favs, f)
		}
	}
	// 新しくお気に入りしたものから
	sort.Slice(favs, func(i, j int) bool { return favs[i].ID > favs[j].ID })

	products := make([]Product, 0, len(favs))
	for _, f := range favs {
		if p, ok := m.products[f.ProductID]; ok {
			products = append(products, *copyProduct(p))
		}
	}
	return products, nil
}

// --- articles ---

func (m *Memory) CreateArticle(ctx context.Context, userID int64, in ArticleInput) (*Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	a := &Article{
		ID:        m.nextID(),
		Title:     in.Title,
		Content:   in.Content,
		Image:     cloneString(in.Image),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.articles[a.ID] = a
	return copyArticle(a), nil
}

func (m *Memory) FindArticleByID(ctx context.Context, id int64) (*Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyArticle(a), nil
}

func (m *Memory) UpdateArticle(ctx context.Context, id int64, patch ArticlePatch) (*Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Content != nil {
		a.Content = *patch.Content
	}
	if patch.Image != nil {
		a.Image = cloneString(patch.Image)
	}
	a.UpdatedAt = m.now()
	return copyArticle(a), nil
}

func (m *Memory) DeleteArticle(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.articles[id]; !ok {
		return ErrNotFound
	}
	delete(m.articles, id)
	for lid, l := range m.likes {
		if l.ArticleID == id {
			delete(m.likes, lid)
		}
	}
	for cid, c := range m.comments {
		if c.ArticleID != nil && *c.ArticleID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

func (m *Memory) ListArticles(ctx context.Context, q ListQuery) ([]Article, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keyword := strings.ToLower(q.Keyword)
	var matched []Article
	for _, a := range m.articles {
		if q.OwnerID != 0 && a.UserID != q.OwnerID {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(a.Title), keyword) {
			continue
		}
		matched = append(matched, *copyArticle(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.OrderBy == OrderOldest {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, q), len(matched), nil
}

func (m *Memory) FindLike(ctx context.Context, userID, articleID int64) (*Like, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.likes {
		if l.UserID == userID && l.ArticleID == articleID {
			out := *l
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateLike(ctx context.Context, userID, articleID int64) (*Like, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.articles[articleID]; !ok {
		return nil, ErrNotFound
	}
	for _, l := range m.likes {
		if l.UserID == userID && l.ArticleID == articleID {
			return nil, ErrConflict
		}
	}
	l := &Like{ID: m.nextID(), UserID: userID, ArticleID: articleID, CreatedAt: m.now()}
	m.likes[l.ID] = l
	out := *l
	return &out, nil
}

func (m *Memory) DeleteLike(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.likes[id]; !ok {
		return ErrNotFound
	}
	delete(m.likes, id)
	return nil
}

// --- comments ---

func (m *Memory) CreateComment(ctx context.Context, userID int64, target CommentTarget, content string) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c := &Comment{
		ID:        m.nextID(),
		Content:   content,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch {
	case target.ArticleID != 0:
		if _, ok := m.articles[target.ArticleID]; !ok {
			return nil, ErrNotFound
		}
		id := target.ArticleID
		c.ArticleID = &id
	case target.ProductID != 0:
		if _, ok := m.products[target.ProductID]; !ok {
			return nil, ErrNotFound
		}
		id := target.ProductID
		c.ProductID = &id
	default:
		return nil, ErrNotFound
	}
	m.comments[c.ID] = c
	return copyComment(c), nil
}

func (m *Memory) FindCommentByID(ctx context.Context, id int64) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyComment(c), nil
}

func (m *Memory) UpdateComment(ctx context.Context, id int64, content string) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Content = content
	c.UpdatedAt = m.now()
	return copyComment(c), nil
}

func (m *Memory) DeleteComment(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

func (m *Memory) ListComments(ctx context.Context, q CommentQuery) ([]Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Comment
	for _, c := range m.comments {
		switch {
		case q.Target.ArticleID != 0:
			if c.ArticleID == nil || *c.ArticleID != q.Target.ArticleID {
				continue
			}
		case q.Target.ProductID != 0:
			if c.ProductID == nil || *c.ProductID != q.Target.ProductID {
				continue
			}
		}
		if q.Cursor != 0 && c.ID > q.Cursor {
			continue
		}
		matched = append(matched, *copyComment(c))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// --- helpers ---

func paginate[T any](items []T, q ListQuery) []T {
	start := q.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if q.PageSize > 0 && start+q.PageSize < end {
		end = start + q.PageSize
	}
	return items[start:end]
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyProduct(p *Product) *Product {
	out := *p
	out.Tags = cloneStrings(p.Tags)
	out.Images = cloneStrings(p.Images)
	return &out
}

func copyArticle(a *Article) *Article {
	out := *a
	out.Image = cloneString(a.Image)
	return &out
}

func copyComment(c *Comment) *Comment {
	out := *c
	if c.ArticleID != nil {
		id := *c.ArticleID
		out.ArticleID = &id
	}
	if c.ProductID != nil {
		id := *c.ProductID
		out.ProductID = &id
	}
	return &out
}
