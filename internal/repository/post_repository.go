package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/store"
)

// PostRepository 帖子仓储
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id uint) (*model.Post, error)
	// FindByIDs keeps the order of ids; missing rows are skipped.
	FindByIDs(ctx context.Context, ids []uint) ([]model.Post, error)
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Post, int64, error)
	ListAll(ctx context.Context, offset, limit int) ([]model.Post, int64, error)
	// ListByAuthors returns posts whose author is in the set (self ∪ followed), newest first.
	// followedOf, when non-zero, adds the authors followedOf follows through a sub-query.
	ListByAuthors(ctx context.Context, authors []uint, followedOf uint, offset, limit int) ([]model.Post, int64, error)
}

type postRepository struct {
	store *store.Store
}

func NewPostRepository(s *store.Store) PostRepository { return &postRepository{store: s} }

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Insert(post) })
}

func (r *postRepository) Update(ctx context.Context, post *model.Post) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Update(post) })
}

func (r *postRepository) Delete(ctx context.Context, post *model.Post) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Delete(post) })
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*model.Post, error) {
	var p model.Post
	if err := r.store.DB().WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Post, error) {
	if len(ids) == 0 {
		return []model.Post{}, nil
	}
	var rows []model.Post
	if err := r.store.DB().WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]model.Post, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *postRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Post, int64, error) {
	return r.page(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) }, offset, limit)
}

func (r *postRepository) ListAll(ctx context.Context, offset, limit int) ([]model.Post, int64, error) {
	return r.page(ctx, func(db *gorm.DB) *gorm.DB { return db }, offset, limit)
}

func (r *postRepository) ListByAuthors(ctx context.Context, authors []uint, followedOf uint, offset, limit int) ([]model.Post, int64, error) {
	db := r.store.DB()
	return r.page(ctx, func(q *gorm.DB) *gorm.DB {
		if followedOf == 0 {
			return q.Where("user_id IN ?", authors)
		}
		sub := db.Model(&model.Follow{}).Select("followed_id").Where("follower_id = ?", followedOf)
		if len(authors) == 0 {
			return q.Where("user_id IN (?)", sub)
		}
		return q.Where("user_id IN ? OR user_id IN (?)", authors, sub)
	}, offset, limit)
}

// page runs the count and the ordered slice on two fresh statements built by scope.
func (r *postRepository) page(ctx context.Context, scope func(*gorm.DB) *gorm.DB, offset, limit int) ([]model.Post, int64, error) {
	base := func() *gorm.DB { return r.store.DB().WithContext(ctx).Model(&model.Post{}) }

	var total int64
	if err := base().Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	posts := []model.Post{}
	if int64(offset) >= total {
		return posts, total, nil
	}
	err := base().Scopes(scope).
		Order("timestamp DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}
