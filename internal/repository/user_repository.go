package repository

import (
	"context"
	"time"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/store"
)

// UserRepository 用户仓储
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsUsername(ctx context.Context, username string, exceptID uint) (bool, error)
	ExistsEmail(ctx context.Context, email string, exceptID uint) (bool, error)
	TouchLastSeen(ctx context.Context, id uint, at time.Time) error
}

type userRepository struct {
	store *store.Store
}

func NewUserRepository(s *store.Store) UserRepository { return &userRepository{store: s} }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Insert(user) })
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error { return uow.Update(user) })
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.store.DB().WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := r.store.DB().WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.store.DB().WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) ExistsUsername(ctx context.Context, username string, exceptID uint) (bool, error) {
	return r.exists(ctx, "username", username, exceptID)
}

func (r *userRepository) ExistsEmail(ctx context.Context, email string, exceptID uint) (bool, error) {
	return r.exists(ctx, "email", email, exceptID)
}

func (r *userRepository) exists(ctx context.Context, col, val string, exceptID uint) (bool, error) {
	var cnt int64
	err := r.store.DB().WithContext(ctx).
		Model(&model.User{}).
		Where(col+" = ? AND id <> ?", val, exceptID).
		Count(&cnt).Error
	return cnt > 0, err
}

// TouchLastSeen bypasses the unit of work: users carry no indexed fields and no hook
// watches last_seen.
func (r *userRepository) TouchLastSeen(ctx context.Context, id uint, at time.Time) error {
	return r.store.DB().WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("last_seen", at).Error
}
