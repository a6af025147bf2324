package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/store"
)

// FollowRepository 关注关系仓储；写操作经由 unit of work，提交钩子可见
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followedID uint) error
	Unfollow(ctx context.Context, followerID, followedID uint) error
	IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error)
	ListFollowing(ctx context.Context, userID uint, offset, limit int) ([]model.User, error)
	ListFollowers(ctx context.Context, userID uint, offset, limit int) ([]model.User, error)
	CountFollowing(ctx context.Context, userID uint) (int64, error)
	CountFollowers(ctx context.Context, userID uint) (int64, error)
	FollowingIDs(ctx context.Context, userID uint) ([]uint, error)
}

type followRepository struct {
	store *store.Store
}

func NewFollowRepository(s *store.Store) FollowRepository { return &followRepository{store: s} }

func (r *followRepository) Follow(ctx context.Context, followerID, followedID uint) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error {
		// 幂等：重复关注不报错
		return uow.Insert(&model.Follow{FollowerID: followerID, FollowedID: followedID}, clause.OnConflict{DoNothing: true})
	})
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followedID uint) error {
	return r.store.Transact(ctx, func(uow *store.UnitOfWork) error {
		return uow.Delete(&model.Follow{FollowerID: followerID, FollowedID: followedID})
	})
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	var cnt int64
	if err := r.store.DB().WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) ListFollowing(ctx context.Context, userID uint, offset, limit int) ([]model.User, error) {
	return r.listUsers(ctx, "followers.followed_id", "followers.follower_id", userID, offset, limit)
}

func (r *followRepository) ListFollowers(ctx context.Context, userID uint, offset, limit int) ([]model.User, error) {
	return r.listUsers(ctx, "followers.follower_id", "followers.followed_id", userID, offset, limit)
}

// listUsers joins users on joinCol where filterCol = userID, newest edge first.
func (r *followRepository) listUsers(ctx context.Context, joinCol, filterCol string, userID uint, offset, limit int) ([]model.User, error) {
	var res []model.User
	err := r.store.DB().WithContext(ctx).
		Model(&model.User{}).
		Joins("JOIN followers ON "+joinCol+" = users.id").
		Where(filterCol+" = ?", userID).
		Order("followers.created_at DESC").
		Order("users.id").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *followRepository) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	var cnt int64
	err := r.store.DB().WithContext(ctx).Model(&model.Follow{}).Where("follower_id = ?", userID).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	var cnt int64
	err := r.store.DB().WithContext(ctx).Model(&model.Follow{}).Where("followed_id = ?", userID).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	err := r.store.DB().WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followed_id", &ids).Error
	return ids, err
}
