package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
)

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, fromUserID, toUserID uint) error
	Unfollow(ctx context.Context, fromUserID, toUserID uint) error
	IsFollowing(ctx context.Context, fromUserID, toUserID uint) (bool, error)
	ListFollowing(ctx context.Context, userID uint, page, pageSize int) (*Page[model.User], error)
	ListFollowers(ctx context.Context, userID uint, page, pageSize int) (*Page[model.User], error)
	Counts(ctx context.Context, userID uint) (following, followers int64, err error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
}

func NewRelationshipService(followRepo repository.FollowRepository, userRepo repository.UserRepository) RelationshipService {
	return &relationshipService{followRepo: followRepo, userRepo: userRepo}
}

func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID uint) error {
	if err := s.checkPair(ctx, fromUserID, toUserID); err != nil {
		return err
	}
	return s.followRepo.Follow(ctx, fromUserID, toUserID)
}

func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID uint) error {
	if err := s.checkPair(ctx, fromUserID, toUserID); err != nil {
		return err
	}
	return s.followRepo.Unfollow(ctx, fromUserID, toUserID)
}

func (s *relationshipService) checkPair(ctx context.Context, fromUserID, toUserID uint) error {
	if fromUserID == toUserID {
		return ErrFollowSelf
	}
	if _, err := s.userRepo.GetByID(ctx, toUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *relationshipService) IsFollowing(ctx context.Context, fromUserID, toUserID uint) (bool, error) {
	return s.followRepo.IsFollowing(ctx, fromUserID, toUserID)
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID uint, page, pageSize int) (*Page[model.User], error) {
	page, pageSize = normalizePage(page, pageSize, 10)
	total, err := s.followRepo.CountFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.followRepo.ListFollowing(ctx, userID, offsetOf(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func (s *relationshipService) ListFollowers(ctx context.Context, userID uint, page, pageSize int) (*Page[model.User], error) {
	page, pageSize = normalizePage(page, pageSize, 10)
	total, err := s.followRepo.CountFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.followRepo.ListFollowers(ctx, userID, offsetOf(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func (s *relationshipService) Counts(ctx context.Context, userID uint) (int64, int64, error) {
	following, err := s.followRepo.CountFollowing(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	followers, err := s.followRepo.CountFollowers(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return following, followers, nil
}
