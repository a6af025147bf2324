package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
)

// FollowingSource supplies the ids a user follows, typically from a cache.
type FollowingSource interface {
	FollowingIDs(ctx context.Context, userID uint) ([]uint, error)
}

// FeedService 关注流：自己的帖子 ∪ 关注对象的帖子，按 (timestamp, id) 倒序
type FeedService interface {
	Feed(ctx context.Context, userID uint, page, pageSize int) (*Page[model.Post], error)
}

type feedService struct {
	posts     repository.PostRepository
	following FollowingSource
	pageSize  int
	log       *zap.Logger
}

// NewFeedService builds the aggregator. following may be nil, in which case followed authors
// are resolved by a sub-query inside the feed query.
func NewFeedService(posts repository.PostRepository, following FollowingSource, pageSize int, log *zap.Logger) FeedService {
	if log == nil {
		log = zap.NewNop()
	}
	return &feedService{posts: posts, following: following, pageSize: pageSize, log: log}
}

// Feed is one query whose author predicate is a set, so a post matching both "own" and
// "followed" appears once.
func (s *feedService) Feed(ctx context.Context, userID uint, page, pageSize int) (*Page[model.Post], error) {
	page, pageSize = normalizePage(page, pageSize, s.pageSize)
	offset := offsetOf(page, pageSize)

	authors, followedOf := []uint{userID}, userID
	if s.following != nil {
		ids, err := s.following.FollowingIDs(ctx, userID)
		if err == nil {
			authors, followedOf = append(ids, userID), 0
		} else {
			s.log.Warn("following set unavailable, using sub-query", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	items, total, err := s.posts.ListByAuthors(ctx, authors, followedOf, offset, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}
