package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/search"
)

// PostIndex is the index name posts are registered under.
const PostIndex = "post"

// SearchService resolves full-text hits back to live posts in rank order.
type SearchService interface {
	SearchPosts(ctx context.Context, text string, page, pageSize int) (*Page[model.Post], error)
}

type searchService struct {
	client   *search.Client
	posts    repository.PostRepository
	pageSize int
}

func NewSearchService(client *search.Client, posts repository.PostRepository, pageSize int) SearchService {
	return &searchService{client: client, posts: posts, pageSize: pageSize}
}

// SearchPosts never fails because of the search backend; a disabled or broken backend yields
// an empty page. Total is the backend's hit count and may include documents whose rows are gone.
func (s *searchService) SearchPosts(ctx context.Context, text string, page, pageSize int) (*Page[model.Post], error) {
	page, pageSize = normalizePage(page, pageSize, s.pageSize)
	text = strings.TrimSpace(text)
	if text == "" {
		return newPage[model.Post](nil, 0, page, pageSize), nil
	}

	hits, total := s.client.Query(ctx, PostIndex, text, page, pageSize)
	ids := make([]uint, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseUint(h, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	posts, err := s.posts.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return newPage(posts, total, page, pageSize), nil
}
