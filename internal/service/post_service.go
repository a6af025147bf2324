package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
)

var validate = validator.New()

// PostService 发帖 / 编辑 / 删除；写入经 unit of work，索引由提交钩子同步
type PostService interface {
	Publish(ctx context.Context, userID uint, body string) (*model.Post, error)
	Edit(ctx context.Context, userID, postID uint, body string) (*model.Post, error)
	Delete(ctx context.Context, userID, postID uint) error
	Get(ctx context.Context, postID uint) (*model.Post, error)
	Explore(ctx context.Context, page, pageSize int) (*Page[model.Post], error)
	ByUser(ctx context.Context, userID uint, page, pageSize int) (*Page[model.Post], error)
}

type postService struct {
	posts    repository.PostRepository
	pageSize int
	now      func() time.Time
}

func NewPostService(posts repository.PostRepository, pageSize int) PostService {
	return &postService{posts: posts, pageSize: pageSize, now: func() time.Time { return time.Now().UTC() }}
}

func (s *postService) Publish(ctx context.Context, userID uint, body string) (*model.Post, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	p := &model.Post{Body: body, Timestamp: s.now(), Language: DetectLanguage(body), UserID: userID}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *postService) Edit(ctx context.Context, userID, postID uint, body string) (*model.Post, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	p.Body = body
	p.Language = DetectLanguage(body)
	if err := s.posts.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *postService) Delete(ctx context.Context, userID, postID uint) error {
	p, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	return s.posts.Delete(ctx, p)
}

func (s *postService) Get(ctx context.Context, postID uint) (*model.Post, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	return p, err
}

func (s *postService) owned(ctx context.Context, userID, postID uint) (*model.Post, error) {
	p, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *postService) Explore(ctx context.Context, page, pageSize int) (*Page[model.Post], error) {
	page, pageSize = normalizePage(page, pageSize, s.pageSize)
	items, total, err := s.posts.ListAll(ctx, offsetOf(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func (s *postService) ByUser(ctx context.Context, userID uint, page, pageSize int) (*Page[model.Post], error) {
	page, pageSize = normalizePage(page, pageSize, s.pageSize)
	items, total, err := s.posts.ListByUser(ctx, userID, offsetOf(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, page, pageSize), nil
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if err := validate.Var(body, fmt.Sprintf("required,max=%d", model.MaxPostLength)); err != nil {
		return "", fmt.Errorf("%w: post body must be 1-%d characters", ErrInvalidInput, model.MaxPostLength)
	}
	return body, nil
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when detection is unreliable.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	code := info.Lang.Iso6391()
	if len(code) > 5 {
		return ""
	}
	return code
}
