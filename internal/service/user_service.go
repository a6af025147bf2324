package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type ProfileInput struct {
	Username string `json:"username" validate:"required,max=64"`
	AboutMe  string `json:"about_me" validate:"max=140"`
}

// UserService 注册、登录校验、资料维护
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	Get(ctx context.Context, id uint) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*model.User, error)
	SetPassword(ctx context.Context, id uint, password string) error
	TouchLastSeen(ctx context.Context, id uint) error
}

type userService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.checkUnique(ctx, in.Username, in.Email, 0); err != nil {
		return nil, err
	}
	u := &model.User{Username: in.Username, Email: in.Email, LastSeen: time.Now().UTC()}
	if err := u.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) checkUnique(ctx context.Context, username, email string, exceptID uint) error {
	taken, err := s.users.ExistsUsername(ctx, username, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}
	if email == "" {
		return nil
	}
	taken, err = s.users.ExistsEmail(ctx, email, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, id uint) (*model.User, error) {
	return notFound(s.users.GetByID(ctx, id))
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return notFound(s.users.GetByUsername(ctx, username))
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return notFound(s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email))))
}

func notFound(u *model.User, err error) (*model.User, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *userService) UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Username != u.Username {
		if err := s.checkUnique(ctx, in.Username, "", id); err != nil {
			return nil, err
		}
	}
	u.Username = in.Username
	u.AboutMe = in.AboutMe
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) SetPassword(ctx context.Context, id uint, password string) error {
	if err := validate.Var(password, "required,min=6,max=72"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := u.SetPassword(password); err != nil {
		return err
	}
	return s.users.Update(ctx, u)
}

func (s *userService) TouchLastSeen(ctx context.Context, id uint) error {
	return s.users.TouchLastSeen(ctx, id, time.Now().UTC())
}
