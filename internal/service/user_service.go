package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/store"
)

// UserService 用户注册、查询与口令校验
type UserService interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Get(ctx context.Context, username string) (*model.User, error)
	MultiGet(ctx context.Context, usernames []string) (map[string]*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
}

type userService struct {
	users repository.UserRepository
	cost  int
	locks *keyedMutex
}

// NewUserService hashes passwords with the given bcrypt cost; a cost outside
// bcrypt's range falls back to bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, bcryptCost int) UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &userService{users: users, cost: bcryptCost, locks: newKeyedMutex()}
}

func (s *userService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if err := validate.Struct(registration{Username: username, Password: password}); err != nil {
		return nil, validationError("username must match ^\\w+$ and be at most %d characters; password is required", maxUsernameLength)
	}

	// the store has no conditional insert; this only guards one process
	unlock := s.locks.Lock(username)
	defer unlock()

	if _, err := s.users.Get(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, validationError("password longer than 72 bytes")
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, username string) (*model.User, error) {
	return s.users.Get(ctx, username)
}

func (s *userService) MultiGet(ctx context.Context, usernames []string) (map[string]*model.User, error) {
	return s.users.MultiGet(ctx, usernames)
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.users.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
