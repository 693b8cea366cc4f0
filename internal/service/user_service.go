package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"usercrud/internal/cache"
	"usercrud/internal/errors"
	"usercrud/internal/model"
	"usercrud/internal/repository"
)

const (
	defaultUserCacheTTL = 5 * time.Minute
	tombstoneTTL        = time.Minute
)

// tombstone marks a deleted user so that a lookup racing with the delete
// cannot put the old row back into the cache. It is not valid JSON and so
// reads as a miss.
var tombstone = []byte("deleted")

// UserService exposes domain operations on users.
type UserService interface {
	CreateUser(ctx context.Context, name, email string, age int) (*model.User, error)
	GetUserByID(ctx context.Context, id uint) (*model.User, bool, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, id uint, name, email string, age int) (*model.User, error)
	DeleteUser(ctx context.Context, id uint) (bool, error)
}

// Option customizes a UserService.
type Option func(*userService)

// WithCacheTTL sets how long looked-up users stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *userService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

type userService struct {
	repo     repository.UserRepository
	cache    *cache.Client
	log      *zap.Logger
	cacheTTL time.Duration
}

// NewUserService builds a UserService with repository and cache. cache may be
// nil to disable caching.
func NewUserService(repo repository.UserRepository, cache *cache.Client, log *zap.Logger, opts ...Option) UserService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &userService{
		repo:     repo,
		cache:    cache,
		log:      log.Named("user_service"),
		cacheTTL: defaultUserCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *userService) cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

func (s *userService) CreateUser(ctx context.Context, name, email string, age int) (*model.User, error) {
	user := &model.User{Name: name, Email: email, Age: age}

	saved, err := s.repo.Save(ctx, user)
	if err != nil {
		return nil, s.storageFailure("failed to create user", err)
	}
	return saved, nil
}

// GetUserByID reads through the cache. The fill only succeeds while the key
// is empty, so a row loaded before a concurrent update or delete never
// replaces what that writer stored.
func (s *userService) GetUserByID(ctx context.Context, id uint) (*model.User, bool, error) {
	key := s.cacheKey(id)
	var cached model.User
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, true, nil
	}

	user, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, false, s.storageFailure("failed to get user", err)
	}
	if !ok {
		return nil, false, nil
	}

	s.cache.SetJSONNX(ctx, key, user, s.cacheTTL)
	return user, true, nil
}

func (s *userService) GetAllUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.storageFailure("failed to list users", err)
	}
	return users, nil
}

// UpdateUser overwrites name, email and age of an existing user. The lookup
// and the write are separate steps, so a concurrent writer can interleave.
func (s *userService) UpdateUser(ctx context.Context, id uint, name, email string, age int) (*model.User, error) {
	user, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storageFailure("failed to update user", err)
	}
	if !ok {
		return nil, errors.NewUserNotFound(id)
	}

	user.Name = name
	user.Email = email
	user.Age = age

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return nil, s.storageFailure("failed to update user", err)
	}

	s.cache.SetJSON(ctx, s.cacheKey(id), updated, s.cacheTTL)
	return updated, nil
}

func (s *userService) DeleteUser(ctx context.Context, id uint) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, s.storageFailure("failed to delete user", err)
	}

	_ = s.cache.Set(ctx, s.cacheKey(id), tombstone, tombstoneTTL)
	return deleted, nil
}

func (s *userService) storageFailure(message string, err error) error {
	s.log.Error(message, zap.Error(err))
	return errors.NewServiceError(message, err)
}
