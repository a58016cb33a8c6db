package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRole(ctx context.Context, id int, role types.Role) error
}

// UserService encapsulates user use-cases outside the login flow.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// SetRole is the administrative role change. Access tokens already issued
// keep their old role until they expire; the next refresh picks up the new one.
func (s *UserService) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("update role: %w", err)
	}
	return s.GetByID(ctx, id)
}
