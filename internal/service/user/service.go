package user

import (
	"context"

	"log/slog"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository"
)

// Service exposes user lookups for member pickers and profile pages.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New returns a user service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// List returns every registered user as a minimal reference.
func (s Service) List(ctx context.Context) ([]domain.UserRef, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]domain.UserRef, 0, len(users))
	for i := range users {
		refs = append(refs, users[i].Ref())
	}
	return refs, nil
}

// Get returns a single user reference.
func (s Service) Get(ctx context.Context, id string) (*domain.UserRef, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ref := u.Ref()
	return &ref, nil
}
