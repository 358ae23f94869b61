package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("invalid user")
	ErrEmailTaken   = errors.New("email already registered")
	ErrSelfDemotion = errors.New("administrators cannot deactivate or demote themselves")
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "users").Logger()}
}

func validate(u *User) error {
	switch {
	case u.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	case !validEmail(u.Email):
		return fmt.Errorf("%w: a valid email is required", ErrInvalidUser)
	case !u.Role.Valid():
		return fmt.Errorf("%w: invalid role", ErrInvalidUser)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*User, int, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid role", ErrInvalidUser)
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create provisions a user. Role defaults to patient.
func (s *Service) Create(ctx context.Context, in Input) (*User, error) {
	u := &User{ID: uuid.New(), Role: auth.RolePatient, IsActive: true}
	in.apply(u)
	if err := validate(u); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user provisioned")
	return u, nil
}

// Update merges in onto the user. An admin may not strip their own access.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, in Input) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(u)
	if err := validate(u); err != nil {
		return nil, err
	}
	if id == actor.UserID && (!u.IsActive || u.Role != auth.RoleAdmin) {
		return nil, ErrSelfDemotion
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Deactivate(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if id == actor.UserID {
		return ErrSelfDemotion
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", id.String()).Msg("user deactivated")
	return nil
}
