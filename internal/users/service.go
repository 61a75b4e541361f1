package users

import (
	"context"
	"errors"

	"github.com/pdfshare/pdfshare/backend/go-services/internal/models"
)

var ErrUnknownUser = errors.New("unknown user")

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	if sub == "" {
		return nil, nil
	}
	u := &models.User{
		Sub:   sub,
		Email: email,
		Name:  name,
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// DisplayName resolves the comment label of a registered user.
func (s *Service) DisplayName(ctx context.Context, sub string) (string, error) {
	u, err := s.repo.GetBySub(ctx, sub)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUnknownUser
	}
	return u.DisplayName(), nil
}
