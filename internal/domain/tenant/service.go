package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("tenant not found")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, t *Tenant) error {
	if !slugPattern.MatchString(t.Slug) {
		return fmt.Errorf("invalid slug: %s", t.Slug)
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.InterpreterReviewMode == "" {
		t.InterpreterReviewMode = ReviewDisabled
	}
	if !ValidReviewMode(t.InterpreterReviewMode) {
		return fmt.Errorf("invalid interpreter_review_mode: %s", t.InterpreterReviewMode)
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, t *Tenant) error {
	if t.InterpreterReviewMode != "" && !ValidReviewMode(t.InterpreterReviewMode) {
		return fmt.Errorf("invalid interpreter_review_mode: %s", t.InterpreterReviewMode)
	}
	return s.repo.Update(ctx, t)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	return s.repo.List(ctx, limit, offset)
}
