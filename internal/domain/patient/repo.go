package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Patient, int, error)
}
