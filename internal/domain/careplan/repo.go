package careplan

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, cp *CarePlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error)
	GetByAccessToken(ctx context.Context, token string) (*CarePlan, error)
	// Update persists cp only when the stored row is still in status from,
	// so two concurrent transitions cannot both win.
	Update(ctx context.Context, cp *CarePlan, from Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]*CarePlan, int, error)
}
