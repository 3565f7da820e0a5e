package checkin

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, ci *CheckIn) error
	GetOpenByCarePlan(ctx context.Context, carePlanID uuid.UUID) (*CheckIn, error)
	Update(ctx context.Context, ci *CheckIn) error
	ListByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]*CheckIn, error)

	// ClaimDue atomically marks due, unsent check-ins as sent and returns
	// them with delivery contact details. Overlapping sweeps each claim a
	// disjoint set, so no check-in is delivered twice.
	ClaimDue(ctx context.Context, limit int) ([]*DueCheckIn, error)
}

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error
	List(ctx context.Context, tenantID uuid.UUID, openOnly bool, limit, offset int) ([]*Alert, int, error)
}
