// Package audit records an append-only trail of care-plan lifecycle and
// portal access events. Entries never contain credentials or tokens.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/careloop/internal/platform/db"
)

// Actions recorded in the trail.
const (
	ActionCreated            = "created"
	ActionProcessed          = "processed"
	ActionApproved           = "approved"
	ActionInterpreterApprove = "interpreter_approved"
	ActionChangesRequested   = "changes_requested"
	ActionSent               = "sent"
	ActionCompleted          = "completed"
	ActionDeleted            = "deleted"
	ActionVerifyAttempt      = "verify_attempt"
	ActionPortalView         = "portal_view"
	ActionCheckInSubmitted   = "check_in_submitted"
	ActionDemoTokenIssued    = "demo_token_issued"
)

// Outcomes for a recorded action.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
)

// Entry is a single audit trail record for a care plan.
type Entry struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	CarePlanID        uuid.UUID `json:"care_plan_id"`
	Action            string    `json:"action"`
	Outcome           string    `json:"outcome"`
	ActorID           string    `json:"actor_id,omitempty"`
	ActorName         string    `json:"actor_name,omitempty"`
	ActorRole         string    `json:"actor_role,omitempty"`
	Detail            string    `json:"detail,omitempty"`
	VerificationMode  string    `json:"verification_mode,omitempty"`
	AttemptsRemaining *int      `json:"attempts_remaining,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// Logger writes audit entries to the care_plan_audit table.
type Logger struct {
	pool *pgxpool.Pool
}

func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

const entryCols = `id, tenant_id, care_plan_id, action, outcome, actor_id,
	actor_name, actor_role, detail, verification_mode, attempts_remaining,
	ip_address, recorded_at`

// Record appends an entry to the trail. Entries are never updated or deleted.
func (l *Logger) Record(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO care_plan_audit (id, tenant_id, care_plan_id, action, outcome,
			actor_id, actor_name, actor_role, detail, verification_mode,
			attempts_remaining, ip_address, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	args := []any{
		e.ID, e.TenantID, e.CarePlanID, e.Action, e.Outcome,
		e.ActorID, e.ActorName, e.ActorRole, e.Detail, e.VerificationMode,
		e.AttemptsRemaining, e.IPAddress, e.RecordedAt,
	}

	if tx := db.TxFromContext(ctx); tx != nil {
		_, err := tx.Exec(ctx, query, args...)
		return err
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, query, args...)
	return err
}

// ListByCarePlan returns the trail for one care plan, newest first.
func (l *Logger) ListByCarePlan(ctx context.Context, carePlanID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer conn.Release()

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM care_plan_audit WHERE care_plan_id = $1`, carePlanID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `SELECT `+entryCols+` FROM care_plan_audit
		WHERE care_plan_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`,
		carePlanID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CarePlanID, &e.Action, &e.Outcome,
			&e.ActorID, &e.ActorName, &e.ActorRole, &e.Detail, &e.VerificationMode,
			&e.AttemptsRemaining, &e.IPAddress, &e.RecordedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}
