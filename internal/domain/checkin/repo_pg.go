package checkin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/careloop/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== CheckIn Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const checkInCols = `id, care_plan_id, patient_id, scheduled_for, sent_at,
	response, responded_at, created_at`

func scanCheckIn(row pgx.Row) (*CheckIn, error) {
	var ci CheckIn
	err := row.Scan(&ci.ID, &ci.CarePlanID, &ci.PatientID, &ci.ScheduledFor,
		&ci.SentAt, &ci.Response, &ci.RespondedAt, &ci.CreatedAt)
	return &ci, err
}

// Create inserts a check-in. The partial unique index on open rows makes a
// second concurrent insert for the same plan a no-op instead of a second
// reminder stream.
func (r *repoPG) Create(ctx context.Context, ci *CheckIn) error {
	ci.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO check_in (id, care_plan_id, patient_id, scheduled_for, sent_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (care_plan_id) WHERE responded_at IS NULL DO NOTHING`,
		ci.ID, ci.CarePlanID, ci.PatientID, ci.ScheduledFor, ci.SentAt)
	return err
}

func (r *repoPG) GetOpenByCarePlan(ctx context.Context, carePlanID uuid.UUID) (*CheckIn, error) {
	return scanCheckIn(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+checkInCols+` FROM check_in
		WHERE care_plan_id = $1 AND responded_at IS NULL
		ORDER BY scheduled_for LIMIT 1`, carePlanID))
}

func (r *repoPG) Update(ctx context.Context, ci *CheckIn) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE check_in SET sent_at=$2, response=$3, responded_at=$4
		WHERE id = $1`,
		ci.ID, ci.SentAt, ci.Response, ci.RespondedAt)
	return err
}

func (r *repoPG) ListByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]*CheckIn, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+checkInCols+` FROM check_in
		WHERE care_plan_id = $1 ORDER BY scheduled_for`, carePlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ci)
	}
	return items, nil
}

// ClaimDue marks due rows sent and returns them in one statement, so the
// selection and the mark are a single logical unit under concurrent sweeps.
func (r *repoPG) ClaimDue(ctx context.Context, limit int) ([]*DueCheckIn, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		UPDATE check_in ci SET sent_at = NOW()
		FROM care_plan cp, patient p
		WHERE ci.id IN (
			SELECT id FROM check_in
			WHERE sent_at IS NULL AND responded_at IS NULL AND scheduled_for <= NOW()
			ORDER BY scheduled_for LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		AND cp.id = ci.care_plan_id AND p.id = ci.patient_id
		RETURNING ci.id, ci.care_plan_id, p.email, p.phone, cp.access_token`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due check-ins: %w", err)
	}
	defer rows.Close()
	var items []*DueCheckIn
	for rows.Next() {
		var d DueCheckIn
		if err := rows.Scan(&d.ID, &d.CarePlanID, &d.Email, &d.Phone, &d.AccessToken); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, nil
}

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

const alertCols = `id, tenant_id, care_plan_id, check_in_id, severity,
	resolved_by, resolved_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.TenantID, &a.CarePlanID, &a.CheckInID,
		&a.Severity, &a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt)
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO alert (id, tenant_id, care_plan_id, check_in_id, severity)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.TenantID, a.CarePlanID, a.CheckInID, a.Severity)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
}

func (r *alertRepoPG) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE alert SET resolved_by=$2, resolved_at=NOW()
		WHERE id = $1 AND resolved_at IS NULL`,
		id, resolvedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert not found or already resolved")
	}
	return nil
}

func (r *alertRepoPG) List(ctx context.Context, tenantID uuid.UUID, openOnly bool, limit, offset int) ([]*Alert, int, error) {
	where := ` WHERE tenant_id = $1`
	if openOnly {
		where += ` AND resolved_at IS NULL`
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM alert`+where, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+alertCols+` FROM alert`+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
