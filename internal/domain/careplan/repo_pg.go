package careplan

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cpCols = `id, tenant_id, patient_id, clinician_id, status, language,
	original, simplified, translated, back_translated,
	access_token, access_token_expiry,
	interpreter_id, interpreter_reviewed_at, interpreter_notes,
	approved_by, approved_at, sent_at, completed_at, delivery_failed,
	created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*CarePlan, error) {
	var cp CarePlan
	err := row.Scan(&cp.ID, &cp.TenantID, &cp.PatientID, &cp.ClinicianID,
		&cp.Status, &cp.Language,
		&cp.Original, &cp.Simplified, &cp.Translated, &cp.BackTranslated,
		&cp.AccessToken, &cp.AccessTokenExpiry,
		&cp.InterpreterID, &cp.InterpreterReviewedAt, &cp.InterpreterNotes,
		&cp.ApprovedBy, &cp.ApprovedAt, &cp.SentAt, &cp.CompletedAt,
		&cp.DeliveryFailed, &cp.CreatedAt, &cp.UpdatedAt)
	return &cp, err
}

func (r *repoPG) Create(ctx context.Context, cp *CarePlan) error {
	cp.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO care_plan (id, tenant_id, patient_id, clinician_id, status,
			language, original, simplified, translated, back_translated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		cp.ID, cp.TenantID, cp.PatientID, cp.ClinicianID, cp.Status,
		cp.Language, cp.Original, cp.Simplified, cp.Translated, cp.BackTranslated)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cpCols+` FROM care_plan WHERE id = $1`, id))
}

func (r *repoPG) GetByAccessToken(ctx context.Context, token string) (*CarePlan, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cpCols+` FROM care_plan WHERE access_token = $1 AND access_token_expiry > NOW()`,
		token))
}

func (r *repoPG) Update(ctx context.Context, cp *CarePlan, from Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_plan SET patient_id=$2, status=$3, language=$4,
			simplified=$5, translated=$6, back_translated=$7,
			access_token=$8, access_token_expiry=$9,
			interpreter_id=$10, interpreter_reviewed_at=$11, interpreter_notes=$12,
			approved_by=$13, approved_at=$14, sent_at=$15, completed_at=$16,
			delivery_failed=$17, updated_at=NOW()
		WHERE id = $1 AND status = $18`,
		cp.ID, cp.PatientID, cp.Status, cp.Language,
		cp.Simplified, cp.Translated, cp.BackTranslated,
		cp.AccessToken, cp.AccessTokenExpiry,
		cp.InterpreterID, cp.InterpreterReviewedAt, cp.InterpreterNotes,
		cp.ApprovedBy, cp.ApprovedAt, cp.SentAt, cp.CompletedAt,
		cp.DeliveryFailed, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_plan WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]*CarePlan, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM care_plan`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+cpCols+` FROM care_plan`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CarePlan
	for rows.Next() {
		cp, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cp)
	}
	return items, total, nil
}
