package careplan

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/careloop/internal/platform/ai"
)

// AccessTokenTTL is how long a patient's magic link stays valid after a send.
const AccessTokenTTL = 30 * 24 * time.Hour

// CarePlan maps to the care_plan table. Content exists at three tiers:
// original as extracted, simplified, and (for non-English targets)
// translated, plus back-translated fields kept as a quality signal for the
// reviewing interpreter.
type CarePlan struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ClinicianID string     `db:"clinician_id" json:"clinician_id,omitempty"`
	Status      Status     `db:"status" json:"status"`
	Language    string     `db:"language" json:"language"`

	Original       ai.PlanContent      `db:"original" json:"original"`
	Simplified     *ai.PlanContent     `db:"simplified" json:"simplified,omitempty"`
	Translated     *ai.PlanContent     `db:"translated" json:"translated,omitempty"`
	BackTranslated *ai.BackTranslation `db:"back_translated" json:"back_translated,omitempty"`

	AccessToken       *string    `db:"access_token" json:"-"`
	AccessTokenExpiry *time.Time `db:"access_token_expiry" json:"access_token_expiry,omitempty"`

	InterpreterID         string     `db:"interpreter_id" json:"interpreter_id,omitempty"`
	InterpreterReviewedAt *time.Time `db:"interpreter_reviewed_at" json:"interpreter_reviewed_at,omitempty"`
	InterpreterNotes      string     `db:"interpreter_notes" json:"interpreter_notes,omitempty"`

	ApprovedBy string     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`

	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DeliveryFailed bool       `db:"delivery_failed" json:"delivery_failed"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NonEnglish reports whether the plan targets a non-English language and so
// is subject to interpreter review branching.
func (cp *CarePlan) NonEnglish() bool {
	lang := strings.ToLower(strings.TrimSpace(cp.Language))
	return lang != "" && lang != "en" && !strings.HasPrefix(lang, "en-")
}

// PatientView is the payload a verified patient sees. It carries the best
// available tier for their language and never internal review metadata.
type PatientView struct {
	ID          uuid.UUID       `json:"id"`
	Language    string          `json:"language"`
	Content     *ai.PlanContent `json:"content"`
	Status      Status          `json:"status"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// View returns the patient-facing payload: translated content when present,
// otherwise simplified.
func (cp *CarePlan) View() *PatientView {
	content := cp.Simplified
	if cp.Translated != nil {
		content = cp.Translated
	}
	return &PatientView{
		ID:          cp.ID,
		Language:    cp.Language,
		Content:     content,
		Status:      cp.Status,
		SentAt:      cp.SentAt,
		CompletedAt: cp.CompletedAt,
	}
}

// NewAccessToken returns a high-entropy opaque token for a patient magic
// link. Never derived from predictable fields.
func NewAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
