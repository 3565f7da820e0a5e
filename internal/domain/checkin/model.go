package checkin

import (
	"time"

	"github.com/google/uuid"
)

// Patient wellness responses.
const (
	ResponseGreen  = "green"
	ResponseYellow = "yellow"
	ResponseRed    = "red"
)

// FollowUpDelay is how far out the next check-in is scheduled after a
// yellow or red response, and how far out the first check-in lands after a
// send.
const FollowUpDelay = 3 * 24 * time.Hour

var validResponses = map[string]bool{
	ResponseGreen: true, ResponseYellow: true, ResponseRed: true,
}

// ValidResponse reports whether r is a recognized check-in response.
func ValidResponse(r string) bool {
	return validResponses[r]
}

// CheckIn maps to the check_in table. At most one unresponded check-in
// exists per care plan at a time.
type CheckIn struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CarePlanID   uuid.UUID  `db:"care_plan_id" json:"care_plan_id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Response     string     `db:"response" json:"response,omitempty"`
	RespondedAt  *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Alert is raised by a yellow or red check-in response and requires admin
// resolution.
type Alert struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	CarePlanID uuid.UUID  `db:"care_plan_id" json:"care_plan_id"`
	CheckInID  uuid.UUID  `db:"check_in_id" json:"check_in_id"`
	Severity   string     `db:"severity" json:"severity"`
	ResolvedBy string     `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// DueCheckIn is a claimed check-in joined with the contact details needed to
// deliver its reminder.
type DueCheckIn struct {
	ID          uuid.UUID
	CarePlanID  uuid.UUID
	Email       string
	Phone       string
	AccessToken *string
}
