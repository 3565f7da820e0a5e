package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Interpreter review modes. The mode governs whether translated care plans
// must pass interpreter review before clinician approval becomes final.
const (
	ReviewDisabled = "disabled"
	ReviewOptional = "optional"
	ReviewRequired = "required"
)

var validReviewModes = map[string]bool{
	ReviewDisabled: true, ReviewOptional: true, ReviewRequired: true,
}

// ValidReviewMode reports whether mode is a recognized interpreter review mode.
func ValidReviewMode(mode string) bool {
	return validReviewModes[mode]
}

// Tenant maps to the tenant table.
type Tenant struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	Slug                  string    `db:"slug" json:"slug"`
	Name                  string    `db:"name" json:"name"`
	InterpreterReviewMode string    `db:"interpreter_review_mode" json:"interpreter_review_mode"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}
