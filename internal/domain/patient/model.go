package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Email is unique per tenant, not
// globally. PIN and PasswordHash are never serialized.
type Patient struct {
	ID                uuid.UUID `db:"id" json:"id"`
	TenantID          uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Name              string    `db:"name" json:"name"`
	LastName          string    `db:"last_name" json:"last_name"`
	Email             string    `db:"email" json:"email"`
	Phone             string    `db:"phone" json:"phone,omitempty"`
	YearOfBirth       int       `db:"year_of_birth" json:"year_of_birth"`
	PreferredLanguage string    `db:"preferred_language" json:"preferred_language"`
	PIN               string    `db:"pin" json:"-"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// DeriveLastName returns the last whitespace-delimited token of a full name.
// The same derivation is used whether the attribute is stored or computed at
// comparison time, so both paths agree on every input.
func DeriveLastName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// EffectiveLastName returns the stored last name, falling back to the
// derivation from the full name when none was recorded.
func (p *Patient) EffectiveLastName() string {
	if strings.TrimSpace(p.LastName) != "" {
		return p.LastName
	}
	return DeriveLastName(p.Name)
}

// HasPassword reports whether the patient has set a persistent password.
func (p *Patient) HasPassword() bool {
	return p.PasswordHash != ""
}
