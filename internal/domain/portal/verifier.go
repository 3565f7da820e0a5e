// Package portal implements the patient-facing surface: identity
// verification gating access to medical content, per-token attempt limiting,
// session-scoped access grants, and ephemeral clinician preview tokens.
package portal

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/careloop/careloop/internal/domain/patient"
)

// Verification modes, recorded with every audited attempt.
const (
	ModeDemo       = "demo"
	ModeProduction = "production"
)

// Claim is a patient's submitted identity assertion. Field values are never
// persisted or logged.
type Claim struct {
	YearOfBirth int    `json:"yearOfBirth"`
	LastName    string `json:"lastName,omitempty"`
	PIN         string `json:"pin,omitempty"`
	Password    string `json:"password,omitempty"`
}

// RequiresFullAuthError signals that production mode needs more fields than
// were submitted. HasPassword tells the client whether to offer PIN or
// password entry.
type RequiresFullAuthError struct {
	HasPassword bool
}

func (e *RequiresFullAuthError) Error() string {
	return "verification requires last name and a pin or password"
}

// Verifier decides whether a claimed identity matches the patient bound to
// a care plan. One implementation per mode, selected at construction.
type Verifier interface {
	Verify(claim Claim, p *patient.Patient) (bool, error)
	Mode() string
}

type demoVerifier struct{}

// NewDemoVerifier returns the demo-mode verifier: year of birth only. The
// caller is responsible for refusing this mode in production deployments.
func NewDemoVerifier() Verifier {
	return demoVerifier{}
}

func (demoVerifier) Mode() string { return ModeDemo }

func (demoVerifier) Verify(claim Claim, p *patient.Patient) (bool, error) {
	return claim.YearOfBirth == p.YearOfBirth, nil
}

type productionVerifier struct{}

// NewProductionVerifier returns the production-mode verifier: last name,
// year of birth, and PIN or password.
func NewProductionVerifier() Verifier {
	return productionVerifier{}
}

func (productionVerifier) Mode() string { return ModeProduction }

func (productionVerifier) Verify(claim Claim, p *patient.Patient) (bool, error) {
	if strings.TrimSpace(claim.LastName) == "" || (claim.PIN == "" && claim.Password == "") {
		return false, &RequiresFullAuthError{HasPassword: p.HasPassword()}
	}

	// Evaluate every factor before combining so a failed name or year does
	// not short-circuit past the constant-time credential comparison.
	nameOK := strings.EqualFold(
		strings.TrimSpace(claim.LastName),
		strings.TrimSpace(p.EffectiveLastName()),
	)
	yearOK := claim.YearOfBirth == p.YearOfBirth

	var credOK bool
	if p.HasPassword() && claim.Password != "" {
		credOK = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(claim.Password)) == nil
	} else {
		// A record with no PIN must never verify on name and year alone.
		credOK = p.PIN != "" && subtle.ConstantTimeCompare([]byte(claim.PIN), []byte(p.PIN)) == 1
	}

	return nameOK && yearOK && credOK, nil
}
