package portal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/careplan"
	"github.com/careloop/careloop/internal/domain/checkin"
	"github.com/careloop/careloop/internal/domain/patient"
	"github.com/careloop/careloop/internal/platform/audit"
)

var (
	// ErrNotFound covers an access-token that resolves to nothing. Kept
	// distinct from credential failure so the two are never conflated.
	ErrNotFound = errors.New("care plan not found")
	// ErrNotGranted means the session has not verified this token.
	ErrNotGranted = errors.New("access not granted for session")
)

type planLoader interface {
	GetByAccessToken(ctx context.Context, token string) (*careplan.CarePlan, error)
}

type patientLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type checkinSubmitter interface {
	Submit(ctx context.Context, tenantID, carePlanID uuid.UUID, response string) (*checkin.CheckIn, error)
}

type auditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// VerifyResult is the structured outcome of a verification attempt.
type VerifyResult struct {
	Verified          bool `json:"verified"`
	Locked            bool `json:"locked,omitempty"`
	AttemptsRemaining *int `json:"attemptsRemaining,omitempty"`
	RequiresFullAuth  bool `json:"requiresFullAuth,omitempty"`
	HasPassword       bool `json:"hasPassword,omitempty"`
}

// Sentinel is the ungranted content-fetch response: just enough metadata to
// render a verification prompt, never medical content.
type Sentinel struct {
	RequiresVerification bool   `json:"requiresVerification"`
	Language             string `json:"language"`
}

// Service sequences the portal flows: verify, fetch, check-in, and demo
// token exchange. The demo exchange converges on the same grant mechanism
// as real verification.
type Service struct {
	plans    planLoader
	patients patientLoader
	checkins checkinSubmitter
	verifier Verifier
	limiter  *AttemptLimiter
	grants   *GrantStore
	demo     *DemoTokenIssuer
	audits   auditRecorder
	logger   zerolog.Logger
}

func NewService(plans planLoader, patients patientLoader, checkins checkinSubmitter,
	verifier Verifier, limiter *AttemptLimiter, grants *GrantStore,
	demo *DemoTokenIssuer, audits auditRecorder, logger zerolog.Logger) *Service {
	return &Service{
		plans:    plans,
		patients: patients,
		checkins: checkins,
		verifier: verifier,
		limiter:  limiter,
		grants:   grants,
		demo:     demo,
		audits:   audits,
		logger:   logger,
	}
}

func (s *Service) record(ctx context.Context, cp *careplan.CarePlan, action, outcome, detail string, attempts *int) {
	e := &audit.Entry{
		TenantID:          cp.TenantID,
		CarePlanID:        cp.ID,
		Action:            action,
		Outcome:           outcome,
		ActorRole:         "patient",
		Detail:            detail,
		VerificationMode:  s.verifier.Mode(),
		AttemptsRemaining: attempts,
	}
	if err := s.audits.Record(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("care_plan_id", cp.ID.String()).Msg("audit record failed")
	}
}

func intPtr(n int) *int { return &n }

// resolve maps an access token to its plan, treating missing token, missing
// plan, and missing patient binding all as the same not-found.
func (s *Service) resolve(ctx context.Context, token string) (*careplan.CarePlan, error) {
	cp, err := s.plans.GetByAccessToken(ctx, token)
	if err != nil {
		return nil, ErrNotFound
	}
	if cp.PatientID == nil {
		return nil, ErrNotFound
	}
	return cp, nil
}

// Verify evaluates a patient identity claim for the given token. Locked
// tokens short-circuit before the verifier runs. Every evaluated attempt is
// audited; credential values never are.
func (s *Service) Verify(ctx context.Context, sessionID, token string, claim Claim) (*VerifyResult, error) {
	cp, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	locked, err := s.limiter.Locked(ctx, token)
	if err != nil {
		return nil, err
	}
	if locked {
		s.record(ctx, cp, audit.ActionVerifyAttempt, audit.OutcomeLocked, "token locked", intPtr(0))
		return &VerifyResult{Locked: true, AttemptsRemaining: intPtr(0)}, nil
	}

	p, err := s.patients.Get(ctx, *cp.PatientID)
	if err != nil {
		return nil, ErrNotFound
	}

	ok, err := s.verifier.Verify(claim, p)
	var rfa *RequiresFullAuthError
	if errors.As(err, &rfa) {
		s.record(ctx, cp, audit.ActionVerifyAttempt, audit.OutcomeFailure, "missing credential fields", nil)
		return &VerifyResult{RequiresFullAuth: true, HasPassword: rfa.HasPassword}, nil
	}
	if err != nil {
		return nil, err
	}

	if ok {
		if err := s.limiter.Clear(ctx, token); err != nil {
			return nil, err
		}
		if err := s.grants.Grant(ctx, sessionID, token); err != nil {
			return nil, err
		}
		s.record(ctx, cp, audit.ActionVerifyAttempt, audit.OutcomeSuccess, "", nil)
		return &VerifyResult{Verified: true}, nil
	}

	remaining, nowLocked, err := s.limiter.RecordFailure(ctx, token)
	if err != nil {
		return nil, err
	}
	outcome := audit.OutcomeFailure
	if nowLocked {
		outcome = audit.OutcomeLocked
	}
	s.record(ctx, cp, audit.ActionVerifyAttempt, outcome, "credential mismatch", intPtr(remaining))
	return &VerifyResult{Locked: nowLocked, AttemptsRemaining: intPtr(remaining)}, nil
}

// Fetch returns the patient view when the session holds a grant, or the
// verification sentinel when it does not.
func (s *Service) Fetch(ctx context.Context, sessionID, token string) (*careplan.PatientView, *Sentinel, error) {
	cp, err := s.resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	granted, err := s.grants.Granted(ctx, sessionID, token)
	if err != nil {
		return nil, nil, err
	}
	if !granted {
		return nil, &Sentinel{RequiresVerification: true, Language: cp.Language}, nil
	}

	s.record(ctx, cp, audit.ActionPortalView, audit.OutcomeSuccess, "", nil)
	return cp.View(), nil, nil
}

// ExchangeDemoToken validates a clinician preview token against the
// requested access-token and, on success, grants the session exactly as a
// real verification would.
func (s *Service) ExchangeDemoToken(ctx context.Context, sessionID, token, demoToken string) (bool, error) {
	cp, err := s.resolve(ctx, token)
	if err != nil {
		return false, err
	}

	if !s.demo.Validate(demoToken, token) {
		s.record(ctx, cp, audit.ActionVerifyAttempt, audit.OutcomeFailure, "demo token rejected", nil)
		return false, nil
	}

	if err := s.grants.Grant(ctx, sessionID, token); err != nil {
		return false, err
	}
	s.record(ctx, cp, audit.ActionVerifyAttempt, audit.OutcomeSuccess, "demo token exchange", nil)
	return true, nil
}

// SubmitCheckIn records a wellness response. Requires a prior grant.
func (s *Service) SubmitCheckIn(ctx context.Context, sessionID, token, response string) (*checkin.CheckIn, error) {
	cp, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	granted, err := s.grants.Granted(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, ErrNotGranted
	}

	ci, err := s.checkins.Submit(ctx, cp.TenantID, cp.ID, response)
	if err != nil {
		return nil, err
	}
	s.record(ctx, cp, audit.ActionCheckInSubmitted, audit.OutcomeSuccess, response, nil)
	return ci, nil
}
