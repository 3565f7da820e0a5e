package careplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/patient"
	"github.com/careloop/careloop/internal/domain/tenant"
	"github.com/careloop/careloop/internal/platform/ai"
	"github.com/careloop/careloop/internal/platform/audit"
	"github.com/careloop/careloop/internal/platform/auth"
	"github.com/careloop/careloop/internal/platform/notify"
)

var (
	ErrNotFound        = errors.New("care plan not found")
	ErrTransformFailed = errors.New("transform failed")
	ErrConflict        = errors.New("care plan was modified concurrently")
)

// Actor identifies who performed a lifecycle action, taken from the
// clinician's token claims.
type Actor struct {
	ID   string
	Name string
	Role string
}

// ActorFromContext builds an Actor from the authenticated request context.
func ActorFromContext(ctx context.Context) Actor {
	a := Actor{
		ID:   auth.UserIDFromContext(ctx),
		Name: auth.UserNameFromContext(ctx),
	}
	if roles := auth.RolesFromContext(ctx); len(roles) > 0 {
		a.Role = roles[0]
	}
	return a
}

// Collaborator contracts. Concrete implementations are wired at startup;
// tests substitute in-memory fakes.
type patientProvisioner interface {
	UpsertForSend(ctx context.Context, tenantID uuid.UUID, details patient.ContactDetails) (*patient.Patient, error)
}

type checkinScheduler interface {
	ScheduleFirst(ctx context.Context, carePlanID, patientID uuid.UUID) error
}

type auditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

type deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) bool
}

// Service sequences the care plan lifecycle: upload, transform, review
// branching, approval, send, completion.
type Service struct {
	repo        Repository
	transformer ai.Transformer
	patients    patientProvisioner
	checkins    checkinScheduler
	audits      auditRecorder
	notifier    deliverer
	baseURL     string
	logger      zerolog.Logger
}

func NewService(repo Repository, transformer ai.Transformer, patients patientProvisioner,
	checkins checkinScheduler, audits auditRecorder, notifier deliverer,
	baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		transformer: transformer,
		patients:    patients,
		checkins:    checkins,
		audits:      audits,
		notifier:    notifier,
		baseURL:     baseURL,
		logger:      logger,
	}
}

func (s *Service) record(ctx context.Context, cp *CarePlan, actor Actor, action, outcome, detail string) {
	e := &audit.Entry{
		TenantID:   cp.TenantID,
		CarePlanID: cp.ID,
		Action:     action,
		Outcome:    outcome,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Detail:     detail,
	}
	if err := s.audits.Record(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("care_plan_id", cp.ID.String()).Msg("audit record failed")
	}
}

// Create stores an uploaded care plan in draft with its original content.
func (s *Service) Create(ctx context.Context, cp *CarePlan, actor Actor) error {
	if cp.TenantID == uuid.Nil {
		return fmt.Errorf("tenant_id is required")
	}
	if cp.Original.Empty() {
		return fmt.Errorf("original content is required")
	}
	if cp.Language == "" {
		cp.Language = "en"
	}
	cp.Status = StatusDraft
	cp.ClinicianID = actor.ID
	if err := s.repo.Create(ctx, cp); err != nil {
		return err
	}
	s.record(ctx, cp, actor, audit.ActionCreated, audit.OutcomeSuccess, "")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	cp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return cp, nil
}

// GetByAccessToken resolves a patient magic-link token to its care plan. An
// unknown or expired token is a plain not-found, never conflated with a
// credential failure.
func (s *Service) GetByAccessToken(ctx context.Context, token string) (*CarePlan, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	cp, err := s.repo.GetByAccessToken(ctx, token)
	if err != nil {
		return nil, ErrNotFound
	}
	return cp, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]*CarePlan, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.List(ctx, tenantID, status, limit, offset)
}

// Process runs the transform collaborator over the original content and
// moves the plan to pending_review. A collaborator failure leaves the plan
// in draft, retryable.
func (s *Service) Process(ctx context.Context, id uuid.UUID, actor Actor) (*CarePlan, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := cp.Status
	next, err := cp.Status.Next(ActionProcess)
	if err != nil {
		return nil, err
	}

	res, err := s.transformer.Transform(ctx, cp.Original, cp.Language)
	if err != nil {
		s.record(ctx, cp, actor, audit.ActionProcessed, audit.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrTransformFailed, err)
	}

	cp.Simplified = &res.Simplified
	cp.Translated = res.Translated
	cp.BackTranslated = res.BackTranslated
	cp.Status = next
	if err := s.repo.Update(ctx, cp, from); err != nil {
		return nil, err
	}
	s.record(ctx, cp, actor, audit.ActionProcessed, audit.OutcomeSuccess, "")
	s.logger.Info().Str("care_plan_id", cp.ID.String()).Str("language", cp.Language).Msg("care plan processed")
	return cp, nil
}

// Approve finalizes clinician approval, routing through interpreter review
// when the tenant's mode and the plan's language require it. Re-approving an
// already approved plan is a no-op that leaves approval metadata untouched.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, t *tenant.Tenant, actor Actor, skipInterpreterReview bool, overrideJustification string) (*CarePlan, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch cp.Status {
	case StatusApproved:
		return cp, nil

	case StatusInterpreterApproved:
		next, err := cp.Status.Next(ActionApprove)
		if err != nil {
			return nil, err
		}
		from := cp.Status
		cp.Status = next
		if cp.ApprovedAt == nil {
			now := time.Now().UTC()
			cp.ApprovedBy = actor.ID
			cp.ApprovedAt = &now
		}
		if err := s.repo.Update(ctx, cp, from); err != nil {
			return nil, err
		}
		s.record(ctx, cp, actor, audit.ActionApproved, audit.OutcomeSuccess, "after interpreter review")
		return cp, nil

	case StatusPendingReview:
		if s.needsInterpreterReview(cp, t, skipInterpreterReview) {
			next, err := cp.Status.Next(ActionSubmitInterpreter)
			if err != nil {
				return nil, err
			}
			from := cp.Status
			cp.Status = next
			if err := s.repo.Update(ctx, cp, from); err != nil {
				return nil, err
			}
			s.record(ctx, cp, actor, audit.ActionApproved, audit.OutcomeSuccess, "routed to interpreter review")
			return cp, nil
		}

		next, err := cp.Status.Next(ActionApprove)
		if err != nil {
			return nil, err
		}
		from := cp.Status
		cp.Status = next
		now := time.Now().UTC()
		cp.ApprovedBy = actor.ID
		cp.ApprovedAt = &now
		if err := s.repo.Update(ctx, cp, from); err != nil {
			return nil, err
		}
		detail := ""
		if skipInterpreterReview && cp.NonEnglish() {
			detail = "interpreter review skipped"
			if overrideJustification != "" {
				detail += ": " + overrideJustification
			}
		}
		s.record(ctx, cp, actor, audit.ActionApproved, audit.OutcomeSuccess, detail)
		return cp, nil

	default:
		return nil, &IllegalTransitionError{From: cp.Status, Action: ActionApprove}
	}
}

// needsInterpreterReview applies the branching guard: non-English target and
// a tenant mode of required, or optional without an explicit skip.
func (s *Service) needsInterpreterReview(cp *CarePlan, t *tenant.Tenant, skip bool) bool {
	if !cp.NonEnglish() {
		return false
	}
	mode := tenant.ReviewDisabled
	if t != nil {
		mode = t.InterpreterReviewMode
	}
	switch mode {
	case tenant.ReviewRequired:
		return true
	case tenant.ReviewOptional:
		return !skip
	default:
		return false
	}
}

// ReviewEdits carries interpreter field-level corrections, applied verbatim.
type ReviewEdits struct {
	Simplified *ai.PlanContent `json:"simplified,omitempty"`
	Translated *ai.PlanContent `json:"translated,omitempty"`
}

// InterpreterApprove records interpreter sign-off, optionally applying edits
// to the simplified and translated content.
func (s *Service) InterpreterApprove(ctx context.Context, id uuid.UUID, actor Actor, edits *ReviewEdits, notes string) (*CarePlan, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := cp.Status.Next(ActionInterpreterOK)
	if err != nil {
		return nil, err
	}

	if edits != nil {
		if edits.Simplified != nil {
			cp.Simplified = edits.Simplified
		}
		if edits.Translated != nil {
			cp.Translated = edits.Translated
		}
	}
	now := time.Now().UTC()
	from := cp.Status
	cp.Status = next
	cp.InterpreterID = actor.ID
	cp.InterpreterReviewedAt = &now
	cp.InterpreterNotes = notes
	if err := s.repo.Update(ctx, cp, from); err != nil {
		return nil, err
	}
	s.record(ctx, cp, actor, audit.ActionInterpreterApprove, audit.OutcomeSuccess, "")
	return cp, nil
}

// RequestChanges returns an interpreter-review plan to the clinician with a
// mandatory reason.
func (s *Service) RequestChanges(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*CarePlan, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("reason is required")
	}
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := cp.Status.Next(ActionRequestChanges)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	from := cp.Status
	cp.Status = next
	cp.InterpreterID = actor.ID
	cp.InterpreterReviewedAt = &now
	cp.InterpreterNotes = reason
	if err := s.repo.Update(ctx, cp, from); err != nil {
		return nil, err
	}
	s.record(ctx, cp, actor, audit.ActionChangesRequested, audit.OutcomeSuccess, reason)
	return cp, nil
}

// Send delivers the plan to the patient: upserts the patient record with a
// fresh PIN, rotates the access token, schedules the first check-in, and
// notifies. Notification failure does not fail the transition.
func (s *Service) Send(ctx context.Context, id uuid.UUID, actor Actor, details patient.ContactDetails) (*CarePlan, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := cp.Status.Next(ActionSend)
	if err != nil {
		return nil, err
	}

	p, err := s.patients.UpsertForSend(ctx, cp.TenantID, details)
	if err != nil {
		return nil, fmt.Errorf("upsert patient: %w", err)
	}

	// Re-send rotates the token even when one already exists.
	token, err := NewAccessToken()
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	now := time.Now().UTC()
	expiry := now.Add(AccessTokenTTL)

	delivered := s.notifier.Deliver(ctx, notify.Message{
		Email:   p.Email,
		Phone:   p.Phone,
		Subject: "Your care plan is ready",
		Body: fmt.Sprintf("Your care plan is ready to view: %s/portal/%s\nYour PIN: %s",
			s.baseURL, token, p.PIN),
	})

	from := cp.Status
	cp.Status = next
	cp.PatientID = &p.ID
	cp.AccessToken = &token
	cp.AccessTokenExpiry = &expiry
	cp.SentAt = &now
	cp.DeliveryFailed = !delivered
	if err := s.repo.Update(ctx, cp, from); err != nil {
		return nil, err
	}

	if err := s.checkins.ScheduleFirst(ctx, cp.ID, p.ID); err != nil {
		return nil, fmt.Errorf("schedule first check-in: %w", err)
	}

	detail := ""
	if !delivered {
		detail = "notification delivery failed"
	}
	s.record(ctx, cp, actor, audit.ActionSent, audit.OutcomeSuccess, detail)
	s.logger.Info().Str("care_plan_id", cp.ID.String()).Bool("delivered", delivered).Msg("care plan sent")
	return cp, nil
}

// CompleteFromCheckIn moves a sent plan to completed. Called when a patient
// check-in response is green.
func (s *Service) CompleteFromCheckIn(ctx context.Context, carePlanID uuid.UUID) error {
	cp, err := s.Get(ctx, carePlanID)
	if err != nil {
		return err
	}
	next, err := cp.Status.Next(ActionComplete)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	from := cp.Status
	cp.Status = next
	cp.CompletedAt = &now
	if err := s.repo.Update(ctx, cp, from); err != nil {
		return err
	}
	s.record(ctx, cp, Actor{ID: "system", Name: "check-in"}, audit.ActionCompleted, audit.OutcomeSuccess, "green check-in response")
	return nil
}

// Delete removes a plan that has not yet reached a patient or an
// interpreter.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cp.Status.Deletable() {
		return &IllegalTransitionError{From: cp.Status, Action: "delete"}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, cp, actor, audit.ActionDeleted, audit.OutcomeSuccess, "")
	return nil
}
