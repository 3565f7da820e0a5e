package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/platform/notify"
)

var ErrNoOpenCheckIn = errors.New("no open check-in for care plan")

type planCompleter interface {
	CompleteFromCheckIn(ctx context.Context, carePlanID uuid.UUID) error
}

type deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) bool
}

type Service struct {
	repo     Repository
	alerts   AlertRepository
	plans    planCompleter
	notifier deliverer
	baseURL  string
	logger   zerolog.Logger
}

func NewService(repo Repository, alerts AlertRepository, notifier deliverer, baseURL string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, alerts: alerts, notifier: notifier, baseURL: baseURL, logger: logger}
}

// SetPlanCompleter wires the care plan side after construction. The two
// services reference each other, so one side is attached late.
func (s *Service) SetPlanCompleter(plans planCompleter) {
	s.plans = plans
}

// ScheduleFirst creates the initial check-in for a freshly sent care plan.
// Re-sends leave an existing open check-in in place, keeping at most one
// unresponded check-in per plan.
func (s *Service) ScheduleFirst(ctx context.Context, carePlanID, patientID uuid.UUID) error {
	if _, err := s.repo.GetOpenByCarePlan(ctx, carePlanID); err == nil {
		return nil
	}
	ci := &CheckIn{
		CarePlanID:   carePlanID,
		PatientID:    patientID,
		ScheduledFor: time.Now().UTC().Add(FollowUpDelay),
	}
	return s.repo.Create(ctx, ci)
}

// Submit records a patient's response to the open check-in. Green completes
// the care plan; yellow and red raise an alert and schedule a follow-up.
func (s *Service) Submit(ctx context.Context, tenantID, carePlanID uuid.UUID, response string) (*CheckIn, error) {
	if !ValidResponse(response) {
		return nil, fmt.Errorf("invalid response: %s", response)
	}

	ci, err := s.repo.GetOpenByCarePlan(ctx, carePlanID)
	if err != nil {
		return nil, ErrNoOpenCheckIn
	}

	now := time.Now().UTC()
	ci.Response = response
	ci.RespondedAt = &now
	if err := s.repo.Update(ctx, ci); err != nil {
		return nil, err
	}

	switch response {
	case ResponseGreen:
		if s.plans != nil {
			if err := s.plans.CompleteFromCheckIn(ctx, carePlanID); err != nil {
				s.logger.Error().Err(err).Str("care_plan_id", carePlanID.String()).Msg("complete on green response failed")
			}
		}

	case ResponseYellow, ResponseRed:
		alert := &Alert{
			TenantID:   tenantID,
			CarePlanID: carePlanID,
			CheckInID:  ci.ID,
			Severity:   response,
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			return nil, fmt.Errorf("create alert: %w", err)
		}
		next := &CheckIn{
			CarePlanID:   carePlanID,
			PatientID:    ci.PatientID,
			ScheduledFor: now.Add(FollowUpDelay),
		}
		if err := s.repo.Create(ctx, next); err != nil {
			return nil, fmt.Errorf("schedule follow-up: %w", err)
		}
	}

	return ci, nil
}

func (s *Service) ListByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]*CheckIn, error) {
	return s.repo.ListByCarePlan(ctx, carePlanID)
}

func (s *Service) ListAlerts(ctx context.Context, tenantID uuid.UUID, openOnly bool, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.List(ctx, tenantID, openOnly, limit, offset)
}

func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	return s.alerts.Resolve(ctx, id, resolvedBy)
}

// Sweep claims due check-ins and delivers their reminders. Safe to invoke
// concurrently or redundantly; each claim is disjoint.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	due, err := s.repo.ClaimDue(ctx, 100)
	if err != nil {
		return 0, err
	}
	for _, d := range due {
		if d.AccessToken == nil {
			continue
		}
		delivered := s.notifier.Deliver(ctx, notify.Message{
			Email:   d.Email,
			Phone:   d.Phone,
			Subject: "How are you feeling?",
			Body:    fmt.Sprintf("Time for your wellness check-in: %s/portal/%s", s.baseURL, *d.AccessToken),
		})
		if !delivered {
			s.logger.Error().Str("check_in_id", d.ID.String()).Msg("check-in reminder delivery failed")
		}
	}
	return len(due), nil
}
