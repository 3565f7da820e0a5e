package checkin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/platform/notify"
)

type mockRepo struct {
	store map[uuid.UUID]*CheckIn
	due   []*DueCheckIn
}

func newMockRepo() *mockRepo { return &mockRepo{store: make(map[uuid.UUID]*CheckIn)} }
func (m *mockRepo) Create(_ context.Context, ci *CheckIn) error {
	ci.ID = uuid.New(); m.store[ci.ID] = ci; return nil
}
func (m *mockRepo) GetOpenByCarePlan(_ context.Context, cpID uuid.UUID) (*CheckIn, error) {
	for _, ci := range m.store { if ci.CarePlanID == cpID && ci.RespondedAt == nil { return ci, nil } }
	return nil, fmt.Errorf("not found")
}
func (m *mockRepo) Update(_ context.Context, ci *CheckIn) error {
	if _, ok := m.store[ci.ID]; !ok { return fmt.Errorf("not found") }; m.store[ci.ID] = ci; return nil
}
func (m *mockRepo) ListByCarePlan(_ context.Context, cpID uuid.UUID) ([]*CheckIn, error) {
	var r []*CheckIn; for _, ci := range m.store { if ci.CarePlanID == cpID { r = append(r, ci) } }; return r, nil
}
func (m *mockRepo) ClaimDue(_ context.Context, limit int) ([]*DueCheckIn, error) {
	claimed := m.due; m.due = nil; return claimed, nil
}

type mockAlerts struct{ store map[uuid.UUID]*Alert }

func newMockAlerts() *mockAlerts { return &mockAlerts{store: make(map[uuid.UUID]*Alert)} }
func (m *mockAlerts) Create(_ context.Context, a *Alert) error { a.ID = uuid.New(); m.store[a.ID] = a; return nil }
func (m *mockAlerts) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	a, ok := m.store[id]; if !ok { return nil, fmt.Errorf("not found") }; return a, nil
}
func (m *mockAlerts) Resolve(_ context.Context, id uuid.UUID, resolvedBy string) error {
	a, ok := m.store[id]; if !ok { return fmt.Errorf("not found") }
	now := time.Now().UTC(); a.ResolvedBy = resolvedBy; a.ResolvedAt = &now; return nil
}
func (m *mockAlerts) List(_ context.Context, tid uuid.UUID, openOnly bool, limit, offset int) ([]*Alert, int, error) {
	var r []*Alert
	for _, a := range m.store { if a.TenantID == tid && (!openOnly || a.ResolvedAt == nil) { r = append(r, a) } }
	return r, len(r), nil
}

type mockCompleter struct{ completed []uuid.UUID; err error }

func (m *mockCompleter) CompleteFromCheckIn(_ context.Context, cpID uuid.UUID) error {
	if m.err != nil { return m.err }
	m.completed = append(m.completed, cpID); return nil
}

type mockNotifier struct{ delivered bool; messages []notify.Message }

func (m *mockNotifier) Deliver(_ context.Context, msg notify.Message) bool {
	m.messages = append(m.messages, msg); return m.delivered
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	alerts    *mockAlerts
	completer *mockCompleter
	notifier  *mockNotifier
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), alerts: newMockAlerts(), completer: &mockCompleter{}, notifier: &mockNotifier{delivered: true}}
	f.svc = NewService(f.repo, f.alerts, f.notifier, "http://localhost:8000", zerolog.Nop())
	f.svc.SetPlanCompleter(f.completer)
	return f
}

func TestScheduleFirst(t *testing.T) {
	f := newFixture()
	cpID, pID := uuid.New(), uuid.New()
	if err := f.svc.ScheduleFirst(context.Background(), cpID, pID); err != nil { t.Fatalf("unexpected error: %v", err) }

	ci, err := f.repo.GetOpenByCarePlan(context.Background(), cpID)
	if err != nil { t.Fatal("expected an open check-in") }
	wantAt := time.Now().UTC().Add(FollowUpDelay)
	if d := ci.ScheduledFor.Sub(wantAt); d < -time.Minute || d > time.Minute {
		t.Errorf("scheduled_for off target: %s", ci.ScheduledFor)
	}
}

func TestScheduleFirst_Idempotent(t *testing.T) {
	f := newFixture()
	cpID, pID := uuid.New(), uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, pID)
	f.svc.ScheduleFirst(context.Background(), cpID, pID)
	all, _ := f.repo.ListByCarePlan(context.Background(), cpID)
	if len(all) != 1 { t.Errorf("expected a single open check-in, got %d", len(all)) }
}

func TestSubmit_GreenCompletesPlan(t *testing.T) {
	f := newFixture()
	cpID, tid := uuid.New(), uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, uuid.New())

	ci, err := f.svc.Submit(context.Background(), tid, cpID, ResponseGreen)
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if ci.Response != ResponseGreen || ci.RespondedAt == nil { t.Error("response not recorded") }
	if len(f.completer.completed) != 1 || f.completer.completed[0] != cpID { t.Error("green response should complete the plan") }
	if len(f.alerts.store) != 0 { t.Error("green response must not raise an alert") }
	all, _ := f.repo.ListByCarePlan(context.Background(), cpID)
	if len(all) != 1 { t.Error("green response must not schedule a follow-up") }
}

func TestSubmit_YellowRaisesAlertAndFollowUp(t *testing.T) {
	f := newFixture()
	cpID, tid := uuid.New(), uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, uuid.New())

	ci, err := f.svc.Submit(context.Background(), tid, cpID, ResponseYellow)
	if err != nil { t.Fatalf("unexpected error: %v", err) }

	alerts, _, _ := f.alerts.List(context.Background(), tid, true, 20, 0)
	if len(alerts) != 1 { t.Fatalf("expected one alert, got %d", len(alerts)) }
	if alerts[0].Severity != ResponseYellow || alerts[0].CheckInID != ci.ID { t.Error("alert fields wrong") }

	next, err := f.repo.GetOpenByCarePlan(context.Background(), cpID)
	if err != nil { t.Fatal("expected a follow-up check-in") }
	wantAt := time.Now().UTC().Add(FollowUpDelay)
	if d := next.ScheduledFor.Sub(wantAt); d < -time.Minute || d > time.Minute {
		t.Errorf("follow-up off target: %s", next.ScheduledFor)
	}
	if len(f.completer.completed) != 0 { t.Error("yellow must not complete the plan") }
}

func TestSubmit_RedRaisesAlert(t *testing.T) {
	f := newFixture()
	cpID, tid := uuid.New(), uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, uuid.New())

	if _, err := f.svc.Submit(context.Background(), tid, cpID, ResponseRed); err != nil { t.Fatalf("unexpected error: %v", err) }
	alerts, _, _ := f.alerts.List(context.Background(), tid, true, 20, 0)
	if len(alerts) != 1 || alerts[0].Severity != ResponseRed { t.Error("expected red alert") }
}

func TestSubmit_InvalidResponse(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Submit(context.Background(), uuid.New(), uuid.New(), "purple"); err == nil { t.Fatal("expected error") }
}

func TestSubmit_NoOpenCheckIn(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Submit(context.Background(), uuid.New(), uuid.New(), ResponseGreen); !errors.Is(err, ErrNoOpenCheckIn) {
		t.Fatalf("expected ErrNoOpenCheckIn, got %v", err)
	}
}

func TestSubmit_CompleterFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture()
	f.completer.err = fmt.Errorf("plan already completed")
	cpID := uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, uuid.New())
	if _, err := f.svc.Submit(context.Background(), uuid.New(), cpID, ResponseGreen); err != nil {
		t.Fatalf("submit should succeed even when completion fails: %v", err)
	}
}

func TestResolveAlert(t *testing.T) {
	f := newFixture()
	cpID, tid := uuid.New(), uuid.New()
	f.svc.ScheduleFirst(context.Background(), cpID, uuid.New())
	f.svc.Submit(context.Background(), tid, cpID, ResponseRed)

	alerts, _, _ := f.svc.ListAlerts(context.Background(), tid, true, 20, 0)
	if err := f.svc.ResolveAlert(context.Background(), alerts[0].ID, "admin-1"); err != nil { t.Fatalf("unexpected error: %v", err) }

	open, _, _ := f.svc.ListAlerts(context.Background(), tid, true, 20, 0)
	if len(open) != 0 { t.Error("resolved alert should leave the open list") }
	all, _, _ := f.svc.ListAlerts(context.Background(), tid, false, 20, 0)
	if len(all) != 1 || all[0].ResolvedBy != "admin-1" { t.Error("resolution metadata missing") }
}

func TestSweep_DeliversClaimed(t *testing.T) {
	f := newFixture()
	tok := "tok-1"
	f.repo.due = []*DueCheckIn{
		{ID: uuid.New(), CarePlanID: uuid.New(), Email: "a@example.com", AccessToken: &tok},
		{ID: uuid.New(), CarePlanID: uuid.New(), Email: "b@example.com", AccessToken: nil},
	}
	n, err := f.svc.Sweep(context.Background())
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if n != 2 { t.Errorf("expected 2 claimed, got %d", n) }
	if len(f.notifier.messages) != 1 { t.Fatalf("expected 1 delivery (nil token skipped), got %d", len(f.notifier.messages)) }
}

func TestSweep_NothingDue(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Sweep(context.Background())
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if n != 0 { t.Errorf("expected 0, got %d", n) }
}
