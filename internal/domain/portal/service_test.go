package portal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/careloop/internal/domain/careplan"
	"github.com/careloop/careloop/internal/domain/checkin"
	"github.com/careloop/careloop/internal/domain/patient"
	"github.com/careloop/careloop/internal/platform/ai"
	"github.com/careloop/careloop/internal/platform/audit"
	"github.com/careloop/careloop/internal/platform/keyedstore"
)

type mockPlans struct{ byToken map[string]*careplan.CarePlan }

func (m *mockPlans) GetByAccessToken(_ context.Context, token string) (*careplan.CarePlan, error) {
	cp, ok := m.byToken[token]; if !ok { return nil, fmt.Errorf("not found") }; return cp, nil
}

type mockPatientLoader struct{ byID map[uuid.UUID]*patient.Patient }

func (m *mockPatientLoader) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.byID[id]; if !ok { return nil, fmt.Errorf("not found") }; return p, nil
}

type mockCheckins struct{ submitted []string }

func (m *mockCheckins) Submit(_ context.Context, tenantID, carePlanID uuid.UUID, response string) (*checkin.CheckIn, error) {
	m.submitted = append(m.submitted, response)
	return &checkin.CheckIn{ID: uuid.New(), CarePlanID: carePlanID, Response: response}, nil
}

type mockAudits struct{ entries []*audit.Entry }

func (m *mockAudits) Record(_ context.Context, e *audit.Entry) error { m.entries = append(m.entries, e); return nil }

type portalFixture struct {
	svc      *Service
	plans    *mockPlans
	checkins *mockCheckins
	audits   *mockAudits
	demo     *DemoTokenIssuer
	token    string
	plan     *careplan.CarePlan
	patient  *patient.Patient
}

func newPortalFixture(t *testing.T, v Verifier) *portalFixture {
	t.Helper()
	store := keyedstore.NewMemoryStore()
	t.Cleanup(store.Close)
	demo := NewDemoTokenIssuer()
	t.Cleanup(demo.Close)

	p := &patient.Patient{ID: uuid.New(), Name: "Ana Garcia", YearOfBirth: 1956, PIN: "4821"}
	token := "tok-test"
	cp := &careplan.CarePlan{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		PatientID:   &p.ID,
		Status:      careplan.StatusSent,
		Language:    "es",
		AccessToken: &token,
		Simplified:  &ai.PlanContent{Diagnosis: "simple"},
		Translated:  &ai.PlanContent{Diagnosis: "traducido"},
	}

	f := &portalFixture{
		plans:    &mockPlans{byToken: map[string]*careplan.CarePlan{token: cp}},
		checkins: &mockCheckins{},
		audits:   &mockAudits{},
		demo:     demo,
		token:    token,
		plan:     cp,
		patient:  p,
	}
	f.svc = NewService(f.plans, &mockPatientLoader{byID: map[uuid.UUID]*patient.Patient{p.ID: p}},
		f.checkins, v, NewAttemptLimiter(store), NewGrantStore(store), demo, f.audits, zerolog.Nop())
	return f
}

func TestVerify_SuccessGrantsSession(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	res, err := f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if !res.Verified { t.Fatal("expected verification to succeed") }

	view, sentinel, err := f.svc.Fetch(ctx, "sess-a", f.token)
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if sentinel != nil { t.Fatal("granted session should get content, not the sentinel") }
	if view.Content.Diagnosis != "traducido" { t.Error("expected translated content") }
}

func TestVerify_FailureCountsDown(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	res, err := f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1900})
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if res.Verified || res.Locked { t.Fatal("expected plain failure") }
	if res.AttemptsRemaining == nil || *res.AttemptsRemaining != 2 { t.Errorf("expected 2 attempts remaining, got %v", res.AttemptsRemaining) }
}

func TestVerify_ThirdFailureLocks(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1900})
	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1901})
	res, err := f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1902})
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if !res.Locked { t.Fatal("third failure should lock the token") }

	// Correct credentials are rejected without evaluation while locked.
	res, err = f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if !res.Locked || res.Verified { t.Error("locked token must short-circuit even on correct credentials") }

	last := f.audits.entries[len(f.audits.entries)-1]
	if last.Outcome != audit.OutcomeLocked { t.Errorf("expected locked audit outcome, got %q", last.Outcome) }
}

func TestVerify_SuccessResetsCounter(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1900})
	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1901})
	res, _ := f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
	if !res.Verified { t.Fatal("expected success on third try") }

	// Counter restarted: two more failures do not lock.
	f.svc.Verify(ctx, "sess-b", f.token, Claim{YearOfBirth: 1900})
	res, _ = f.svc.Verify(ctx, "sess-b", f.token, Claim{YearOfBirth: 1901})
	if res.Locked { t.Error("success should have reset the failure counter") }
}

func TestVerify_UnknownToken(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	_, err := f.svc.Verify(context.Background(), "sess-a", "no-such-token", Claim{YearOfBirth: 1956})
	if !errors.Is(err, ErrNotFound) { t.Fatalf("expected ErrNotFound, got %v", err) }
}

func TestVerify_RequiresFullAuthDoesNotCount(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
		if err != nil { t.Fatalf("unexpected error: %v", err) }
		if !res.RequiresFullAuth { t.Fatal("expected requires-full-auth result") }
	}
	// Incomplete submissions never consumed an attempt.
	res, _ := f.svc.Verify(ctx, "sess-a", f.token, Claim{LastName: "Garcia", YearOfBirth: 1956, PIN: "0000"})
	if res.AttemptsRemaining == nil || *res.AttemptsRemaining != 2 { t.Errorf("expected 2 attempts remaining, got %v", res.AttemptsRemaining) }
}

func TestFetch_UngrantedGetsSentinel(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	view, sentinel, err := f.svc.Fetch(context.Background(), "sess-a", f.token)
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if view != nil { t.Fatal("ungranted session must never receive content") }
	if sentinel == nil || !sentinel.RequiresVerification { t.Fatal("expected verification sentinel") }
	if sentinel.Language != "es" { t.Errorf("sentinel should carry language, got %q", sentinel.Language) }
}

func TestFetch_GrantIsSessionScoped(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
	_, sentinel, err := f.svc.Fetch(ctx, "sess-b", f.token)
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if sentinel == nil { t.Error("a different session must re-verify") }
}

func TestExchangeDemoToken(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	ctx := context.Background()

	demoToken, _, err := f.demo.Issue(f.token)
	if err != nil { t.Fatalf("unexpected error: %v", err) }

	ok, err := f.svc.ExchangeDemoToken(ctx, "sess-a", f.token, demoToken)
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if !ok { t.Fatal("valid demo token should exchange") }

	// The exchange produced a normal grant.
	view, sentinel, err := f.svc.Fetch(ctx, "sess-a", f.token)
	if err != nil || sentinel != nil || view == nil { t.Fatal("demo exchange should open the plan for the session") }

	// Single use.
	ok, _ = f.svc.ExchangeDemoToken(ctx, "sess-b", f.token, demoToken)
	if ok { t.Error("demo token must be single-use") }
}

func TestExchangeDemoToken_Invalid(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	ok, err := f.svc.ExchangeDemoToken(context.Background(), "sess-a", f.token, "bogus")
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if ok { t.Error("bogus demo token must be rejected") }
}

func TestSubmitCheckIn_RequiresGrant(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	ctx := context.Background()

	if _, err := f.svc.SubmitCheckIn(ctx, "sess-a", f.token, "green"); !errors.Is(err, ErrNotGranted) {
		t.Fatalf("expected ErrNotGranted, got %v", err)
	}

	f.svc.Verify(ctx, "sess-a", f.token, Claim{YearOfBirth: 1956})
	ci, err := f.svc.SubmitCheckIn(ctx, "sess-a", f.token, "green")
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if ci.Response != "green" { t.Errorf("unexpected response %q", ci.Response) }
	if len(f.checkins.submitted) != 1 { t.Error("check-in not forwarded") }
}

func TestVerify_AuditNeverRecordsCredentials(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	ctx := context.Background()

	f.svc.Verify(ctx, "sess-a", f.token, Claim{LastName: "Garcia", YearOfBirth: 1956, PIN: "4821"})
	for _, e := range f.audits.entries {
		if e.Detail == "4821" || e.Detail == "Garcia" { t.Errorf("credential value leaked into audit detail: %q", e.Detail) }
		if e.VerificationMode != ModeProduction { t.Errorf("expected verification mode recorded, got %q", e.VerificationMode) }
	}
}
