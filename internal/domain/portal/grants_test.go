package portal

import (
	"context"
	"testing"

	"github.com/careloop/careloop/internal/platform/keyedstore"
)

func newTestGrants(t *testing.T) *GrantStore {
	t.Helper()
	store := keyedstore.NewMemoryStore()
	t.Cleanup(store.Close)
	return NewGrantStore(store)
}

func TestGrants_SessionScoped(t *testing.T) {
	g := newTestGrants(t)
	ctx := context.Background()

	if err := g.Grant(ctx, "sess-a", "tok-1"); err != nil { t.Fatalf("unexpected error: %v", err) }

	ok, err := g.Granted(ctx, "sess-a", "tok-1")
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	if !ok { t.Error("granting session should see the grant") }

	ok, _ = g.Granted(ctx, "sess-b", "tok-1")
	if ok { t.Error("a different session must not inherit the grant") }
}

func TestGrants_PerToken(t *testing.T) {
	g := newTestGrants(t)
	ctx := context.Background()

	g.Grant(ctx, "sess-a", "tok-1")
	ok, _ := g.Granted(ctx, "sess-a", "tok-2")
	if ok { t.Error("grant on one token must not open another") }
}

func TestGrants_MultipleTokensPerSession(t *testing.T) {
	g := newTestGrants(t)
	ctx := context.Background()

	g.Grant(ctx, "sess-a", "tok-1")
	g.Grant(ctx, "sess-a", "tok-2")
	for _, tok := range []string{"tok-1", "tok-2"} {
		if ok, _ := g.Granted(ctx, "sess-a", tok); !ok { t.Errorf("grant for %s lost", tok) }
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	a, err := NewSessionID()
	if err != nil { t.Fatalf("unexpected error: %v", err) }
	b, _ := NewSessionID()
	if a == b { t.Error("session ids should be unique") }
	if len(a) != 32 { t.Errorf("expected 32 hex chars, got %d", len(a)) }
}
