package portal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/careloop/careloop/internal/platform/keyedstore"
)

// SessionTTL bounds how long a portal session's grants survive. Each new
// grant refreshes the window.
const SessionTTL = 12 * time.Hour

// GrantStore binds successful verifications to the requesting session:
// session id to the set of access-tokens it may read. Scoping by session
// means verifying in one browser does not open the document for a different
// holder of the same link.
type GrantStore struct {
	store keyedstore.Store
}

func NewGrantStore(store keyedstore.Store) *GrantStore {
	return &GrantStore{store: store}
}

func grantsKey(sessionID string) string { return "grants:" + sessionID }

// Grant records that the session has verified the token. The write is
// synchronous; on return the grant is visible to the next request.
func (g *GrantStore) Grant(ctx context.Context, sessionID, accessToken string) error {
	if err := g.store.AddToSet(ctx, grantsKey(sessionID), accessToken, SessionTTL); err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	return nil
}

// Granted reports whether the session has verified the token.
func (g *GrantStore) Granted(ctx context.Context, sessionID, accessToken string) (bool, error) {
	ok, err := g.store.InSet(ctx, grantsKey(sessionID), accessToken)
	if err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return ok, nil
}

// NewSessionID returns a random 128-bit session identifier.
func NewSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
