package portal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DemoTokenTTL is the fixed lifetime of a clinician preview token.
const DemoTokenTTL = 5 * time.Minute

type demoGrant struct {
	accessToken string
	expiresAt   time.Time
}

// DemoTokenIssuer hands out short-lived tokens binding a clinician session
// to a care plan's access-token, bypassing patient identity verification.
// State is process-local; a restart simply clears in-flight previews.
type DemoTokenIssuer struct {
	mu     sync.Mutex
	tokens map[string]demoGrant
	done   chan struct{}
	now    func() time.Time
}

func NewDemoTokenIssuer() *DemoTokenIssuer {
	i := &DemoTokenIssuer{
		tokens: make(map[string]demoGrant),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go i.sweepLoop()
	return i
}

// Close stops the background sweep.
func (i *DemoTokenIssuer) Close() {
	close(i.done)
}

// Issue creates a demo token bound to the given access-token.
func (i *DemoTokenIssuer) Issue(accessToken string) (string, time.Time, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("generate demo token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	expiresAt := i.now().Add(DemoTokenTTL)

	i.mu.Lock()
	i.tokens[token] = demoGrant{accessToken: accessToken, expiresAt: expiresAt}
	i.mu.Unlock()

	return token, expiresAt, nil
}

// Validate checks that the demo token exists, has not expired, and is bound
// to the requested access-token, compared in constant time. A valid token is
// consumed; the session grant it produces carries access from there.
func (i *DemoTokenIssuer) Validate(demoToken, accessToken string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	grant, ok := i.tokens[demoToken]
	if !ok {
		return false
	}
	if !i.now().Before(grant.expiresAt) {
		delete(i.tokens, demoToken)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(grant.accessToken), []byte(accessToken)) != 1 {
		return false
	}

	delete(i.tokens, demoToken)
	return true
}

// sweepLoop evicts expired entries to bound memory growth.
func (i *DemoTokenIssuer) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := i.now()
			i.mu.Lock()
			for token, grant := range i.tokens {
				if !now.Before(grant.expiresAt) {
					delete(i.tokens, token)
				}
			}
			i.mu.Unlock()
		case <-i.done:
			return
		}
	}
}
