// Package cooldown tracks when a recipient was last contacted by a tenant's
// outboxes, enforcing the minimum re-contact window. The ledger is scoped
// per tenant: a send from any of a tenant's outboxes cools the recipient
// down for all of them.
package cooldown

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Ledger is the cooldown contract consumed by the dispatch layer.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// InCooldown reports whether the recipient is still inside the
	// re-contact window for this tenant.
	InCooldown(ctx context.Context, tenantID, recipient string) (bool, error)

	// MarkSent records a completed send, opening a cooldown window of the
	// given length. A zero window is a no-op.
	MarkSent(ctx context.Context, tenantID, recipient string, window time.Duration) error
}

func normalize(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// MemoryLedger is the in-process fallback used when Redis is not
// configured. Expired entries are purged lazily on read and in bulk once
// the map grows past a threshold.
type MemoryLedger struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	sweepAt int

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		expiry:  make(map[string]time.Time),
		sweepAt: 4096,
		now:     time.Now,
	}
}

func (m *MemoryLedger) key(tenantID, recipient string) string {
	return tenantID + "|" + normalize(recipient)
}

// InCooldown implements Ledger.
func (m *MemoryLedger) InCooldown(_ context.Context, tenantID, recipient string) (bool, error) {
	k := m.key(tenantID, recipient)
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.expiry[k]
	if !ok {
		return false, nil
	}
	if m.now().After(until) {
		delete(m.expiry, k)
		return false, nil
	}
	return true, nil
}

// MarkSent implements Ledger.
func (m *MemoryLedger) MarkSent(_ context.Context, tenantID, recipient string, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.expiry) >= m.sweepAt {
		m.sweep()
	}
	m.expiry[m.key(tenantID, recipient)] = m.now().Add(window)
	return nil
}

// sweep removes expired entries. Caller holds the lock.
func (m *MemoryLedger) sweep() {
	now := m.now()
	for k, until := range m.expiry {
		if now.After(until) {
			delete(m.expiry, k)
		}
	}
}
