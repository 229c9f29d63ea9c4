// Package outbox tracks per-account sending state: daily quota counters,
// validity, and cooldown policy. The registry is the backpressure point of
// the whole scheduler: once an outbox hits its daily limit, nothing more is
// claimable against it until the next reset.
package outbox

import (
	"sync"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/pkg/logger"
)

// InvalidateAfterFailures is how many consecutive permanent transport
// failures (auth, TLS) it takes to mark an outbox invalid.
const InvalidateAfterFailures = 3

// entry wraps one outbox with its own lock so reservations on different
// outboxes never contend.
type entry struct {
	mu sync.Mutex
	o  domain.Outbox

	// consecutive permanent failures since the last success
	permFails int
}

// Registry holds the sending state of every known outbox. Safe for
// concurrent use by all sender workers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// byTenant preserves registration order per tenant.
	byTenant map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		byTenant: make(map[string][]string),
	}
}

// Upsert registers an outbox or refreshes its configuration. Counters of an
// already-registered outbox are kept; configuration (limit, cooldown,
// validity) is taken from the argument.
func (r *Registry) Upsert(o domain.Outbox) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[o.ID]; ok {
		e.mu.Lock()
		sent := e.o.SentToday
		e.o = o
		e.o.SentToday = sent
		e.mu.Unlock()
		return
	}
	r.entries[o.ID] = &entry{o: o}
	r.byTenant[o.TenantID] = append(r.byTenant[o.TenantID], o.ID)
}

// Get returns a snapshot of one outbox.
func (r *Registry) Get(id string) (domain.Outbox, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Outbox{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.o, true
}

// TenantOf resolves an outbox's owning tenant.
func (r *Registry) TenantOf(id string) (string, bool) {
	o, ok := r.Get(id)
	if !ok {
		return "", false
	}
	return o.TenantID, true
}

// ListForTenant returns snapshots of a tenant's outboxes in registration
// order.
func (r *Registry) ListForTenant(tenantID string) []domain.Outbox {
	r.mu.RLock()
	ids := append([]string(nil), r.byTenant[tenantID]...)
	r.mu.RUnlock()

	out := make([]domain.Outbox, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.Get(id); ok {
			out = append(out, o)
		}
	}
	return out
}

// ReserveCapacity atomically checks validity and remaining daily quota and,
// if both pass, increments the counter. The increment is a provisional
// reservation: callers that fail to turn it into a delivered item must call
// ReleaseCapacity.
func (r *Registry) ReserveCapacity(id string) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.o.Valid || !e.o.HasCapacity() {
		return false
	}
	e.o.SentToday++
	return true
}

// ReleaseCapacity compensates a reservation whose delivery never happened.
func (r *Registry) ReleaseCapacity(id string) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.o.SentToday > 0 {
		e.o.SentToday--
	}
}

// RecordOutcome updates outbox health from a delivery outcome. Transient
// failures never affect validity; repeated permanent failures invalidate
// the outbox.
func (r *Registry) RecordOutcome(id string, ok bool, kind domain.ErrorKind) {
	r.mu.RLock()
	e, found := r.entries[id]
	r.mu.RUnlock()
	if !found {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ok {
		e.permFails = 0
		return
	}
	if !kind.InvalidatesOutbox() {
		return
	}
	e.permFails++
	if e.permFails >= InvalidateAfterFailures && e.o.Valid {
		e.o.Valid = false
		logger.Warn("outbox invalidated after repeated permanent failures",
			"outbox_id", id, "kind", string(kind), "failures", e.permFails)
	}
}

// ResetDailyCounters zeroes every outbox's daily counter. Idempotent: a
// second call before the next boundary simply re-zeros.
func (r *Registry) ResetDailyCounters() {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		e.o.SentToday = 0
		e.mu.Unlock()
	}
	logger.Info("daily outbox counters reset", "outboxes", len(entries))
}

// Snapshot returns a copy of every registered outbox.
func (r *Registry) Snapshot() []domain.Outbox {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.Outbox, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.o)
		e.mu.Unlock()
	}
	return out
}
