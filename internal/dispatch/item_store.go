package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/courierhq/sendcore/internal/domain"
)

// Item slot states. Kept as an int32 so state transitions are single CAS
// operations.
const (
	slotPending int32 = iota
	slotClaimed
	slotSent
	slotFailed
	slotSkipped
)

// slot is one recipient's runtime record. The identity fields in item never
// change after construction; state and attempts are atomics; lastError is
// written only by the worker currently holding the claim.
type slot struct {
	item     domain.SendingItem
	state    atomic.Int32
	attempts atomic.Int32

	errMu     sync.Mutex
	lastError string
}

func (s *slot) budget() int32 {
	return int32(s.item.RetryBudget())
}

// snapshot materializes the slot as a domain item.
func (s *slot) snapshot() domain.SendingItem {
	it := s.item
	it.Attempts = int(s.attempts.Load())
	switch s.state.Load() {
	case slotPending:
		it.Status = domain.ItemPending
	case slotClaimed:
		it.Status = domain.ItemClaimed
	case slotSent:
		it.Status = domain.ItemSent
	case slotFailed:
		it.Status = domain.ItemFailed
	case slotSkipped:
		it.Status = domain.ItemSkipped
	}
	s.errMu.Lock()
	it.LastError = s.lastError
	s.errMu.Unlock()
	return it
}

// itemStore is one campaign's ordered queue of sending items. The order
// slice is append-only under mu; claim transitions run lock-free against
// the slots themselves.
//
// A retried item keeps its original queue position: the slot never moves,
// so requeueing after a transient failure cannot starve older items.
type itemStore struct {
	mu    sync.RWMutex
	order []*slot
	index map[string]*slot

	// unsettled counts slots in pending or claimed state. The store (and
	// its group task) is exhausted when this reaches zero.
	unsettled atomic.Int64
}

// newItemStore builds a store from persisted items. Items stored as claimed
// are admitted as pending: a claim that was never reported belongs to a
// worker that no longer exists. Failed and skipped items are admitted in
// their terminal state unless resurrect is set (the "resend selected
// failures" path), which resets them to pending with a fresh retry budget.
func newItemStore(items []domain.SendingItem, resurrect bool) *itemStore {
	st := &itemStore{index: make(map[string]*slot, len(items))}
	for i := range items {
		st.admit(items[i], resurrect)
	}
	return st
}

// admit inserts one item. Caller must not hold mu.
func (st *itemStore) admit(it domain.SendingItem, resurrect bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.index[it.ID]; ok {
		if resurrect {
			st.resurrect(existing)
		}
		return
	}

	s := &slot{item: it}
	s.attempts.Store(int32(it.Attempts))
	s.errMu.Lock()
	s.lastError = it.LastError
	s.errMu.Unlock()

	switch it.Status {
	case domain.ItemPending, domain.ItemClaimed:
		s.state.Store(slotPending)
		st.unsettled.Add(1)
	case domain.ItemSent:
		s.state.Store(slotSent)
	case domain.ItemSkipped:
		if resurrect {
			s.state.Store(slotPending)
			s.attempts.Store(0)
			st.unsettled.Add(1)
		} else {
			s.state.Store(slotSkipped)
		}
	case domain.ItemFailed:
		if resurrect {
			s.state.Store(slotPending)
			s.attempts.Store(0)
			st.unsettled.Add(1)
		} else {
			s.state.Store(slotFailed)
		}
	}
	st.order = append(st.order, s)
	st.index[it.ID] = s
}

// resurrect resets a settled slot back to pending. Caller holds mu.
func (st *itemStore) resurrect(s *slot) {
	for {
		cur := s.state.Load()
		if cur != slotFailed && cur != slotSkipped {
			return
		}
		if s.state.CompareAndSwap(cur, slotPending) {
			s.attempts.Store(0)
			st.unsettled.Add(1)
			return
		}
	}
}

// tryClaim scans pending slots in insertion order and claims the first one
// the eligibility predicate accepts. The Pending→Claimed transition is a
// single CAS per slot; a lost race just moves the scan to the next slot.
func (st *itemStore) tryClaim(eligible func(domain.SendingItem) bool) (domain.SendingItem, bool) {
	st.mu.RLock()
	order := st.order
	st.mu.RUnlock()

	for _, s := range order {
		if s.state.Load() != slotPending {
			continue
		}
		if !eligible(s.item) {
			continue
		}
		if !s.state.CompareAndSwap(slotPending, slotClaimed) {
			continue // lost the race, keep scanning
		}
		it := s.item
		it.Status = domain.ItemClaimed
		it.Attempts = int(s.attempts.Load())
		return it, true
	}
	return domain.SendingItem{}, false
}

// anyEligible is the non-mutating twin of tryClaim.
func (st *itemStore) anyEligible(eligible func(domain.SendingItem) bool) bool {
	st.mu.RLock()
	order := st.order
	st.mu.RUnlock()

	for _, s := range order {
		if s.state.Load() == slotPending && eligible(s.item) {
			return true
		}
	}
	return false
}

// settleSent moves a claimed slot to sent. Returns the updated snapshot.
func (st *itemStore) settleSent(id string) (domain.SendingItem, bool) {
	s := st.lookup(id)
	if s == nil || !s.state.CompareAndSwap(slotClaimed, slotSent) {
		return domain.SendingItem{}, false
	}
	st.unsettled.Add(-1)
	return s.snapshot(), true
}

// requeue returns a claimed slot to pending after a transient failure,
// consuming one attempt. If the retry budget is exhausted the slot settles
// as failed instead; the bool reports whether it was requeued.
func (st *itemStore) requeue(id, errMsg string) (domain.SendingItem, bool, bool) {
	s := st.lookup(id)
	if s == nil || s.state.Load() != slotClaimed {
		return domain.SendingItem{}, false, false
	}
	attempts := s.attempts.Add(1)
	s.errMu.Lock()
	s.lastError = errMsg
	s.errMu.Unlock()

	if attempts >= s.budget() {
		if s.state.CompareAndSwap(slotClaimed, slotFailed) {
			st.unsettled.Add(-1)
		}
		return s.snapshot(), false, true
	}
	s.state.CompareAndSwap(slotClaimed, slotPending)
	return s.snapshot(), true, true
}

// settleFailed moves a claimed slot straight to failed (permanent failure).
func (st *itemStore) settleFailed(id, errMsg string) (domain.SendingItem, bool) {
	s := st.lookup(id)
	if s == nil {
		return domain.SendingItem{}, false
	}
	s.attempts.Add(1)
	s.errMu.Lock()
	s.lastError = errMsg
	s.errMu.Unlock()
	if !s.state.CompareAndSwap(slotClaimed, slotFailed) {
		return domain.SendingItem{}, false
	}
	st.unsettled.Add(-1)
	return s.snapshot(), true
}

func (st *itemStore) lookup(id string) *slot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.index[id]
}

// exhausted reports whether no pending or claimed items remain.
func (st *itemStore) exhausted() bool {
	return st.unsettled.Load() == 0
}

func (st *itemStore) size() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.order)
}
