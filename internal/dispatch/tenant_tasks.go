package dispatch

import (
	"context"
	"sync"

	"github.com/courierhq/sendcore/internal/cooldown"
	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/pkg/logger"
)

// TenantTaskMap is one tenant's active campaigns, in registration order.
// That order is the fairness policy: when two campaigns both have eligible
// work for an outbox, the one enqueued first is served first.
type TenantTaskMap struct {
	tenantID string
	ledger   cooldown.Ledger

	mu    sync.Mutex
	order []string
	tasks map[string]*GroupTask
}

// NewTenantTaskMap creates an empty map for one tenant.
func NewTenantTaskMap(tenantID string, ledger cooldown.Ledger) *TenantTaskMap {
	return &TenantTaskMap{
		tenantID: tenantID,
		ledger:   ledger,
		tasks:    make(map[string]*GroupTask),
	}
}

// TenantID returns the owning tenant.
func (m *TenantTaskMap) TenantID() string { return m.tenantID }

// AddCampaign registers a campaign for sending. If a GroupTask already
// exists it is reused and re-initialized with the given item selection;
// otherwise a new task is constructed and inserted. Returns false when
// construction fails (campaign gone, or nothing to send).
func (m *TenantTaskMap) AddCampaign(ctx context.Context, sc *SendingContext, campaignID string, itemIDs []string) bool {
	m.mu.Lock()
	existing := m.tasks[campaignID]
	m.mu.Unlock()

	if existing != nil {
		if err := existing.InitItems(ctx, sc, itemIDs); err != nil {
			logger.Info("campaign re-init yielded no work",
				"tenant_id", m.tenantID, "campaign_id", campaignID, "reason", err.Error())
			return false
		}
		return true
	}

	task, err := NewGroupTask(ctx, sc, campaignID, itemIDs, m.ledger)
	if err != nil {
		logger.Info("campaign not enqueued",
			"tenant_id", m.tenantID, "campaign_id", campaignID, "reason", err.Error())
		return false
	}

	m.mu.Lock()
	if raced := m.tasks[campaignID]; raced != nil {
		m.mu.Unlock()
		// Another caller built the task while we were loading; merge into
		// theirs instead of replacing in-flight state.
		return raced.InitItems(ctx, sc, itemIDs) == nil
	}
	m.tasks[campaignID] = task
	m.order = append(m.order, campaignID)
	m.mu.Unlock()
	return true
}

// snapshot returns the tasks in registration order.
func (m *TenantTaskMap) snapshot() []*GroupTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GroupTask, 0, len(m.order))
	for _, id := range m.order {
		if t, ok := m.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// NextItemFor walks the tenant's campaigns in registration order and
// returns the first claim that succeeds, or nil if every task refuses.
func (m *TenantTaskMap) NextItemFor(ctx context.Context, sc *SendingContext, o domain.Outbox) *domain.SendingItem {
	for _, task := range m.snapshot() {
		if item := task.TryClaim(ctx, o); item != nil {
			return item
		}
	}
	return nil
}

// CouldServe reports whether any owned campaign has eligible work for the
// outbox. Used as a cheap pre-check before the full claim scan.
func (m *TenantTaskMap) CouldServe(ctx context.Context, o domain.Outbox) bool {
	for _, task := range m.snapshot() {
		if task.WouldMatch(ctx, o) {
			return true
		}
	}
	return false
}

// Task returns the GroupTask for a campaign, if active.
func (m *TenantTaskMap) Task(campaignID string) *GroupTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[campaignID]
}

// Remove drops a campaign's task, keeping registration order intact for
// the rest.
func (m *TenantTaskMap) Remove(campaignID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[campaignID]; !ok {
		return
	}
	delete(m.tasks, campaignID)
	for i, id := range m.order {
		if id == campaignID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of active campaigns.
func (m *TenantTaskMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
