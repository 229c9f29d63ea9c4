package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/courierhq/sendcore/internal/cooldown"
	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/outbox"
	"github.com/courierhq/sendcore/internal/pkg/logger"
	"github.com/courierhq/sendcore/internal/service/sending"
)

// Orchestrator is the process-wide registry of tenant task maps and the
// sole entry point sender workers use. It knows nothing about transport or
// persistence formats; those arrive through the SendingContext and the
// injected collaborators.
//
// Created once at process start and passed explicitly to whoever needs it.
type Orchestrator struct {
	registry *outbox.Registry
	ledger   cooldown.Ledger
	sink     sending.EventSink

	mu      sync.RWMutex
	tenants map[string]*TenantTaskMap
}

// NewOrchestrator wires the orchestrator to its long-lived collaborators.
func NewOrchestrator(registry *outbox.Registry, ledger cooldown.Ledger, sink sending.EventSink) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		ledger:   ledger,
		sink:     sink,
		tenants:  make(map[string]*TenantTaskMap),
	}
}

// Registry exposes the outbox registry for callers that report outcomes or
// serve status endpoints.
func (d *Orchestrator) Registry() *outbox.Registry { return d.registry }

// tenantMap returns the tenant's task map, creating it on first use.
func (d *Orchestrator) tenantMap(tenantID string) *TenantTaskMap {
	d.mu.RLock()
	m := d.tenants[tenantID]
	d.mu.RUnlock()
	if m != nil {
		return m
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if m = d.tenants[tenantID]; m == nil {
		m = NewTenantTaskMap(tenantID, d.ledger)
		d.tenants[tenantID] = m
	}
	return m
}

// EnqueueCampaign registers (or resumes) a campaign for sending. The
// tenant's outboxes are refreshed into the registry on the way so matching
// always sees current quota and cooldown configuration. Returns false when
// there is nothing to send.
func (d *Orchestrator) EnqueueCampaign(ctx context.Context, sc *SendingContext, tenantID, campaignID string, itemIDs []string) bool {
	boxes, err := sc.Repo.LoadOutboxesForTenant(ctx, tenantID)
	if err != nil {
		logger.Error("load tenant outboxes failed", "tenant_id", tenantID, "error", err.Error())
		return false
	}
	for i := range boxes {
		d.registry.Upsert(boxes[i])
	}

	if !d.tenantMap(tenantID).AddCampaign(ctx, sc, campaignID, itemIDs) {
		return false
	}

	if err := sc.Repo.UpdateCampaignStatus(ctx, campaignID, domain.CampaignSending); err != nil {
		logger.Warn("mark campaign sending failed", "campaign_id", campaignID, "error", err.Error())
	}
	logger.Info("campaign enqueued", "tenant_id", tenantID, "campaign_id", campaignID,
		"selected_items", len(itemIDs))
	return true
}

// ClaimNext returns one eligible item for the outbox, or nil when nothing
// matches. Capacity is reserved optimistically before the claim scan and
// compensated when the scan comes back empty, so the quota counter can
// never pass the limit no matter how many workers race.
func (d *Orchestrator) ClaimNext(ctx context.Context, sc *SendingContext, outboxID string) *domain.SendingItem {
	o, ok := d.registry.Get(outboxID)
	if !ok {
		return nil
	}

	d.mu.RLock()
	m := d.tenants[o.TenantID]
	d.mu.RUnlock()
	if m == nil {
		return nil
	}

	// Cheap demand probe before paying for a reservation and a full scan.
	if !m.CouldServe(ctx, o) {
		return nil
	}

	if !d.registry.ReserveCapacity(outboxID) {
		return nil
	}
	item := m.NextItemFor(ctx, sc, o)
	if item == nil {
		d.registry.ReleaseCapacity(outboxID)
		return nil
	}
	return item
}

// ReportOutcome settles a delivery attempt: outbox health and quota first,
// then item state, then a best-effort progress push. A failed delivery
// releases the capacity reserved at claim time.
func (d *Orchestrator) ReportOutcome(ctx context.Context, sc *SendingContext, outboxID string, item domain.SendingItem, out domain.SendOutcome) {
	d.registry.RecordOutcome(outboxID, out.OK, out.Kind)
	if !out.OK {
		d.registry.ReleaseCapacity(outboxID)
	}
	o, known := d.registry.Get(outboxID)
	if known {
		if err := sc.Repo.PersistOutboxCounters(ctx, &o); err != nil {
			logger.Warn("persist outbox counters failed", "outbox_id", outboxID, "error", err.Error())
		}
	}

	// Read-only lookup: an outcome must never create a task map, least of
	// all for an outbox the registry no longer knows.
	var task *GroupTask
	d.mu.RLock()
	m := d.tenants[o.TenantID]
	d.mu.RUnlock()
	if m != nil {
		task = m.Task(item.CampaignID)
	}
	if task == nil {
		// Campaign was cancelled or completed while the delivery was in
		// flight; settle the item directly so nothing is left claimed.
		if out.OK {
			now := time.Now()
			item.Status = domain.ItemSent
			item.SentAt = &now
		} else {
			item.Status = domain.ItemFailed
			item.Attempts++
			item.LastError = out.Message
		}
		if err := sc.Repo.PersistItemState(ctx, &item); err != nil {
			logger.Error("persist orphan item failed", "item_id", item.ID, "error", err.Error())
		}
		return
	}

	summary, done := task.ReportOutcome(ctx, sc, o, item, out)
	d.sink.NotifyProgress(o.TenantID, item.CampaignID, summary)

	if done {
		m.Remove(item.CampaignID)
		if err := sc.Repo.UpdateCampaignStatus(ctx, item.CampaignID, domain.CampaignSent); err != nil {
			logger.Warn("mark campaign sent failed", "campaign_id", item.CampaignID, "error", err.Error())
		}
		logger.Info("campaign finished", "tenant_id", o.TenantID, "campaign_id", item.CampaignID,
			"sent", summary.SentCount, "failed", summary.FailedCount)
	}
}

// CancelCampaign stops a campaign from yielding further claims. In-flight
// deliveries finish and report normally. Returns false if the campaign has
// no active task.
func (d *Orchestrator) CancelCampaign(ctx context.Context, sc *SendingContext, tenantID, campaignID string) bool {
	d.mu.RLock()
	m := d.tenants[tenantID]
	d.mu.RUnlock()
	if m == nil {
		return false
	}
	task := m.Task(campaignID)
	if task == nil {
		return false
	}
	task.Cancel()
	m.Remove(campaignID)
	if err := sc.Repo.UpdateCampaignStatus(ctx, campaignID, domain.CampaignCancelled); err != nil {
		logger.Warn("mark campaign cancelled failed", "campaign_id", campaignID, "error", err.Error())
	}
	logger.Info("campaign cancelled", "tenant_id", tenantID, "campaign_id", campaignID)
	return true
}

// PauseCampaign halts claiming without discarding progress: the campaign is
// marked paused instead of cancelled, and a later send request resumes from
// the items still undelivered. In-flight deliveries finish and report
// normally. Returns false if the campaign has no active task.
func (d *Orchestrator) PauseCampaign(ctx context.Context, sc *SendingContext, tenantID, campaignID string) bool {
	d.mu.RLock()
	m := d.tenants[tenantID]
	d.mu.RUnlock()
	if m == nil {
		return false
	}
	task := m.Task(campaignID)
	if task == nil {
		return false
	}
	task.Cancel()
	m.Remove(campaignID)
	if err := sc.Repo.UpdateCampaignStatus(ctx, campaignID, domain.CampaignPaused); err != nil {
		logger.Warn("mark campaign paused failed", "campaign_id", campaignID, "error", err.Error())
	}
	logger.Info("campaign paused", "tenant_id", tenantID, "campaign_id", campaignID)
	return true
}

// ActiveCampaigns returns the number of live group tasks for a tenant.
func (d *Orchestrator) ActiveCampaigns(tenantID string) int {
	d.mu.RLock()
	m := d.tenants[tenantID]
	d.mu.RUnlock()
	if m == nil {
		return 0
	}
	return m.Len()
}
