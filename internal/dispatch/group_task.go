package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courierhq/sendcore/internal/cooldown"
	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/pkg/logger"
)

// GroupTask is the runtime representation of one campaign's outstanding
// work: the item store plus the set of outboxes permitted to serve it.
// Created lazily on first enqueue or by startup recovery; removed from its
// tenant map once no pending or claimed items remain.
type GroupTask struct {
	campaignID string
	tenantID   string

	store  *itemStore
	ledger cooldown.Ledger

	// allowed restricts serving outboxes. Empty means any outbox owned by
	// the tenant.
	allowed map[string]struct{}

	// initMu serializes re-initialization (the "resend these items" merge)
	// against other merges. Claim traffic is not blocked by it.
	initMu sync.Mutex

	cancelled atomic.Bool

	// Aggregate counters for progress summaries, seeded from the persisted
	// campaign on construction.
	total  atomic.Int64
	sent   atomic.Int64
	failed atomic.Int64
}

// NewGroupTask loads the campaign and its items and builds the task.
// Returns ErrCampaignNotFound if the campaign no longer exists and
// ErrNoItems if nothing is eligible — both expected outcomes, reported to
// the caller rather than logged as failures.
func NewGroupTask(ctx context.Context, sc *SendingContext, campaignID string, itemIDs []string, ledger cooldown.Ledger) (*GroupTask, error) {
	c, err := sc.Repo.LoadCampaign(ctx, campaignID)
	if err != nil {
		return nil, ErrCampaignNotFound
	}

	items, err := sc.Repo.LoadItems(ctx, campaignID, itemIDs)
	if err != nil {
		return nil, err
	}

	resurrect := len(itemIDs) > 0
	store := newItemStore(items, resurrect)
	if store.unsettled.Load() == 0 {
		return nil, ErrNoItems
	}

	g := &GroupTask{
		campaignID: campaignID,
		tenantID:   c.TenantID,
		store:      store,
		ledger:     ledger,
		allowed:    make(map[string]struct{}, len(c.OutboxIDs)),
	}
	for _, id := range c.OutboxIDs {
		g.allowed[id] = struct{}{}
	}
	g.total.Store(int64(c.TotalCount))
	if c.TotalCount == 0 {
		g.total.Store(int64(store.size()))
	}
	g.sent.Store(int64(c.SentCount))
	g.failed.Store(int64(c.FailedCount))
	return g, nil
}

// CampaignID returns the campaign this task serves.
func (g *GroupTask) CampaignID() string { return g.campaignID }

// TenantID returns the owning tenant.
func (g *GroupTask) TenantID() string { return g.tenantID }

// InitItems re-initializes an existing task with a (possibly narrower)
// item selection, without discarding in-flight state for the rest of the
// campaign. This is the resume / "retry these recipients" path.
func (g *GroupTask) InitItems(ctx context.Context, sc *SendingContext, itemIDs []string) error {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	items, err := sc.Repo.LoadItems(ctx, g.campaignID, itemIDs)
	if err != nil {
		return err
	}
	resurrect := len(itemIDs) > 0
	for i := range items {
		g.store.admit(items[i], resurrect)
	}
	g.cancelled.Store(false)
	if g.store.unsettled.Load() == 0 {
		return ErrNoItems
	}
	return nil
}

// Cancel stops the task from yielding further claims. Items already
// claimed are allowed to finish in flight.
func (g *GroupTask) Cancel() {
	g.cancelled.Store(true)
}

// Exhausted reports whether no pending or claimed items remain.
func (g *GroupTask) Exhausted() bool {
	return g.store.exhausted()
}

// servedBy reports whether the candidate outbox is permitted to serve this
// campaign at all.
func (g *GroupTask) servedBy(o domain.Outbox) bool {
	if o.TenantID != g.tenantID {
		return false
	}
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[o.ID]
	return ok
}

// eligible is the per-item admission rule shared by TryClaim and
// WouldMatch: the recipient must not be cooling down on this tenant.
// Ledger errors fail open — a broken cooldown backend must not stall all
// sending — but are logged.
func (g *GroupTask) eligible(ctx context.Context, o domain.Outbox) func(domain.SendingItem) bool {
	return func(it domain.SendingItem) bool {
		if o.CooldownHours <= 0 {
			return true
		}
		cooling, err := g.ledger.InCooldown(ctx, g.tenantID, it.Recipient)
		if err != nil {
			logger.Warn("cooldown check failed, allowing item",
				"campaign_id", g.campaignID, "recipient", it.Recipient, "error", err.Error())
			return true
		}
		return !cooling
	}
}

// TryClaim scans pending items in insertion order and atomically claims the
// first one the candidate outbox may serve. Returns nil when nothing
// qualifies.
func (g *GroupTask) TryClaim(ctx context.Context, o domain.Outbox) *domain.SendingItem {
	if g.cancelled.Load() || ctx.Err() != nil {
		return nil
	}
	if !g.servedBy(o) {
		return nil
	}
	it, ok := g.store.tryClaim(g.eligible(ctx, o))
	if !ok {
		return nil
	}
	return &it
}

// WouldMatch is the cheap, non-mutating twin of TryClaim: could any pending
// item here be served by this outbox.
func (g *GroupTask) WouldMatch(ctx context.Context, o domain.Outbox) bool {
	if g.cancelled.Load() {
		return false
	}
	if !g.servedBy(o) {
		return false
	}
	return g.store.anyEligible(g.eligible(ctx, o))
}

// ReportOutcome settles a delivery attempt for a claimed item and persists
// the resulting state. Persistence failures are logged, never propagated:
// the in-memory state is authoritative until the next write succeeds.
// Returns the current progress summary and whether the task is done.
func (g *GroupTask) ReportOutcome(ctx context.Context, sc *SendingContext, o domain.Outbox, item domain.SendingItem, out domain.SendOutcome) (domain.ProgressSummary, bool) {
	switch {
	case out.OK:
		if snap, ok := g.store.settleSent(item.ID); ok {
			now := time.Now()
			snap.SentAt = &now
			g.sent.Add(1)
			g.persistItem(ctx, sc, snap)
			g.persistProgress(ctx, sc, 1, 0)
			g.markCooldown(ctx, o, item.Recipient)
		}

	case out.Kind.Transient():
		snap, requeued, ok := g.store.requeue(item.ID, out.Message)
		if ok {
			g.persistItem(ctx, sc, snap)
			if !requeued {
				g.failed.Add(1)
				g.persistProgress(ctx, sc, 0, 1)
			}
		}

	default:
		if snap, ok := g.store.settleFailed(item.ID, out.Message); ok {
			g.failed.Add(1)
			g.persistItem(ctx, sc, snap)
			g.persistProgress(ctx, sc, 0, 1)
		}
	}

	done := g.store.exhausted()
	return g.Summary(done), done
}

// Summary builds the progress payload pushed to the event sink.
func (g *GroupTask) Summary(done bool) domain.ProgressSummary {
	return domain.ProgressSummary{
		CampaignID:  g.campaignID,
		TotalCount:  int(g.total.Load()),
		SentCount:   int(g.sent.Load()),
		FailedCount: int(g.failed.Load()),
		Done:        done,
	}
}

func (g *GroupTask) persistItem(ctx context.Context, sc *SendingContext, it domain.SendingItem) {
	if err := sc.Repo.PersistItemState(ctx, &it); err != nil {
		logger.Error("persist item state failed",
			"campaign_id", g.campaignID, "item_id", it.ID, "error", err.Error())
	}
}

func (g *GroupTask) persistProgress(ctx context.Context, sc *SendingContext, sent, failed int) {
	if err := sc.Repo.AddCampaignProgress(ctx, g.campaignID, sent, failed); err != nil {
		logger.Error("persist campaign progress failed",
			"campaign_id", g.campaignID, "error", err.Error())
	}
}

func (g *GroupTask) markCooldown(ctx context.Context, o domain.Outbox, recipient string) {
	if o.CooldownHours <= 0 {
		return
	}
	window := time.Duration(o.CooldownHours) * time.Hour
	if err := g.ledger.MarkSent(ctx, g.tenantID, recipient, window); err != nil {
		logger.Warn("cooldown mark failed",
			"campaign_id", g.campaignID, "recipient", recipient, "error", err.Error())
	}
}
