package sending

import (
	"context"

	"github.com/courierhq/sendcore/internal/domain"
)

// Repository is the persistence contract the scheduler consumes.
// Implementations must be safe for concurrent use.
type Repository interface {
	// LoadCampaign returns a single campaign. Returns ErrNotFound if it
	// doesn't exist.
	LoadCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// LoadInProgressCampaigns returns campaigns left in sending state by a
	// prior run, for startup recovery.
	LoadInProgressCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// LoadOutboxesForTenant returns all configured outboxes for a tenant.
	LoadOutboxesForTenant(ctx context.Context, tenantID string) ([]domain.Outbox, error)

	// LoadItems returns a campaign's undelivered items in insertion order.
	// If itemIDs is non-empty, only those items are returned. Items found
	// in claimed state are returned as pending: a claim that was never
	// reported belongs to a worker that no longer exists.
	LoadItems(ctx context.Context, campaignID string, itemIDs []string) ([]domain.SendingItem, error)

	// PersistItemState writes an item's current lifecycle state.
	PersistItemState(ctx context.Context, item *domain.SendingItem) error

	// PersistOutboxCounters writes an outbox's quota counters and validity.
	PersistOutboxCounters(ctx context.Context, o *domain.Outbox) error

	// AddCampaignProgress bumps a campaign's aggregate sent/failed counters.
	AddCampaignProgress(ctx context.Context, campaignID string, sentDelta, failedDelta int) error

	// UpdateCampaignStatus transitions a campaign's status.
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error
}

// SendRequest carries everything an executor needs for one delivery attempt.
type SendRequest struct {
	Outbox domain.Outbox
	Item   domain.SendingItem

	// SecretKeys unlock the outbox credentials at send time. The scheduler
	// passes them through untouched; decryption is the executor's problem.
	SecretKeys []string
}

// DeliveryExecutor performs the actual transport call. Implementations must
// be safe for concurrent use and enforce their own per-attempt timeout.
type DeliveryExecutor interface {
	Send(ctx context.Context, req SendRequest) domain.SendOutcome
}

// EventSink receives best-effort progress pushes. Implementations must never
// block the caller for long and must never fail a send: errors are the
// sink's to swallow.
type EventSink interface {
	NotifyProgress(tenantID, campaignID string, summary domain.ProgressSummary)
}
