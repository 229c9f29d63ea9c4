package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign is a batch of recipients to be emailed together. Recipient-level
// state lives in SendingItem; the campaign carries aggregate counters only.
type Campaign struct {
	ID       string         `json:"id" db:"id"`
	TenantID string         `json:"tenant_id" db:"tenant_id"`
	Name     string         `json:"name" db:"name"`
	Subject  string         `json:"subject" db:"subject"`
	Status   CampaignStatus `json:"status" db:"status"`

	// OutboxIDs restricts which of the tenant's outboxes may serve this
	// campaign. Empty means any outbox owned by the tenant.
	OutboxIDs []string `json:"outbox_ids" db:"outbox_ids"`

	// Aggregate counters, maintained by the repository.
	TotalCount  int `json:"total_count" db:"total_count"`
	SentCount   int `json:"sent_count" db:"sent_count"`
	FailedCount int `json:"failed_count" db:"failed_count"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// ProgressSummary is the payload pushed to the event sink after each
// delivery outcome.
type ProgressSummary struct {
	CampaignID  string `json:"campaign_id"`
	TotalCount  int    `json:"total_count"`
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
	Done        bool   `json:"done"`
}
