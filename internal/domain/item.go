package domain

import "time"

// ItemStatus enumerates the lifecycle of a single recipient within a campaign.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemClaimed ItemStatus = "claimed"
	ItemSent    ItemStatus = "sent"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// DefaultMaxAttempts is the retry budget applied when an item does not
// carry its own.
const DefaultMaxAttempts = 3

// SendingItem is one (campaign, recipient) pair awaiting delivery.
// Exactly one worker may hold an item in ItemClaimed state at a time.
type SendingItem struct {
	ID         string     `json:"id" db:"id"`
	CampaignID string     `json:"campaign_id" db:"campaign_id"`
	Recipient  string     `json:"recipient" db:"recipient"`
	Status     ItemStatus `json:"status" db:"status"`

	Attempts    int    `json:"attempts" db:"attempts"`
	MaxAttempts int    `json:"max_attempts" db:"max_attempts"`
	LastError   string `json:"last_error" db:"last_error"`

	SentAt    *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// RetryBudget returns the effective retry budget for the item.
func (i *SendingItem) RetryBudget() int {
	if i.MaxAttempts > 0 {
		return i.MaxAttempts
	}
	return DefaultMaxAttempts
}
