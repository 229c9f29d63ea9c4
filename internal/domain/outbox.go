package domain

// Outbox is a configured sending account owned by exactly one tenant.
// Daily quota accounting and validity are tracked in the outbox registry;
// the struct here is the persisted shape.
type Outbox struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Email    string `json:"email" db:"email"`

	// DailyLimit is the maximum number of items this outbox may send per
	// day. Zero means unlimited.
	DailyLimit int `json:"daily_limit" db:"daily_limit"`

	// SentToday is the number of items sent since the last daily reset.
	SentToday int `json:"sent_today" db:"sent_today"`

	// Valid is cleared after repeated permanent transport failures
	// (auth rejection, TLS failure). Invalid outboxes are never matched.
	Valid bool `json:"valid" db:"valid"`

	// ProxyID optionally routes this outbox's traffic through a proxy.
	ProxyID *string `json:"proxy_id" db:"proxy_id"`

	// CooldownHours is the minimum number of hours before the same
	// recipient may be re-contacted via this tenant's outboxes.
	// Zero disables the cooldown check.
	CooldownHours int `json:"cooldown_hours" db:"cooldown_hours"`
}

// HasCapacity reports whether the outbox is below its daily limit.
func (o *Outbox) HasCapacity() bool {
	return o.DailyLimit <= 0 || o.SentToday < o.DailyLimit
}
