package dispatch

import "errors"

// Sentinel errors for the dispatch layer. Absence of work is not an error
// and is reported as a nil/false result instead.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrNoItems          = errors.New("campaign has no items to send")
)
