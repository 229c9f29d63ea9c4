package worker

import (
	"context"
	"time"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/pkg/logger"
	"github.com/courierhq/sendcore/internal/service/sending"
)

// DryRunExecutor accepts every delivery without touching a network. It is
// the executor wired when no real transport is configured, so the scheduler
// can be exercised end to end.
type DryRunExecutor struct {
	// Delay simulates transport latency per attempt.
	Delay time.Duration
}

// Send implements sending.DeliveryExecutor.
func (e DryRunExecutor) Send(ctx context.Context, req sending.SendRequest) domain.SendOutcome {
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return domain.SendOutcome{Kind: domain.ErrKindTimeout, Message: ctx.Err().Error()}
		case <-time.After(e.Delay):
		}
	}
	logger.Info("dry-run delivery",
		"outbox_id", req.Outbox.ID, "item_id", req.Item.ID, "recipient", req.Item.Recipient)
	return domain.SendOutcome{OK: true, MessageID: "dry-" + req.Item.ID, SentAt: time.Now()}
}
