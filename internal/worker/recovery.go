package worker

import (
	"context"
	"log"

	"github.com/courierhq/sendcore/internal/dispatch"
)

// RecoverInProgress re-enqueues every campaign left in sending state by a
// prior run. Items persisted as claimed come back as pending through the
// repository, so a crashed worker's claims are simply re-sendable. Must run
// before the worker pool starts so recovered work is claimed in order.
func RecoverInProgress(ctx context.Context, sc *dispatch.SendingContext, orch *dispatch.Orchestrator) (int, error) {
	campaigns, err := sc.Repo.LoadInProgressCampaigns(ctx)
	if err != nil {
		return 0, err
	}
	if len(campaigns) == 0 {
		return 0, nil
	}

	recovered := 0
	for _, c := range campaigns {
		if orch.EnqueueCampaign(ctx, sc, c.TenantID, c.ID, nil) {
			recovered++
			continue
		}
		log.Printf("[Recovery] campaign %s had nothing left to send", c.ID)
	}
	log.Printf("[Recovery] re-enqueued %d of %d in-progress campaigns", recovered, len(campaigns))
	return recovered, nil
}
