// Package notify pushes campaign progress to whoever is watching. Pushes
// are best effort: a sink must never block a sender worker and never fail a
// send.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/pkg/logger"
)

// ProgressEvent is the wire shape published per delivery outcome.
type ProgressEvent struct {
	TenantID    string    `json:"tenant_id"`
	CampaignID  string    `json:"campaign_id"`
	TotalCount  int       `json:"total_count"`
	SentCount   int       `json:"sent_count"`
	FailedCount int       `json:"failed_count"`
	Done        bool      `json:"done"`
	Timestamp   time.Time `json:"timestamp"`
}

// LogSink writes progress to the structured log. The fallback sink when no
// Redis is configured.
type LogSink struct{}

// NotifyProgress implements sending.EventSink.
func (LogSink) NotifyProgress(tenantID, campaignID string, s domain.ProgressSummary) {
	logger.Info("campaign progress",
		"tenant_id", tenantID, "campaign_id", campaignID,
		"sent", s.SentCount, "failed", s.FailedCount, "total", s.TotalCount,
		"done", s.Done)
}

// RedisSink publishes progress events on a per-tenant Pub/Sub channel.
// Publishing is fire and forget on a short-lived goroutine; subscribers that
// miss an event catch up on the next one.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink creates a sink publishing on "<prefix>:<tenantID>".
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "sendcore:progress"
	}
	return &RedisSink{client: client, prefix: prefix}
}

// NotifyProgress implements sending.EventSink.
func (s *RedisSink) NotifyProgress(tenantID, campaignID string, sum domain.ProgressSummary) {
	evt := ProgressEvent{
		TenantID:    tenantID,
		CampaignID:  campaignID,
		TotalCount:  sum.TotalCount,
		SentCount:   sum.SentCount,
		FailedCount: sum.FailedCount,
		Done:        sum.Done,
		Timestamp:   time.Now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("ERROR marshal progress event: %v", err)
		return
	}

	channel := s.prefix + ":" + tenantID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.client.Publish(ctx, channel, body).Err(); err != nil {
			log.Printf("ERROR publishing progress to %s: %v", channel, err)
		}
	}()
}
