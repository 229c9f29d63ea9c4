package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/service/sending"
)

// SendingRepo implements sending.Repository against PostgreSQL.
type SendingRepo struct{ db *sql.DB }

// NewSendingRepo creates a Postgres-backed sending repository.
func NewSendingRepo(db *sql.DB) *SendingRepo { return &SendingRepo{db: db} }

func (r *SendingRepo) LoadCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, subject, status, outbox_ids,
		       total_count, sent_count, failed_count,
		       started_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Subject, &c.Status, pq.Array(&c.OutboxIDs),
		&c.TotalCount, &c.SentCount, &c.FailedCount,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sending.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	return c, nil
}

func (r *SendingRepo) LoadInProgressCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, subject, status, outbox_ids,
		       total_count, sent_count, failed_count,
		       started_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE status = 'sending'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load in-progress campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Name, &c.Subject, &c.Status, pq.Array(&c.OutboxIDs),
			&c.TotalCount, &c.SentCount, &c.FailedCount,
			&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SendingRepo) LoadOutboxesForTenant(ctx context.Context, tenantID string) ([]domain.Outbox, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, daily_limit, sent_today, valid,
		       proxy_id, cooldown_hours
		FROM outboxes
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load outboxes: %w", err)
	}
	defer rows.Close()

	var out []domain.Outbox
	for rows.Next() {
		var o domain.Outbox
		if err := rows.Scan(
			&o.ID, &o.TenantID, &o.Email, &o.DailyLimit, &o.SentToday, &o.Valid,
			&o.ProxyID, &o.CooldownHours,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadItems returns undelivered items in insertion order. Rows stuck in
// claimed state come back as pending so a restarted process can resume them.
func (r *SendingRepo) LoadItems(ctx context.Context, campaignID string, itemIDs []string) ([]domain.SendingItem, error) {
	q := `
		SELECT id, campaign_id, recipient,
		       CASE WHEN status = 'claimed' THEN 'pending' ELSE status END,
		       attempts, max_attempts, COALESCE(last_error,''), sent_at, created_at
		FROM sending_items
		WHERE campaign_id = $1 AND status <> 'sent'`
	args := []interface{}{campaignID}
	if len(itemIDs) > 0 {
		q += ` AND id = ANY($2)`
		args = append(args, pq.Array(itemIDs))
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	var out []domain.SendingItem
	for rows.Next() {
		var it domain.SendingItem
		if err := rows.Scan(
			&it.ID, &it.CampaignID, &it.Recipient, &it.Status,
			&it.Attempts, &it.MaxAttempts, &it.LastError, &it.SentAt, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *SendingRepo) PersistItemState(ctx context.Context, item *domain.SendingItem) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_items
		SET status = $1, attempts = $2, last_error = NULLIF($3,''), sent_at = $4,
		    updated_at = NOW()
		WHERE id = $5
	`, item.Status, item.Attempts, item.LastError, item.SentAt, item.ID)
	if err != nil {
		return fmt.Errorf("persist item state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sending.ErrNotFound
	}
	return nil
}

func (r *SendingRepo) PersistOutboxCounters(ctx context.Context, o *domain.Outbox) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outboxes
		SET sent_today = $1, valid = $2, updated_at = NOW()
		WHERE id = $3
	`, o.SentToday, o.Valid, o.ID)
	if err != nil {
		return fmt.Errorf("persist outbox counters: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sending.ErrNotFound
	}
	return nil
}

func (r *SendingRepo) AddCampaignProgress(ctx context.Context, campaignID string, sentDelta, failedDelta int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = sent_count + $1, failed_count = failed_count + $2,
		    updated_at = NOW()
		WHERE id = $3
	`, sentDelta, failedDelta, campaignID)
	if err != nil {
		return fmt.Errorf("add campaign progress: %w", err)
	}
	return nil
}

// UpdateCampaignStatus transitions a campaign, stamping started_at on the
// first move into sending and completed_at on terminal states.
func (r *SendingRepo) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1,
		    started_at = CASE WHEN $1 = 'sending' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('sent','cancelled') THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sending.ErrNotFound
	}
	return nil
}

// ResetOutboxCounters zeroes the persisted daily counters for every outbox.
// Called by the quota reset scheduler alongside the in-memory reset.
func (r *SendingRepo) ResetOutboxCounters(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outboxes SET sent_today = 0, updated_at = NOW() WHERE sent_today > 0`)
	if err != nil {
		return 0, fmt.Errorf("reset outbox counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
