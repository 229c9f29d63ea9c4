package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/service/sending"
)

func setupMock(t *testing.T) (*SendingRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return NewSendingRepo(db), mock, func() { db.Close() }
}

func campaignColumns() []string {
	return []string{
		"id", "tenant_id", "name", "subject", "status", "outbox_ids",
		"total_count", "sent_count", "failed_count",
		"started_at", "completed_at", "created_at", "updated_at",
	}
}

func TestLoadCampaign(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(campaignColumns()).
			AddRow("c1", "t1", "Spring", "Hello", "sending", "{o1,o2}",
				100, 40, 2, now, nil, now, now))

	c, err := repo.LoadCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "t1", c.TenantID)
	assert.Equal(t, domain.CampaignSending, c.Status)
	assert.Equal(t, []string{"o1", "o2"}, c.OutboxIDs)
	assert.Equal(t, 40, c.SentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCampaignNotFound(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LoadCampaign(context.Background(), "ghost")
	assert.ErrorIs(t, err, sending.ErrNotFound)
}

func TestLoadItemsMapsClaimedToPending(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	cols := []string{"id", "campaign_id", "recipient", "case", "attempts", "max_attempts", "last_error", "sent_at", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM sending_items")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("i1", "c1", "a@x.test", "pending", 0, 3, "", nil, now).
			AddRow("i2", "c1", "b@x.test", "pending", 1, 3, "timeout", nil, now))

	items, err := repo.LoadItems(context.Background(), "c1", nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.ItemPending, items[0].Status)
	assert.Equal(t, "timeout", items[1].LastError)
}

func TestLoadItemsWithSelection(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	cols := []string{"id", "campaign_id", "recipient", "case", "attempts", "max_attempts", "last_error", "sent_at", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("id = ANY($2)")).
		WithArgs("c1", pq.Array([]string{"i9"})).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("i9", "c1", "z@x.test", "failed", 3, 3, "550", nil, now))

	items, err := repo.LoadItems(context.Background(), "c1", []string{"i9"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.ItemFailed, items[0].Status)
}

func TestPersistItemState(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	it := domain.SendingItem{ID: "i1", Status: domain.ItemSent, Attempts: 1, SentAt: &now}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sending_items")).
		WithArgs(it.Status, it.Attempts, "", it.SentAt, it.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.PersistItemState(context.Background(), &it))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistItemStateMissingRow(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	it := domain.SendingItem{ID: "nope", Status: domain.ItemFailed}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sending_items")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.PersistItemState(context.Background(), &it), sending.ErrNotFound)
}

func TestUpdateCampaignStatus(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs(domain.CampaignSent, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateCampaignStatus(context.Background(), "c1", domain.CampaignSent))
}

func TestAddCampaignProgress(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("sent_count = sent_count + $1")).
		WithArgs(1, 0, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.AddCampaignProgress(context.Background(), "c1", 1, 0))
}

func TestResetOutboxCounters(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("SET sent_today = 0")).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.ResetOutboxCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
