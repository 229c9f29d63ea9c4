package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/sendcore/internal/cooldown"
	"github.com/courierhq/sendcore/internal/dispatch"
	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/outbox"
	"github.com/courierhq/sendcore/internal/service/sending"
)

// stubRepo is a minimal in-memory repository for pool tests.
type stubRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	items     map[string][]domain.SendingItem
	outboxes  map[string][]domain.Outbox
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		campaigns: make(map[string]*domain.Campaign),
		items:     make(map[string][]domain.SendingItem),
		outboxes:  make(map[string][]domain.Outbox),
	}
}

func (s *stubRepo) LoadCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, sending.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) LoadInProgressCampaigns(_ context.Context) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignSending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubRepo) LoadOutboxesForTenant(_ context.Context, tenantID string) ([]domain.Outbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Outbox(nil), s.outboxes[tenantID]...), nil
}

func (s *stubRepo) LoadItems(_ context.Context, campaignID string, itemIDs []string) ([]domain.SendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	var out []domain.SendingItem
	for _, it := range s.items[campaignID] {
		if it.Status == domain.ItemSent {
			continue
		}
		if len(want) > 0 && !want[it.ID] {
			continue
		}
		if it.Status == domain.ItemClaimed {
			it.Status = domain.ItemPending
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *stubRepo) PersistItemState(_ context.Context, item *domain.SendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[item.CampaignID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = *item
		}
	}
	return nil
}

func (s *stubRepo) PersistOutboxCounters(_ context.Context, _ *domain.Outbox) error { return nil }

func (s *stubRepo) AddCampaignProgress(_ context.Context, campaignID string, sentDelta, failedDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.SentCount += sentDelta
		c.FailedCount += failedDelta
	}
	return nil
}

func (s *stubRepo) UpdateCampaignStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (s *stubRepo) status(id string) domain.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Status
}

// fakeExecutor records every request and answers from a script keyed by
// recipient; unlisted recipients succeed.
type fakeExecutor struct {
	mu       sync.Mutex
	requests []sending.SendRequest
	script   map[string]domain.SendOutcome
}

func (f *fakeExecutor) Send(_ context.Context, req sending.SendRequest) domain.SendOutcome {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	out, scripted := f.script[req.Item.Recipient]
	f.mu.Unlock()
	if scripted {
		return out
	}
	return domain.SendOutcome{OK: true, MessageID: "msg-" + req.Item.ID, SentAt: time.Now()}
}

func (f *fakeExecutor) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type silentSink struct{}

func (silentSink) NotifyProgress(string, string, domain.ProgressSummary) {}

func poolFixture(repo *stubRepo) (*dispatch.Orchestrator, *dispatch.SendingContext) {
	orch := dispatch.NewOrchestrator(outbox.NewRegistry(), cooldown.NewMemoryLedger(), silentSink{})
	return orch, &dispatch.SendingContext{Repo: repo}
}

func TestPoolDrainsCampaign(t *testing.T) {
	repo := newStubRepo()
	repo.outboxes["t1"] = []domain.Outbox{{ID: "o1", TenantID: "t1", Valid: true}}
	var items []domain.SendingItem
	for i := 0; i < 8; i++ {
		items = append(items, domain.SendingItem{
			ID: fmt.Sprintf("i%d", i), CampaignID: "c1",
			Recipient: fmt.Sprintf("r%d@x.test", i),
			Status:    domain.ItemPending, MaxAttempts: 3,
		})
	}
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", TenantID: "t1", TotalCount: len(items)}
	repo.items["c1"] = items

	orch, sc := poolFixture(repo)
	require.True(t, orch.EnqueueCampaign(context.Background(), sc, "t1", "c1", nil))

	exec := &fakeExecutor{}
	pool := NewSendWorkerPool(orch, sc, exec, PoolConfig{NumWorkers: 3, PollInterval: 5 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return repo.status("c1") == domain.CampaignSent
	}, 5*time.Second, 10*time.Millisecond, "campaign should drain to sent")

	pool.Stop()
	assert.Equal(t, 8, exec.sent(), "each item delivered exactly once")
	assert.Equal(t, int64(8), pool.Stats()["total_sent"])
	assert.Equal(t, int64(0), pool.Stats()["total_failed"])
}

func TestPoolCountsPermanentFailures(t *testing.T) {
	repo := newStubRepo()
	repo.outboxes["t1"] = []domain.Outbox{{ID: "o1", TenantID: "t1", Valid: true}}
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", TenantID: "t1", TotalCount: 1}
	repo.items["c1"] = []domain.SendingItem{{
		ID: "i1", CampaignID: "c1", Recipient: "bounce@x.test",
		Status: domain.ItemPending, MaxAttempts: 3,
	}}

	orch, sc := poolFixture(repo)
	require.True(t, orch.EnqueueCampaign(context.Background(), sc, "t1", "c1", nil))

	exec := &fakeExecutor{script: map[string]domain.SendOutcome{
		"bounce@x.test": {OK: false, Kind: domain.ErrKindHardBounce, Message: "550 user unknown"},
	}}
	pool := NewSendWorkerPool(orch, sc, exec, PoolConfig{NumWorkers: 1, PollInterval: 5 * time.Millisecond})
	pool.Start()

	require.Eventually(t, func() bool {
		return pool.Stats()["total_failed"] == 1
	}, 5*time.Second, 10*time.Millisecond)
	pool.Stop()

	assert.Equal(t, 1, exec.sent(), "hard bounce is not retried")
}

func TestRecoverInProgress(t *testing.T) {
	repo := newStubRepo()
	repo.outboxes["t1"] = []domain.Outbox{{ID: "o1", TenantID: "t1", Valid: true}}
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", TenantID: "t1", Status: domain.CampaignSending, TotalCount: 2}
	repo.items["c1"] = []domain.SendingItem{
		{ID: "i1", CampaignID: "c1", Recipient: "a@x.test", Status: domain.ItemClaimed, MaxAttempts: 3},
		{ID: "i2", CampaignID: "c1", Recipient: "b@x.test", Status: domain.ItemSent, MaxAttempts: 3},
	}

	orch, sc := poolFixture(repo)
	n, err := RecoverInProgress(context.Background(), sc, orch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The crash-claimed item is pending again and claimable.
	it := orch.ClaimNext(context.Background(), sc, "o1")
	require.NotNil(t, it)
	assert.Equal(t, "i1", it.ID)
}

func TestRecoverNothingToDo(t *testing.T) {
	repo := newStubRepo()
	orch, sc := poolFixture(repo)
	n, err := RecoverInProgress(context.Background(), sc, orch)
	require.NoError(t, err)
	assert.Zero(t, n)
}
