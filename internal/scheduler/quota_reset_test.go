package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/outbox"
)

type fakeStore struct {
	calls int
	err   error
}

func (f *fakeStore) ResetOutboxCounters(context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	s := New()

	added, err := s.Register("nightly", "0 0 * * *", func() {})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Register("nightly", "0 0 * * *", func() {})
	require.NoError(t, err)
	assert.False(t, added, "second registration must be a no-op")
	assert.True(t, s.Registered("nightly"))
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New()
	_, err := s.Register("broken", "not a cron spec", func() {})
	assert.Error(t, err)
	assert.False(t, s.Registered("broken"))
}

func TestRunDailyResetZeroesCounters(t *testing.T) {
	reg := outbox.NewRegistry()
	reg.Upsert(domain.Outbox{ID: "o1", TenantID: "t1", DailyLimit: 5, Valid: true})
	for i := 0; i < 5; i++ {
		require.True(t, reg.ReserveCapacity("o1"))
	}
	require.False(t, reg.ReserveCapacity("o1"), "quota exhausted before reset")

	store := &fakeStore{}
	RunDailyReset(context.Background(), reg, store)

	assert.True(t, reg.ReserveCapacity("o1"), "claimable again after reset")
	assert.Equal(t, 1, store.calls)

	// Running again is harmless.
	RunDailyReset(context.Background(), reg, store)
	assert.Equal(t, 2, store.calls)
}

func TestRunDailyResetSurvivesStoreFailure(t *testing.T) {
	reg := outbox.NewRegistry()
	reg.Upsert(domain.Outbox{ID: "o1", TenantID: "t1", DailyLimit: 1, Valid: true})
	require.True(t, reg.ReserveCapacity("o1"))

	RunDailyReset(context.Background(), reg, &fakeStore{err: errors.New("db down")})

	assert.True(t, reg.ReserveCapacity("o1"), "in-memory reset happens regardless")
}

func TestRegisterDailyReset(t *testing.T) {
	s := New()
	require.NoError(t, s.RegisterDailyReset(outbox.NewRegistry(), nil))
	assert.True(t, s.Registered("outbox-daily-reset"))
	require.NoError(t, s.RegisterDailyReset(outbox.NewRegistry(), nil))
}
