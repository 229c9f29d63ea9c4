// Package scheduler runs the recurring maintenance jobs of the sending
// pipeline, most importantly the midnight quota reset.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courierhq/sendcore/internal/outbox"
	"github.com/courierhq/sendcore/internal/pkg/logger"
)

// dailyResetJob names the quota reset entry. Registration is keyed by job
// name, so repeated registrations collapse into one entry.
const dailyResetJob = "outbox-daily-reset"

// dailyResetSpec fires at local midnight. Cron re-arms automatically, which
// covers the "midnight, then every 24 hours" cadence.
const dailyResetSpec = "0 0 * * *"

// CounterStore persists the daily reset. Optional: with no store configured
// only the in-memory registry is reset.
type CounterStore interface {
	ResetOutboxCounters(ctx context.Context) (int, error)
}

// Scheduler owns the cron runner and the named-job table.
type Scheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a stopped scheduler. Call Start once wiring is complete.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]cron.EntryID),
	}
}

// Register adds a named cron job. Registering an existing name is a no-op
// and reports false, so callers may re-register on every startup pass
// without stacking duplicate entries.
func (s *Scheduler) Register(name, spec string, fn func()) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return false, nil
	}
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return false, err
	}
	s.jobs[name] = id
	logger.Info("job registered", "job", name, "spec", spec)
	return true, nil
}

// Registered reports whether a named job exists.
func (s *Scheduler) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// RegisterDailyReset installs the midnight quota reset for the registry and,
// when a store is configured, the persisted counters as well.
func (s *Scheduler) RegisterDailyReset(registry *outbox.Registry, store CounterStore) error {
	_, err := s.Register(dailyResetJob, dailyResetSpec, func() {
		RunDailyReset(context.Background(), registry, store)
	})
	return err
}

// RunDailyReset performs one reset pass. Idempotent: running it twice in a
// row just re-zeros the counters. Exported so startup recovery can force a
// pass when the process slept through a midnight boundary.
func RunDailyReset(ctx context.Context, registry *outbox.Registry, store CounterStore) {
	registry.ResetDailyCounters()
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := store.ResetOutboxCounters(ctx)
	if err != nil {
		logger.Error("persisted quota reset failed", "error", err.Error())
		return
	}
	logger.Info("persisted quota counters reset", "outboxes", n)
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
