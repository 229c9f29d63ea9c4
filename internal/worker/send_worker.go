package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/sendcore/internal/dispatch"
	"github.com/courierhq/sendcore/internal/domain"
	"github.com/courierhq/sendcore/internal/service/sending"
)

// SendWorkerPool runs N sender goroutines, each looping claim → deliver →
// report against the dispatch orchestrator. Delivery happens outside every
// lock; a worker holds nothing but its claimed item while the executor runs.
type SendWorkerPool struct {
	orch     *dispatch.Orchestrator
	sc       *dispatch.SendingContext
	executor sending.DeliveryExecutor

	poolID       string
	numWorkers   int
	pollInterval time.Duration
	sendTimeout  time.Duration

	// Stats
	totalSent   int64
	totalFailed int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// PoolConfig tunes the worker pool. Zero values fall back to defaults.
type PoolConfig struct {
	NumWorkers   int
	PollInterval time.Duration
	SendTimeout  time.Duration
}

// NewSendWorkerPool creates a stopped pool.
func NewSendWorkerPool(orch *dispatch.Orchestrator, sc *dispatch.SendingContext, executor sending.DeliveryExecutor, cfg PoolConfig) *SendWorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &SendWorkerPool{
		orch:         orch,
		sc:           sc,
		executor:     executor,
		poolID:       fmt.Sprintf("pool-%s", uuid.New().String()[:8]),
		numWorkers:   cfg.NumWorkers,
		pollInterval: cfg.PollInterval,
		sendTimeout:  cfg.SendTimeout,
	}
}

// Start launches the workers. Safe to call once; repeat calls are no-ops.
func (p *SendWorkerPool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	log.Printf("[SendWorkerPool] %s: starting %d workers (poll=%s)", p.poolID, p.numWorkers, p.pollInterval)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop cancels the workers and waits for in-flight deliveries to report.
func (p *SendWorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[SendWorkerPool] %s: stopped. sent=%d failed=%d",
		p.poolID, atomic.LoadInt64(&p.totalSent), atomic.LoadInt64(&p.totalFailed))
}

// Stats returns cumulative delivery counters.
func (p *SendWorkerPool) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":   atomic.LoadInt64(&p.totalSent),
		"total_failed": atomic.LoadInt64(&p.totalFailed),
	}
}

// worker is the claim → deliver → report loop. Each pass walks every
// registered outbox once; an idle pass sleeps before polling again.
func (p *SendWorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if p.passOnce() == 0 {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
		}
	}
}

// passOnce claims and delivers at most one item per registered outbox and
// returns how many deliveries it performed.
func (p *SendWorkerPool) passOnce() int {
	delivered := 0
	for _, o := range p.orch.Registry().Snapshot() {
		if p.ctx.Err() != nil {
			return delivered
		}
		item := p.orch.ClaimNext(p.ctx, p.sc, o.ID)
		if item == nil {
			continue
		}

		out := p.deliver(o.ID, *item)
		p.orch.ReportOutcome(p.ctx, p.sc, o.ID, *item, out)

		if out.OK {
			atomic.AddInt64(&p.totalSent, 1)
		} else {
			atomic.AddInt64(&p.totalFailed, 1)
		}
		delivered++
	}
	return delivered
}

// deliver runs the executor with a per-attempt timeout. The outbox snapshot
// is re-read so the executor sees current counters and validity.
func (p *SendWorkerPool) deliver(outboxID string, item domain.SendingItem) domain.SendOutcome {
	o, ok := p.orch.Registry().Get(outboxID)
	if !ok {
		return domain.SendOutcome{Kind: domain.ErrKindConnection, Message: "outbox vanished before delivery"}
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.sendTimeout)
	defer cancel()

	out := p.executor.Send(ctx, sending.SendRequest{
		Outbox:     o,
		Item:       item,
		SecretKeys: p.sc.SecretKeys,
	})
	if !out.OK && out.Kind == domain.ErrKindNone {
		out.Kind = domain.ErrKindConnection
	}
	return out
}
