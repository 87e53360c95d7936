package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/metrics"
	"github.com/BearBump/TrackBot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/BearBump/TrackBot/internal/services/poller")

type Repository interface {
	ListTrackedIDs(ctx context.Context) ([]string, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Sink receives every status the provider resolved during a cycle.
type Sink interface {
	Apply(ctx context.Context, st models.ShipmentStatus) error
}

type Poller struct {
	repo     Repository
	provider carrier.Provider
	sink     Sink
	rl       RateLimiter

	pollInterval       time.Duration
	concurrency        int
	rateLimitPerMinute int64
	rateLimitWait      time.Duration

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalListed         atomic.Int64
	totalProcessed      atomic.Int64
	totalAbsent         atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, provider carrier.Provider, sink Sink, rl RateLimiter) *Poller {
	return &Poller{
		repo: repo, provider: provider, sink: sink, rl: rl,
		pollInterval:       6 * time.Hour,
		concurrency:        4,
		rateLimitPerMinute: 60,
		rateLimitWait:      500 * time.Millisecond,
		triggerCh:          make(chan struct{}, 1),
		now:                time.Now,
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, concurrency int, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

// Trigger forces an early poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles    int64      `json:"totalCycles"`
	TotalListed    int64      `json:"totalListed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalAbsent    int64      `json:"totalAbsent"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalCycles:    p.totalCycles.Load(),
		TotalListed:    p.totalListed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalAbsent:    p.totalAbsent.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

// Run polls once right away, then again pollInterval after each cycle ends.
// Cycles never overlap.
func (p *Poller) Run(ctx context.Context) error {
	p.runOnce(ctx)

	t := time.NewTimer(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-p.triggerCh:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		}
		p.runOnce(ctx)
		t.Reset(p.pollInterval)
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := tracer.Start(ctx, "poller.cycle")
	defer span.End()

	start := time.Now()
	p.lastCycleUnixNano.Store(start.UTC().UnixNano())
	p.totalCycles.Add(1)
	defer func() { metrics.PollCycleDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := p.repo.ListTrackedIDs(ctx)
	if err != nil {
		slog.Error("list tracked ids", "error", err.Error())
		p.totalErrors.Add(1)
		p.setLastError(err)
		return
	}
	p.totalListed.Add(int64(len(ids)))
	span.SetAttributes(attribute.Int("tracked", len(ids)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		p.inFlight.Add(1)
		go func(id string) {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, id); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				slog.Error("process tracking", "tracking_id", id, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}(id)
	}
	wg.Wait()
	slog.Info("poll cycle done", "tracked", len(ids), "duration", time.Since(start).String())
}

func (p *Poller) processOne(ctx context.Context, id string) error {
	if err := p.waitRateLimit(ctx); err != nil {
		return err
	}

	st, ok := p.provider.Fetch(ctx, id)
	if !ok {
		p.totalAbsent.Add(1)
		metrics.ProviderFetches.WithLabelValues(p.provider.Name(), "absent").Inc()
		slog.Warn("provider has no data", "tracking_id", id, "provider", p.provider.Name())
		return nil
	}
	metrics.ProviderFetches.WithLabelValues(p.provider.Name(), "found").Inc()
	st.TrackingID = id

	return p.sink.Apply(ctx, st)
}

// waitRateLimit blocks while the provider's per-minute budget is used up.
func (p *Poller) waitRateLimit(ctx context.Context) error {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return nil
	}
	for {
		key := fmt.Sprintf("rl:provider:%s:%s", p.provider.Name(), p.now().UTC().Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, key, p.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			// limiter outage must not stop polling
			slog.Warn("rate limiter", "error", err.Error())
			return nil
		}
		if allowed {
			return nil
		}
		slog.Warn("rate limit exceeded", "provider", p.provider.Name(), "count", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.rateLimitWait):
		}
	}
}
