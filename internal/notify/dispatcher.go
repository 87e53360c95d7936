// Package notify formats status messages and delivers them to chat subscribers.
package notify

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/BearBump/TrackBot/internal/metrics"
	"github.com/BearBump/TrackBot/internal/models"
	"golang.org/x/time/rate"
)

type MessageSink interface {
	SendMessage(ctx context.Context, chatID int64, html string) error
}

type job struct {
	chatID  int64
	status  models.ShipmentStatus
	initial bool
}

type Options struct {
	Workers   int
	QueueSize int
	// PerSecond caps outgoing sends; 0 disables pacing.
	PerSecond float64
	Rand      Rand
}

// Dispatcher delivers notifications fire-and-forget: Notify only enqueues.
// A full queue drops the message, sends are never retried.
type Dispatcher struct {
	sink    MessageSink
	queue   chan job
	limiter *rate.Limiter
	workers int
	rnd     Rand
}

func NewDispatcher(sink MessageSink, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Rand == nil {
		opts.Rand = rand.IntN
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.PerSecond > 0 {
		burst := int(opts.PerSecond)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.PerSecond), burst)
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan job, opts.QueueSize),
		limiter: lim,
		workers: opts.Workers,
		rnd:     opts.Rand,
	}
}

func (d *Dispatcher) Notify(_ context.Context, subscriberID int64, st models.ShipmentStatus, initial bool) {
	select {
	case d.queue <- job{chatID: subscriberID, status: st, initial: initial}:
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		slog.Warn("notify queue full", "subscriber_id", subscriberID, "tracking_id", st.TrackingID)
	}
}

// Run processes the queue until ctx is done, then drains what's left.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case j := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				d.send(context.WithoutCancel(ctx), j)
				continue
			}
			d.send(ctx, j)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.send(context.Background(), j)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, j job) {
	msg := FormatStatus(j.status, j.initial, d.rnd)
	if err := d.sink.SendMessage(ctx, j.chatID, msg); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		slog.Error("send notification", "subscriber_id", j.chatID, "tracking_id", j.status.TrackingID, "error", err.Error())
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}

// Pending is the number of queued notifications.
func (d *Dispatcher) Pending() int { return len(d.queue) }
