package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/TrackBot/config"
	"github.com/BearBump/TrackBot/internal/broker/kafka"
	"github.com/BearBump/TrackBot/internal/cache/rediscache"
	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/providers"
	"github.com/BearBump/TrackBot/internal/integrations/telegram"
	"github.com/BearBump/TrackBot/internal/keylock"
	"github.com/BearBump/TrackBot/internal/notify"
	"github.com/BearBump/TrackBot/internal/services/poller"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
	"github.com/BearBump/TrackBot/internal/storage/memtracking"
	"github.com/BearBump/TrackBot/internal/storage/pgtracking"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type workerStorage interface {
	poller.Repository
	tracksync.Repository
	Close()
}

type producer interface {
	poller.Producer
	Close() error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (workerStorage, error)
	newRedis    func(cfg *config.Config) *redis.Client
	newProducer func(cfg *config.Config) producer
	newProvider func(cfg *config.Config) carrier.Provider
	newSink     func(cfg *config.Config) notify.MessageSink
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, error) {
			if cfg.TrackBot.StorageDriver == "memory" {
				return memtracking.New(), nil
			}
			st, err := pgtracking.New(cfg.PostgresDSN())
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		newRedis: func(cfg *config.Config) *redis.Client {
			if !cfg.HasRedis() {
				return nil
			}
			return rediscache.NewClient(cfg.RedisAddr())
		},
		newProducer: func(cfg *config.Config) producer {
			return kafka.NewProducer(cfg.KafkaBrokers())
		},
		newProvider: providers.FromConfig,
		newSink: func(cfg *config.Config) notify.MessageSink {
			return telegram.New(cfg.Telegram.APIBaseURL, cfg.Telegram.Token, 10*time.Second)
		},
	}
}

// buildSink wires the poll results either onto Kafka or straight into an
// in-process engine. The returned run func must be started for direct mode.
func buildSink(cfg *config.Config, f workerFactories, st workerStorage, rc *redis.Client, provider carrier.Provider) (poller.Sink, func(ctx context.Context), func()) {
	if cfg.TrackBot.WorkerSink == "kafka" {
		p := f.newProducer(cfg)
		sink := poller.NewKafkaSink(p, cfg.Kafka.TrackingUpdatedTopicName, provider.Name())
		return sink, func(context.Context) {}, func() { _ = p.Close() }
	}

	var locker tracksync.Locker = keylock.New()
	if rc != nil && cfg.TrackBot.LockDriver == "redis" {
		locker = rediscache.NewLocker(rc, 15*time.Second)
	}
	dispatcher := notify.NewDispatcher(f.newSink(cfg), notify.Options{
		Workers:   cfg.TrackBot.DispatcherWorkers,
		QueueSize: cfg.TrackBot.DispatcherQueueSize,
		PerSecond: cfg.Telegram.SendRatePerSecond,
	})
	engine := tracksync.New(provider, st, dispatcher, locker)
	return poller.NewEngineSink(engine), dispatcher.Run, func() {}
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	st, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rc := f.newRedis(cfg)
	if rc != nil {
		defer func() { _ = rc.Close() }()
	}
	provider := f.newProvider(cfg)

	sink, runSink, closeSink := buildSink(cfg, f, st, rc, provider)
	defer closeSink()
	sinkCtx, stopSink := context.WithCancel(ctx)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		runSink(sinkCtx)
	}()
	// the poller is the only producer; once it returns the queue can be drained
	defer func() {
		stopSink()
		select {
		case <-sinkDone:
		case <-time.After(5 * time.Second):
			slog.Warn("notification queue not drained")
		}
	}()

	var rl poller.RateLimiter
	if rc != nil {
		rl = rediscache.NewRateLimiter(rc)
	}

	t := cfg.TrackBot
	p := poller.New(st, provider, sink, rl).
		WithSettings(t.PollInterval(), t.WorkerConcurrency, int64(t.WorkerRateLimitPerMinute))

	swaggerPath := os.Getenv("workerSwaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/track-worker.swagger.json"
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    t.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			poller:      p,
			cfg:         cfg,
		})
	}()

	slog.Info("worker started",
		"provider", provider.Name(),
		"sink", t.WorkerSink,
		"poll_interval", t.PollInterval().String(),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		if err != nil && ctx.Err() == nil {
			return errors.Wrap(err, "worker http")
		}
		return <-runErr
	}
}
