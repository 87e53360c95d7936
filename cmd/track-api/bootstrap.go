package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/TrackBot/config"
	"github.com/BearBump/TrackBot/internal/api/webhooks"
	"github.com/BearBump/TrackBot/internal/bot"
	"github.com/BearBump/TrackBot/internal/broker/kafka"
	"github.com/BearBump/TrackBot/internal/cache"
	"github.com/BearBump/TrackBot/internal/cache/rediscache"
	"github.com/BearBump/TrackBot/internal/integrations/carrier"
	"github.com/BearBump/TrackBot/internal/integrations/carrier/providers"
	"github.com/BearBump/TrackBot/internal/integrations/telegram"
	"github.com/BearBump/TrackBot/internal/keylock"
	"github.com/BearBump/TrackBot/internal/notify"
	"github.com/BearBump/TrackBot/internal/services/trackings"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
	"github.com/BearBump/TrackBot/internal/storage/memtracking"
	"github.com/BearBump/TrackBot/internal/storage/pgtracking"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type storage interface {
	tracksync.Repository
	trackings.Repository
	Ping(ctx context.Context) error
	Close()
}

type apiFactories struct {
	newStorage  func(cfg *config.Config) (storage, error)
	newRedis    func(cfg *config.Config) *redis.Client
	newProvider func(cfg *config.Config) carrier.Provider
	newSink     func(cfg *config.Config) notify.MessageSink
	newConsumer func(cfg *config.Config) pollConsumer
}

func defaultAPIFactories() apiFactories {
	return apiFactories{
		newStorage: func(cfg *config.Config) (storage, error) {
			if cfg.TrackBot.StorageDriver == "memory" {
				slog.Warn("using in-memory storage, state is lost on restart")
				return memtracking.New(), nil
			}
			return openPostgresWithRetry(cfg.PostgresDSN(), 60*time.Second)
		},
		newRedis: func(cfg *config.Config) *redis.Client {
			if !cfg.HasRedis() {
				return nil
			}
			return rediscache.NewClient(cfg.RedisAddr())
		},
		newProvider: providers.FromConfig,
		newSink: func(cfg *config.Config) notify.MessageSink {
			return telegram.New(cfg.Telegram.APIBaseURL, cfg.Telegram.Token, 10*time.Second)
		},
		newConsumer: func(cfg *config.Config) pollConsumer {
			if !cfg.HasKafka() {
				return nil
			}
			return kafka.NewConsumer(cfg.KafkaBrokers(), cfg.Kafka.TrackingUpdatedTopicName, cfg.TrackBot.KafkaConsumerGroup)
		},
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (*pgtracking.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgtracking.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, errors.Errorf("postgres is not ready after %s: %v", wait, lastErr)
}

type trackAPIApp struct {
	opts trackAPIOpts

	store      storage
	redis      *redis.Client
	engine     *tracksync.Engine
	dispatcher *notify.Dispatcher
	bot        *bot.Bot
	consumer   pollConsumer
}

func buildTrackAPI(cfg *config.Config, f apiFactories) (*trackAPIApp, error) {
	st, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}
	rc := f.newRedis(cfg)
	provider := f.newProvider(cfg)
	sink := f.newSink(cfg)

	var (
		infoCache cache.BytesCache
		locker    tracksync.Locker = keylock.New()
	)
	if rc != nil {
		infoCache = rediscache.New(rc, "trackbot:")
		if cfg.TrackBot.LockDriver == "redis" {
			locker = rediscache.NewLocker(rc, 15*time.Second)
		}
	} else if cfg.TrackBot.LockDriver == "redis" {
		slog.Warn("lock_driver=redis without redis configured, using process-local locks")
	}

	dispatcher := notify.NewDispatcher(sink, notify.Options{
		Workers:   cfg.TrackBot.DispatcherWorkers,
		QueueSize: cfg.TrackBot.DispatcherQueueSize,
		PerSecond: cfg.Telegram.SendRatePerSecond,
	})
	engine := tracksync.New(provider, st, dispatcher, locker)
	svc := trackings.New(st, engine, provider, infoCache, cfg.TrackBot.InfoCacheTTL())

	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/track-api.swagger.json"
	}

	return &trackAPIApp{
		opts: trackAPIOpts{
			httpAddr:      cfg.TrackBot.HTTPAddr,
			swaggerPath:   swaggerPath,
			topic:         cfg.Kafka.TrackingUpdatedTopicName,
			consumerGroup: cfg.TrackBot.KafkaConsumerGroup,
			webhooks: webhooks.Options{
				TelegramSecret: cfg.Telegram.WebhookSecret,
				ProviderHeader: cfg.TrackBot.ProviderWebhookHeader,
				ProviderSecret: cfg.TrackBot.ProviderWebhookSecret,
			},
		},
		store:      st,
		redis:      rc,
		engine:     engine,
		dispatcher: dispatcher,
		bot:        bot.New(svc, sink),
		consumer:   f.newConsumer(cfg),
	}, nil
}

func (a *trackAPIApp) Close() {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *trackAPIApp) Run(ctx context.Context) error {
	return runTrackAPI(ctx, a)
}
