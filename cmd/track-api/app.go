package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TrackBot/internal/api/webhooks"
	"github.com/BearBump/TrackBot/internal/broker/messages"
	"github.com/BearBump/TrackBot/internal/metrics"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	webhooks webhooks.Options

	onListen func(httpAddr string)
}

type pollConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type pollReconciler interface {
	OnPollResult(ctx context.Context, st models.ShipmentStatus) (tracksync.Outcome, error)
}

func runTrackAPI(ctx context.Context, a *trackAPIApp) error {
	lis, err := net.Listen("tcp", a.opts.httpAddr)
	if err != nil {
		return err
	}
	if a.opts.onListen != nil {
		a.opts.onListen(lis.Addr().String())
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		a.dispatcher.Run(ctx)
	}()

	if a.consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", a.opts.topic, "group", a.opts.consumerGroup)
			consumePollResults(ctx, a.consumer, a.engine, time.Second)
		}()
	}

	srv := &http.Server{Handler: newRouter(ctx, a), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	err = srv.Serve(lis)

	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		slog.Warn("notification queue not drained", "pending", a.dispatcher.Pending())
	}
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func newRouter(ctx context.Context, a *trackAPIApp) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTP)
	r.Use(func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "track-api") })

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Bot is running!"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"status":"not ready","error":%q}`, err.Error())
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	if fi, err := os.Stat(a.opts.swaggerPath); err == nil {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, a.opts.swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL(fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())),
		))
	} else {
		slog.Warn("swagger file not found, /docs disabled", "path", a.opts.swaggerPath)
	}

	webhooks.New(ctx, a.bot, a.engine.Provider(), a.engine, a.opts.webhooks).Mount(r)
	return r
}

func (a *trackAPIApp) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		return a.redis.Ping(ctx).Err()
	}
	return nil
}

// consumePollResults restarts the consumer whenever it stops, until ctx is done.
func consumePollResults(ctx context.Context, c pollConsumer, eng pollReconciler, backoff time.Duration) {
	handler := pollResultHandler(ctx, eng)
	for {
		err := c.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		slog.Error("kafka consumer stopped, restarting", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// pollResultHandler drops undecodable messages so they get committed; engine
// errors are returned for the consumer to retry.
func pollResultHandler(ctx context.Context, eng pollReconciler) func(key, value []byte) error {
	return func(_, value []byte) error {
		m, err := messages.DecodeTrackingUpdated(value)
		if err != nil {
			slog.Warn("drop malformed poll result", "error", err.Error())
			return nil
		}
		_, err = eng.OnPollResult(ctx, m.Status)
		return err
	}
}
