package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackBot/config"
	"github.com/BearBump/TrackBot/internal/observability"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse failed, %v", err))
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.TrackBot.SlogLevel()})))

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.Tracing, "track-api")
	if err != nil {
		panic(err)
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	app, err := buildTrackAPI(cfg, defaultAPIFactories())
	if err != nil {
		panic(err)
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
