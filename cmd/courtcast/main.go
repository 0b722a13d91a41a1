package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/courtcast/internal/api/rest"
	"github.com/fortuna/courtcast/internal/api/websocket"
	"github.com/fortuna/courtcast/internal/app"
	"github.com/fortuna/courtcast/internal/config"
	"github.com/fortuna/courtcast/internal/jobs"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/scheduler"
)

const (
	serviceName     = "courtcast"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.AppEnv)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("courtcast stopped with error")
	}
	log.Info().Msg("courtcast stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("service", serviceName).Str("version", serviceVersion).Msg("starting")

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := websocket.NewHub()
	a.Events.Subscribe(hub)

	runner := jobs.NewRunner(a.JobHandlers(), jobs.Options{})
	runner.Start()

	var sched *scheduler.Scheduler
	if cfg.EnableScheduler {
		sched = scheduler.New(a.SchedulerConfig(), a.ScheduledTasks())
		if err := sched.Start(ctx); err != nil {
			return err
		}
		for _, e := range sched.Entries() {
			log.Info().Str("task", e.Name).Str("schedule", e.Schedule).Time("next", e.Next).Msg("task scheduled")
		}
	}

	restServer := rest.NewServer(cfg.APIAddr(), rest.Deps{
		Games:       a.Games,
		Players:     a.Players,
		League:      a.League,
		Predictions: a.Predictions,
		Jobs:        runner,
		Checks: map[string]rest.HealthChecker{
			"database": a.DB,
			"cache":    a.Cache,
		},
		Season: cfg.CurrentSeason,
	})
	wsServer := websocket.NewServer(fmt.Sprintf("%s:%d", cfg.APIHost, cfg.WSPort), hub, nil)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.APIHost, cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(restServer.Start)
	g.Go(wsServer.Start)
	g.Go(func() error {
		log.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("scheduler did not stop cleanly")
			}
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("job runner did not stop cleanly")
		}
		for name, srv := range map[string]interface {
			Shutdown(context.Context) error
		}{"rest": restServer, "websocket": wsServer, "metrics": metricsServer} {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("server", name).Msg("shutdown error")
			}
		}
		return nil
	})

	log.Info().
		Str("rest", cfg.APIAddr()).
		Int("websocket_port", cfg.WSPort).
		Int("metrics_port", cfg.MetricsPort).
		Msg("courtcast started")
	return g.Wait()
}
