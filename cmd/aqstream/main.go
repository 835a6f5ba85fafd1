// aqstream subscribes to live air-quality readings and streams them to the
// console, degrading to REST polling when the realtime channel is down.
// Usage: go run ./cmd/aqstream --config configs/aqstream.example.yaml --station sfo-mission-03
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/breatheio/realtime/internal/api"
	"github.com/breatheio/realtime/internal/coalesce"
	"github.com/breatheio/realtime/internal/config"
	"github.com/breatheio/realtime/internal/fallback"
	"github.com/breatheio/realtime/internal/health"
	"github.com/breatheio/realtime/internal/model"
	"github.com/breatheio/realtime/internal/scheduler"
	"github.com/breatheio/realtime/internal/subscription"
	"github.com/breatheio/realtime/internal/transport"
	"github.com/breatheio/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/aqstream.example.yaml", "path to config file")
	station := flag.String("station", "", "station ID to follow (overrides the configured channel)")
	verbose := flag.Bool("verbose", false, "print full reading JSON")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *station != "" {
		cfg.Realtime.Channel = "readings:" + *station
		cfg.Realtime.Table = "readings"
		cfg.Realtime.Predicate = "station_id=eq." + *station
	}

	logger.Info("aqstream starting",
		"version", version.String(),
		"channel", cfg.Realtime.Channel,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiClient := api.NewClient(cfg.API.RestURL, cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	socket := transport.NewSocket(transport.SocketConfig{
		URL:               cfg.Realtime.WSURL,
		APIKey:            cfg.API.APIKey,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Realtime.HeartbeatTimeout,
		JoinTimeout:       cfg.Realtime.JoinTimeout,
	}, transport.WithLogger(logger))

	if err := socket.Connect(ctx); err != nil {
		// The subscription manager retries and the controller falls back
		// to polling, so a dead socket at startup is not fatal.
		logger.Warn("initial socket connect failed", "error", err)
	}
	defer socket.Close()

	queue, err := coalesce.New(coalesce.Options[transport.Envelope]{
		Handler:    func(env transport.Envelope) { printEnvelope(env, *verbose) },
		KeyFunc:    envelopeKey(cfg.Coalesce.DedupeKey),
		MaxSize:    cfg.Coalesce.MaxSize,
		Strategy:   flushStrategy(cfg.Coalesce),
		OnOverflow: func(env transport.Envelope) { logger.Warn("reading dropped", "key", env.Key) },
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}
	defer queue.Cancel()

	stationID := *station
	if stationID == "" {
		// Channel topics follow "readings:<station>".
		if _, id, ok := strings.Cut(cfg.Realtime.Channel, ":"); ok {
			stationID = id
		} else {
			stationID = cfg.Realtime.Channel
		}
	}
	ctrl := fallback.NewController(fallback.Config{
		PollInterval:   cfg.Fallback.PollInterval,
		PollTimeout:    cfg.Fallback.PollTimeout,
		MaxRetries:     cfg.Fallback.MaxRetries,
		RetryBaseDelay: cfg.Fallback.RetryBaseDelay,
		RetryMaxDelay:  cfg.Fallback.RetryMaxDelay,
	}, func(ctx context.Context) error {
		readings, err := apiClient.GetLatestReadings(ctx, stationID, cfg.Fallback.PollLimit)
		if err != nil {
			return err
		}
		for _, r := range readings {
			printReading(r.ToModel(), *verbose)
		}
		return nil
	},
		fallback.WithLogger(logger),
		fallback.WithOnState(func(s fallback.State) {
			logger.Info("delivery mode changed", "state", s)
		}),
	)

	mgr, err := subscription.NewManager(subscription.Config{
		Channel: cfg.Realtime.Channel,
		Filter: transport.Filter{
			Event:     transport.EventKind(cfg.Realtime.Event),
			Schema:    cfg.Realtime.Schema,
			Table:     cfg.Realtime.Table,
			Predicate: cfg.Realtime.Predicate,
		},
		Disabled:       cfg.Realtime.Disabled,
		MaxRetries:     cfg.Realtime.MaxRetries,
		ConnectTimeout: cfg.Realtime.ConnectTimeout,
		RetryBaseDelay: cfg.Realtime.RetryBaseDelay,
		RetryMaxDelay:  cfg.Realtime.RetryMaxDelay,
	}, socket, queue.Enqueue,
		subscription.WithLogger(logger),
		subscription.WithOnStatus(ctrl.ObserveStatus),
	)
	if err != nil {
		logger.Error("failed to build subscription", "error", err)
		os.Exit(1)
	}

	ctrl.Bind(mgr)
	if err := ctrl.Start(ctx); err != nil {
		logger.Error("failed to start delivery controller", "error", err)
		os.Exit(1)
	}

	monitor := health.NewMonitor(health.Config{
		CheckInterval:  cfg.Health.CheckInterval,
		ReconnectDelay: cfg.Health.ReconnectDelay,
	}, socket,
		health.WithLogger(logger),
		health.WithOnChange(func(h health.Health) {
			logger.Debug("connection health",
				"status", h.Status,
				"quality", h.Quality,
			)
		}),
	)
	monitor.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := monitor.Snapshot()
				logger.Info("stats",
					"mode", ctrl.State(),
					"subscription", mgr.State(),
					"quality", snap.Quality,
					"queued", queue.Len(),
				)
			}
		}
	})

	g.Go(func() error {
		stations, err := apiClient.GetStations(gctx)
		if err != nil {
			logger.Warn("station listing unavailable", "error", err)
			return nil
		}
		logger.Info("station registry loaded", "stations", len(stations))
		return nil
	})

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutting down...")

	ctrl.Stop()
	monitor.Stop()
	queue.Flush()
	if err := g.Wait(); err != nil {
		logger.Error("worker error", "error", err)
	}

	logger.Info("shutdown complete")
}

// flushStrategy maps the configured strategy name onto a scheduler strategy.
func flushStrategy(c config.CoalesceConfig) scheduler.Strategy {
	switch c.Strategy {
	case "idle":
		return scheduler.Idle(c.IdleTimeout)
	case "frame":
		return scheduler.Frame()
	case "microtask":
		return scheduler.Microtask()
	default:
		return scheduler.Debounce(c.DebounceDelay)
	}
}

// envelopeKey returns a dedupe key function, or nil for plain FIFO delivery.
func envelopeKey(mode string) func(transport.Envelope) string {
	if mode == "" {
		return nil
	}
	return func(env transport.Envelope) string { return env.Key }
}

func printEnvelope(env transport.Envelope, verbose bool) {
	var r model.Reading
	if err := json.Unmarshal(env.New, &r); err != nil {
		fmt.Printf("[%s] key=%s (unparsed payload)\n", env.Event, env.Key)
		return
	}
	printReading(r, verbose)
}

func printReading(r model.Reading, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(r, "", "  ")
		fmt.Printf("[READING] %s\n", data)
		return
	}
	fmt.Printf("[READING] station=%s aqi=%d (%s) pm25=%.1f recorded=%s\n",
		r.StationID, r.AQI, model.CategoryForAQI(r.AQI), r.PM25,
		r.RecordedAt.Format(time.RFC3339))
}
