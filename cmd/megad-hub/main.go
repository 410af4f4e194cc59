package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/db"
	"github.com/thatsimonsguy/megad-hub/internal/api"
	"github.com/thatsimonsguy/megad-hub/internal/config"
	"github.com/thatsimonsguy/megad-hub/internal/controller"
	"github.com/thatsimonsguy/megad-hub/internal/datadog"
	"github.com/thatsimonsguy/megad-hub/internal/exporter"
	"github.com/thatsimonsguy/megad-hub/internal/logging"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/mqtt"
	"github.com/thatsimonsguy/megad-hub/internal/notifications"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
	"github.com/thatsimonsguy/megad-hub/internal/store"
	"github.com/thatsimonsguy/megad-hub/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Int("controllers", len(cfg.Controllers)).
		Msg("Starting MegaD hub")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	datadog.InitMetrics(cfg.Datadog)
	shutdown.Register("datadog", datadog.Close)

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open controller database")
	}
	shutdown.Register("db", func() { dbConn.Close() })

	if err := db.SeedDatabase(dbConn, cfg.Controllers); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed controller database")
	}
	entries, err := db.GetEnabledControllers(dbConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read controllers")
	}

	opts := controller.Options{
		Interval:    cfg.PollInterval(),
		Timeout:     cfg.PollTimeout(),
		RetryBudget: cfg.RetryBudget,
		RevertDelay: cfg.RevertDelay(),
	}
	if n := notifications.New(cfg.NtfyTopic); n != nil {
		opts.Notifier = n
	}

	metrics := exporter.New()
	registry := controller.NewRegistry()
	shutdown.Register("controllers", func() {
		for _, c := range registry.All() {
			registry.Unregister(c.ID())
		}
	})

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled() {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Error().Err(err).Msg("MQTT disabled")
		} else {
			shutdown.Register("mqtt", client.Close)
			bridge = mqtt.NewBridge(client, cfg.MQTT.TopicPrefix, registry)
			if err := bridge.Listen(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to subscribe to MQTT command topics")
			}
		}
	}

	for _, e := range entries {
		start := func(ctx context.Context) (*controller.Coordinator, error) {
			return startController(ctx, cfg, dbConn, e, opts)
		}
		go setupController(ctx, e.ID, setupBackoff, opts.Notifier, start, func(c *controller.Coordinator) {
			metrics.Watch(c)
			if bridge != nil {
				bridge.Watch(c)
			}
			if err := registry.Register(c); err != nil {
				log.Error().Err(err).Str("controller", e.ID).Msg("Failed to register controller")
				c.Close()
				return
			}
			c.Run(ctx)
		})
	}

	server := api.NewServer(ctx, registry, metrics.Handler())
	go func() {
		if err := server.Start(ctx, cfg.ListenAddr); err != nil {
			shutdown.ShutdownWithError(err, "HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Signal received, shutting down")
	shutdown.Shutdown()
}

// startController loads the controller config, from its dump or by scraping,
// and runs the first poll.
func startController(ctx context.Context, cfg config.Config, dbConn *sql.DB, e db.Entry, opts controller.Options) (*controller.Coordinator, error) {
	client := protocol.NewClient(e.Host, e.Password, cfg.RequestTimeout())
	acq := scraper.NewAcquirer(e.ID, client, store.New(e.ConfigFile), cfg.RequestGap())

	devCfg, err := acq.Acquire(ctx, e.RefreshConfig)
	if err != nil {
		return nil, err
	}
	if e.RefreshConfig {
		if err := db.SetRefreshConfig(dbConn, e.ID, false); err != nil {
			log.Warn().Err(err).Str("controller", e.ID).Msg("Failed to clear config refresh flag")
		}
	}

	device := megad.New(e.ID, e.Host, devCfg, client, megad.Options{RequestGap: cfg.RequestGap()})
	c := controller.New(device, opts)
	if err := c.FirstRefresh(ctx); err != nil {
		c.Close()
		return nil, err
	}
	log.Info().
		Str("controller", e.ID).
		Str("host", e.Host).
		Str("firmware", device.Board().Software).
		Msg("Controller ready")
	return c, nil
}
