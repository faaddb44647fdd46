package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RaufunNazin/bnetdiag/internal/api"
	"github.com/RaufunNazin/bnetdiag/internal/audit"
	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/cache"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/influxdb"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/metrics"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/mqtt"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logging.New(cfg.Logging, version))
		},
	}
}

// serve wires every component and blocks until ctx is cancelled.
// Deferred closes run in reverse order of construction.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error { //nolint:gocognit,gocyclo // linear startup sequence
	log.Info("starting netdiag",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	svc := topology.NewService(db, log)

	// Background workers share this context and stop before the stores close.
	workCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if cfg.Redis.Enabled {
		viewCache, cacheErr := cache.New(cfg.Redis, cfg.GetCacheTTL(), log)
		if cacheErr != nil {
			log.Warn("view cache unavailable, serving uncached", "error", cacheErr)
		} else {
			defer viewCache.Close()
			svc.SetCache(viewCache)
			health["redis"] = viewCache
			log.Info("view cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.GetCacheTTL())
		}
	}

	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.New(version, db.Stats)
		svc.AddListener(prom)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)
	svc.AddListener(recorder)
	go recorder.Run(workCtx)

	hub := api.NewHub(cfg.WebSocket, log)
	svc.AddListener(hub)
	go hub.Run(workCtx)

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health["mqtt"] = mqttClient

		publisher := mqtt.NewChangePublisher(mqttClient, log)
		svc.AddListener(publisher)
		go publisher.Run(workCtx)

		// Changes committed by other instances reach this instance's browsers too.
		if err := mqttClient.SubscribeChanges(func(ev mqtt.ChangeEvent) {
			hub.TopologyChanged(workCtx, ev.Change)
		}); err != nil {
			log.Warn("cross-instance change relay disabled", "error", err)
		}
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		svc.AddListener(influxClient)
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Topology: svc,
		Users:    auth.NewUserRepository(db.DB),
		Audit:    auditRepo,
		Recorder: recorder,
		Prom:     prom,
		Hub:      hub,
		Health:   health,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(workCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("netdiag ready", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	<-ctx.Done()
	log.Info("shutdown signal received")

	// Stop accepting requests, then let the audit queue drain.
	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	stopWorkers()
	<-recorder.Done()
	return nil
}
