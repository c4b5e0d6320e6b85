// Notify Core - multi-tenant notification subscription manager
//
// This is the main entry point for the notify-core service. It maintains
// websocket consumer connections to the remote IoT platform for every
// onboarded tenant, reconciles the remote notification subscriptions,
// republishes received notifications to MQTT and InfluxDB sinks, and
// exposes an HTTP management surface for operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iotstream/notify-core/internal/api"
	"github.com/iotstream/notify-core/internal/audit"
	"github.com/iotstream/notify-core/internal/infrastructure/config"
	"github.com/iotstream/notify-core/internal/infrastructure/database"
	"github.com/iotstream/notify-core/internal/infrastructure/influxdb"
	"github.com/iotstream/notify-core/internal/infrastructure/logging"
	"github.com/iotstream/notify-core/internal/infrastructure/mqtt"
	"github.com/iotstream/notify-core/internal/notification"
	"github.com/iotstream/notify-core/internal/platform"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting notify-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the audit trail database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	trail := audit.NewTrail(db.DB, log)

	// Notification sinks, assembled from the enabled integrations
	var sinks []notification.Sink

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		sinks = append(sinks, notification.NewMQTTSink(mqttClient))
	} else {
		log.Info("MQTT republish disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		sinks = append(sinks, notification.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Assemble the notification service
	svc := notification.NewService(notification.Options{
		Platform:   cfg.Platform,
		Reconnect:  cfg.Reconnect,
		Logger:     log,
		Dispatcher: notification.NewDispatcher(log, sinks...),
		Audit:      trail,
	})

	// Onboard configured tenants. A failed tenant stays onboarded with its
	// connections marked disconnected; the reconnect scheduler retries.
	for _, t := range cfg.Tenants {
		if onboardErr := svc.TenantAdded(ctx, platform.Credentials{
			Tenant:   t.ID,
			Username: t.Username,
			Password: t.Password,
		}); onboardErr != nil {
			log.Warn("tenant onboarding incomplete, scheduler will retry",
				"tenant", t.ID, "error", onboardErr)
		} else {
			log.Info("tenant onboarded", "tenant", t.ID)
		}
	}

	// Start the reconnect schedulers
	go svc.Run(ctx)

	// Start the HTTP management server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Service: svc,
		Trail:   trail,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("notify-core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NOTIFYCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NOTIFYCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when their integration is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
