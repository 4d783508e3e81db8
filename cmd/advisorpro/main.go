// AdvisorPro - auth and session core of a multi-tenant CRM for advisors.
//
// This is the main entry point. It loads configuration, opens the
// database, wires the session service with its audit and rate-limit
// collaborators, and serves the HTTP API until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/api"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/audit"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/config"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/database"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/influxdb"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/logging"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/mqtt"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/ratelimit"
	"github.com/subha-wp/advisorpro-crm-sub002/migrations"
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

// startupCheckTimeout bounds the dependency probe run before serving.
const startupCheckTimeout = 5 * time.Second

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	if cfg.Logging.Format == "text" {
		printBanner(cfg.App.Name)
	}
	log.Info("starting AdvisorPro",
		"version", version,
		"commit", commit,
		"build_date", date,
		"environment", cfg.App.Environment,
		"config", configPath,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	health := map[string]api.HealthChecker{"database": db}

	// Metrics
	var telemetry *api.Telemetry
	if cfg.Metrics.Enabled {
		telemetry, err = api.NewPrometheusTelemetry()
		if err != nil {
			return fmt.Errorf("initialising metrics: %w", err)
		}
		defer func() {
			if shutdownErr := telemetry.Shutdown(context.Background()); shutdownErr != nil {
				log.Error("error shutting down metrics", "error", shutdownErr)
			}
		}()
	}
	var metrics *api.Metrics
	if telemetry != nil {
		metrics = telemetry.Metrics
	}

	// Audit sinks: SQLite always, MQTT and InfluxDB when enabled.
	sinks := audit.MultiSink{audit.NewSQLiteSink(db.DB)}

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
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

		sinks = append(sinks, audit.NewMQTTSink(mqttClient))
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
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

		sinks = append(sinks, audit.NewInfluxSink(influxClient))
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var emitter auth.Emitter
	if cfg.Audit.Enabled {
		dispatcher := audit.NewDispatcher(
			audit.Config{BufferSize: cfg.Audit.BufferSize},
			sinks,
			log.With("component", "audit"),
			audit.WithDropHook(metrics.AuditDropped),
		)
		// Deferred after the sink closers so the queue drains before they close.
		defer func() {
			log.Info("draining audit queue")
			dispatcher.Close()
			if n := dispatcher.Dropped(); n > 0 {
				log.Warn("audit events dropped during run", "count", n)
			}
		}()
		emitter = dispatcher
	}

	// Rate guards: signup/login and refresh count in separate stores.
	var guard, refreshGuard *ratelimit.Guard
	if cfg.Security.RateLimit.Enabled {
		loginStore, refreshStore, closeStores, storeErr := newRateStores(ctx, cfg, health)
		if storeErr != nil {
			return storeErr
		}
		defer closeStores()
		guard = ratelimit.NewGuard(loginStore)
		refreshGuard = ratelimit.NewGuard(refreshStore)
		log.Info("rate limiting enabled", "backend", cfg.Security.RateLimit.Backend)
	}

	// Session core
	hasher, err := auth.NewHasher(auth.DefaultHashParams)
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}
	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     cfg.Security.JWT.Secret,
		Issuer:     cfg.Security.JWT.Issuer,
		AccessTTL:  cfg.Security.AccessTTL(),
		RefreshTTL: cfg.Security.RefreshTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:   auth.NewUserRepository(db.DB),
		Refresh: auth.NewRefreshStore(db.DB, hasher, auth.WithRefreshTTL(cfg.Security.RefreshTTL())),
		Codec:   codec,
		Hasher:  hasher,
		Audit:   emitter,
		Logger:  log.With("component", "auth"),
	})
	if err != nil {
		return fmt.Errorf("creating session service: %w", err)
	}

	checkCtx, cancelCheck := context.WithTimeout(ctx, startupCheckTimeout)
	err = healthCheck(checkCtx, health)
	cancelCheck()
	if err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}

	deps := api.Deps{
		Config:       cfg.API,
		App:          cfg.App,
		Security:     cfg.Security,
		Logger:       log,
		Auth:         svc,
		Resolver:     auth.NewResolver(codec, cfg.Security.Cookies.AccessName),
		Guard:        guard,
		RefreshGuard: refreshGuard,
		Metrics:      metrics,
		Health:       health,
		Version:      version,
	}
	if telemetry != nil {
		deps.MetricsHandler = telemetry.Handler
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("AdvisorPro started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// newRateStores builds the login and refresh rate-limit stores. Memory
// stores get a key ceiling each; Redis stores share one client under
// distinct prefixes and the client is registered as a health probe.
func newRateStores(ctx context.Context, cfg *config.Config, health map[string]api.HealthChecker) (login, refresh ratelimit.Store, closeFn func(), err error) {
	if cfg.Security.RateLimit.Backend != "redis" {
		maxKeys := cfg.Security.RateLimit.MaxKeys
		return ratelimit.NewMemoryStore(maxKeys), ratelimit.NewMemoryStore(maxKeys), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	loginStore := ratelimit.NewRedisStore(client, ratelimit.DefaultRedisPrefix+"login:")
	if pingErr := loginStore.HealthCheck(ctx); pingErr != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connecting to Redis: %w", pingErr)
	}
	health["redis"] = loginStore

	refreshStore := ratelimit.NewRedisStore(client, ratelimit.DefaultRedisPrefix+"refresh:")
	return loginStore, refreshStore, func() { _ = client.Close() }, nil
}

// getConfigPath returns the configuration file path.
// Uses ADVISORPRO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ADVISORPRO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck probes every registered dependency and returns the first
// failure in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// printBanner writes the ASCII banner shown in text-format logs.
func printBanner(name string) {
	figure.NewFigure(name, "cybermedium", true).Print()
	fmt.Println()
}
