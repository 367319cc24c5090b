package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/instantcocoa/minos/migrations"
	"github.com/instantcocoa/minos/pkg/cache"
	"github.com/instantcocoa/minos/pkg/config"
	"github.com/instantcocoa/minos/pkg/database"
	"github.com/instantcocoa/minos/pkg/httpapi"
	"github.com/instantcocoa/minos/pkg/llm"
	"github.com/instantcocoa/minos/pkg/telemetry"
	"github.com/instantcocoa/minos/services/evals"
	"github.com/instantcocoa/minos/services/models"
	"github.com/instantcocoa/minos/services/runs"
)

const serviceName = "minos"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// envSecretSource resolves API key references as environment variable
// names. Model configs store the reference, never the key itself.
type envSecretSource struct{}

func (envSecretSource) Secret(ref string) (string, error) {
	value := os.Getenv(ref)
	if value == "" {
		return "", fmt.Errorf("secret not set: %s", ref)
	}
	return value, nil
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     serviceName,
		ServiceVersion:  cfg.Version,
		Environment:     cfg.Environment,
		OTLPEndpoint:    cfg.OTLPEndpoint,
		TracingEnabled:  cfg.TracingEnabled,
		TracingSampling: cfg.TracingSampling,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tp.Shutdown(ctx)

	logger := tp.Logger()

	var (
		modelStore models.Store = models.NewMemoryStore()
		evalStore  evals.Store  = evals.NewMemoryStore()
		runStore   runs.Store   = runs.NewMemoryStore()
	)

	if cfg.UsePostgresStorage() {
		db, err := database.Connect(ctx, &database.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		db = db.WithLogger(logger)

		migrator := database.NewMigrator(db, "public").WithLogger(logger)
		if err := migrator.LoadMigrations(migrations.FS, "."); err != nil {
			return fmt.Errorf("failed to load migrations: %w", err)
		}
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}

		modelStore = models.NewPostgresStore(db)
		evalStore = evals.NewPostgresStore(db)
		runStore = runs.NewPostgresStore(db)
	}

	// Run status polling works without Redis; the cache is an optimization.
	var cacheClient *cache.Client
	redisCfg := cache.DefaultConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.Password = cfg.RedisPassword
	if c, err := cache.Connect(ctx, redisCfg); err != nil {
		logger.Warn("redis unavailable, run status caching disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		cacheClient = c.WithLogger(logger).WithKeyPrefix("minos")
		defer cacheClient.Close()
	}

	client := llm.NewClient()

	modelsSvc := models.NewModelsService(modelStore, envSecretSource{})
	evalsSvc := evals.NewEvalsService(evalStore, modelsSvc, client, logger, cfg.EvalConcurrency, cfg.InvokeTimeout)
	runsSvc := runs.NewRunsService(runStore, evalsSvc, modelsSvc, client, cacheClient, logger, cfg.EvalConcurrency, cfg.InvokeTimeout)

	router := mux.NewRouter()
	models.NewHandler(logger, modelsSvc).Register(router)
	evals.NewHandler(logger, evalsSvc).Register(router)
	runs.NewHandler(logger, runsSvc).Register(router)

	router.Handle("/metrics", httpapi.MetricsHandler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	serverCfg := httpapi.DefaultServerConfig(cfg.HTTPPort, serviceName)
	server := httpapi.NewServer(serverCfg, logger, router)

	logger.Info("starting minos server",
		"port", cfg.HTTPPort,
		"env", cfg.Environment,
		"storage", string(cfg.StorageBackend),
		"concurrency", cfg.EvalConcurrency)

	return server.Run(ctx)
}
