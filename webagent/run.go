// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"webagent/platform/aiengine"
	"webagent/platform/artifacts"
	"webagent/platform/browser"
	"webagent/platform/llm"
	"webagent/platform/shared/logger"
	"webagent/platform/webagent/workflow"
)

// Run is the exported entry point for the WebAgent API service. It wires
// the database, Redis run lock, browser driver, engine sidecar, LLM
// provider and artifact store from configuration, then serves the HTTP API
// until the process exits.
func Run() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLog := logger.New("webagent")

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL (or DATABASE_HOST/DATABASE_PASSWORD) is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	repo := NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure task schema: %v", err)
	}
	store := workflow.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure workflow schema: %v", err)
	}
	log.Println("✅ Database connected, schema ensured")

	// The Redis run lock is advisory: without Redis the store's version
	// compare-and-set still prevents conflicting cache writes.
	var locker workflow.Locker = workflow.NoopLocker{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️  Redis unreachable (%v) - run lock disabled", err)
		} else {
			locker = workflow.NewRedisLocker(redisClient, 0)
			log.Println("✅ Redis run lock enabled")
		}
	}

	driver := browser.NewHTTPDriver(cfg.Browser.Endpoint, cfg.Browser.APIKey)
	engineClient := aiengine.New(aiengine.Options{
		BaseURL: cfg.Engine.Endpoint,
		APIKey:  cfg.Engine.APIKey,
	})

	var artifactStore artifacts.Store
	if cfg.Artifacts.Bucket != "" {
		s3Store, err := artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:         cfg.Artifacts.Bucket,
			Region:         cfg.Artifacts.Region,
			Endpoint:       cfg.Artifacts.Endpoint,
			ForcePathStyle: cfg.Artifacts.ForcePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to initialize screenshot store: %v", err)
		}
		artifactStore = s3Store
		log.Printf("✅ Screenshot artifacts stored in s3://%s", cfg.Artifacts.Bucket)
	}

	// Parameter extraction is optional: without a provider, runs use the
	// explicit parameter bindings from the request only.
	var extractor llm.Provider
	if cfg.LLM.APIKey != "" || cfg.LLM.APIKeySecretARN != "" || cfg.LLM.Provider == ProviderBedrock {
		extractor, err = llm.NewProvider(ctx, llm.Config{
			Provider:        cfg.LLM.Provider,
			Model:           cfg.LLM.Model,
			APIKey:          cfg.LLM.APIKey,
			APIKeySecretARN: cfg.LLM.APIKeySecretARN,
			Region:          cfg.LLM.Region,
		})
		if err != nil {
			log.Printf("⚠️  LLM provider unavailable (%v) - parameter extraction disabled", err)
			extractor = nil
		} else {
			log.Printf("✅ Parameter extraction via %s", extractor.Name())
		}
	}

	service := NewTaskService(TaskServiceOptions{
		Repo:      repo,
		Store:     store,
		Locker:    locker,
		Driver:    driver,
		Agent:     engineClient,
		Artifacts: artifactStore,
		Extractor: extractor,
		SessionOpts: browser.SessionOptions{
			Provider: browser.SessionProvider(cfg.Browser.Provider),
			Headless: cfg.Browser.Headless,
		},
		Logger: appLog,
	})

	router := mux.NewRouter()
	auth := NewAuthMiddleware(cfg.APISecret)
	if auth.Enabled() {
		log.Println("🔒 API authentication enabled")
	} else {
		log.Println("⚠️  WEBAGENT_API_SECRET not set - API authentication disabled")
	}

	NewHandler(service, repo).RegisterRoutes(router, auth)
	workflow.NewHandler(store, log.Default()).RegisterRoutes(router, auth.Wrap)

	router.HandleFunc("/health", healthHandler(repo)).Methods("GET")
	router.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(router)

	log.Printf("🚀 WebAgent API starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, corsHandler); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// healthHandler reports service and database health.
func healthHandler(repo *PostgresRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := repo.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"service":   "webagent-api",
			"timestamp": time.Now().UTC(),
			"version":   "1.0.0",
		}); err != nil {
			log.Printf("Error encoding health response: %v", err)
		}
	}
}
