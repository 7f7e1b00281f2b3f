package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fixora/auditreport/internal/adapter/backend"
	"github.com/fixora/auditreport/internal/adapter/cache"
	httpadapter "github.com/fixora/auditreport/internal/adapter/http"
	"github.com/fixora/auditreport/internal/adapter/persistence"
	"github.com/fixora/auditreport/internal/config"
	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/infra/auth"
	"github.com/fixora/auditreport/internal/infra/logger"
	"github.com/fixora/auditreport/internal/infra/ratelimit"
	"github.com/fixora/auditreport/internal/ports"
	"github.com/fixora/auditreport/internal/usecase"
)

// Version and build information
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const serviceName = "auditreport"

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Change Audit Reporting Service\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: serviceName,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Info(ctx, "Starting change audit reporting service", map[string]interface{}{
		"version":     Version,
		"environment": cfg.Server.Environment,
		"source":      cfg.Backend.Source,
	})

	// Validate has already loaded both zones once
	backendLoc, _ := cfg.BackendLocation()
	reportLoc, _ := cfg.ReportLocation()
	normalizer := backend.NewNormalizer(backendLoc)

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Security.RateLimitEnabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	source, closeSource, err := initEventSource(ctx, cfg, normalizer, redisClient, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event source: %v", err)
	}
	defer closeSource()

	reports := usecase.NewReportUseCase(source, normalizer, usecase.ReportConfig{
		DiffOptions: domain.DiffOptions{
			IgnoredFields:     cfg.Report.DiffIgnoredFields,
			MissingEqualsNull: cfg.Report.MissingEqualsNull,
		},
		DefaultLocation: reportLoc,
	}, appLogger)

	deps := httpadapter.Dependencies{
		Limiter: ratelimit.NewRateLimiter(ratelimit.Config{
			Enabled:  cfg.Security.RateLimitEnabled,
			Requests: cfg.Security.RateLimitRequests,
			Window:   cfg.Security.RateLimitWindow,
		}, redisClient, appLogger),
		Logger: appLogger,
	}
	if cfg.Security.AuthEnabled {
		verifier, err := auth.NewJWTService(cfg.Security.JWTSecret)
		if err != nil {
			log.Fatalf("Failed to initialize token verifier: %v", err)
		}
		deps.Verifier = verifier
	}

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowCredentials: cfg.Security.CORSCredentials,
		Version:          Version,
	}, reports, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Error during server shutdown", err, nil)
	}

	appLogger.Info(shutdownCtx, "Server stopped", nil)
}

// initEventSource builds the configured event source and a function releasing it
func initEventSource(
	ctx context.Context,
	cfg *config.Config,
	normalizer *backend.Normalizer,
	redisClient *redis.Client,
	appLogger logger.Logger,
) (ports.EventSource, func(), error) {
	if cfg.Backend.Source == config.SourcePostgres {
		db, err := initDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return persistence.NewPostgresEventSource(db, normalizer), func() { db.Close() }, nil
	}

	var responseCache ports.ResponseCache
	if cfg.Cache.Enabled && redisClient != nil {
		responseCache = cache.NewRedisResponseCache(redisClient)
	}

	client := backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout,
		CacheTTL: cfg.Cache.TTL,
	}, normalizer, responseCache, appLogger)

	return client, func() {}, nil
}

// initDatabase initializes the database connection
func initDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxConnections / 2)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
