// @title           LeadPilot Governance API
// @version         1.0.0
// @description     Governance and policy platform for an AI-native sales system: RBAC, policy enforcement, audit trail, approval workflow, and governed workflow execution
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT token or service key. For JWT: 'Bearer {token}'. For service key: 'Bearer {key}'"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. This keeps the scrape path off the public ingress and avoids rate-limiting middleware. Configure the port with LPG_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics.

// Package main is the entry point for the governance server binary.
// It dispatches four subcommands — serve, migrate, genkey, and version — via a
// simple switch on os.Args so the binary's full CLI surface is readable in one
// place without requiring a cobra dependency. The serve command runs
// auto-migration on startup so freshly deployed containers never need a
// separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadpilot/governance/internal/api"
	"github.com/leadpilot/governance/internal/audit"
	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/config"
	"github.com/leadpilot/governance/internal/db"
	"github.com/leadpilot/governance/internal/db/repositories"
	"github.com/leadpilot/governance/internal/governance"
	"github.com/leadpilot/governance/internal/policy"
	"github.com/leadpilot/governance/internal/rbac"
	"github.com/leadpilot/governance/internal/services"
	"github.com/leadpilot/governance/internal/telemetry"
	"github.com/leadpilot/governance/internal/workflow"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// genkey needs no configuration
	if command == "genkey" {
		return generateServiceKey()
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.LoadAndWatch(configPath, func(next *config.Config) {
		// Logging tunables apply live; everything else takes effect on restart
		telemetry.SetupLogger(next.Logging.Format, next.Logging.Level)
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("LeadPilot Governance v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, genkey, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log
	// output uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("security configuration error: auth.jwt_secret is required")
	}
	verifier, err := auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	// Connect to database
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database)

	// Run migrations automatically on startup
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		slog.Warn("Failed to get migration version", "error", err)
	} else {
		slog.Info("Database schema ready", "version", schemaVersion, "dirty", dirty)
	}

	ctx := context.Background()
	sqlxDB := sqlx.NewDb(database, "postgres")

	// Repositories
	rbacRepo := repositories.NewRBACRepository(sqlxDB)
	policyRepo := repositories.NewPolicyRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(sqlxDB)
	approvalRepo := repositories.NewApprovalRepository(sqlxDB)
	workflowRepo := repositories.NewWorkflowRepository(sqlxDB)

	// RBAC manager with the predefined role set
	rbacMgr := rbac.NewManager(rbacRepo, cfg.Governance.PermissionCacheTTL)
	if err := rbacMgr.SeedDefaultRoles(ctx); err != nil {
		return fmt.Errorf("failed to seed default roles: %w", err)
	}

	// Policy engine: stored rules plus the default rule set
	policyEngine, err := policy.NewEngine(ctx, policyRepo)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Audit manager with optional secondary shippers
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	defer shipper.Close()
	auditMgr := audit.NewManager(auditRepo, shipper)

	// Governance coordinator
	coordinator := governance.NewCoordinator(rbacMgr, policyEngine, auditMgr, approvalRepo)

	// Workflow engine with the AI-inference and task collaborators
	var invoker workflow.ToolInvoker
	if cfg.AITools.Endpoint != "" {
		invoker = services.NewAIToolClient(cfg.AITools.Endpoint, cfg.AITools.APIKey, cfg.AITools.CallTimeout)
	} else {
		slog.Warn("No AI tools endpoint configured, ai_tool steps will fail")
	}
	engine := workflow.NewEngine(workflow.Config{
		Invoker:    invoker,
		Tracker:    &services.LogTaskTracker{},
		Store:      workflowRepo,
		Authorizer: governance.StepAuthorizer(coordinator),
		MaxDelay:   cfg.Workflow.MaxDelay,
	})
	if err := workflow.RegisterDefaults(engine); err != nil {
		return fmt.Errorf("failed to register default workflows: %w", err)
	}

	// Redis backs distributed rate limiting when enabled
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	// Start Prometheus metrics endpoint on a dedicated port so it is not
	// reachable through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Create router
	router := api.NewRouter(cfg, &api.Dependencies{
		DB:          database,
		Verifier:    verifier,
		Users:       rbacRepo,
		RBAC:        rbacMgr,
		Policies:    policyEngine,
		Audit:       auditMgr,
		Coordinator: coordinator,
		Workflows:   engine,
		Redis:       rdb,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", cfg.Server.GetAddress())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}

// generateServiceKey mints a machine credential. The raw key is printed once
// and never stored; the bcrypt hash goes into auth.service_keys in the config.
func generateServiceKey() error {
	key, hash, displayPrefix, err := auth.GenerateServiceKey("lpg")
	if err != nil {
		return fmt.Errorf("failed to generate service key: %w", err)
	}

	fmt.Println("Service key generated. The raw key is shown ONCE; store it securely.")
	fmt.Println("")
	fmt.Printf("  Key:    %s\n", key)
	fmt.Printf("  Prefix: %s\n", displayPrefix)
	fmt.Println("")
	fmt.Println("Add the hash to the server configuration:")
	fmt.Println("")
	fmt.Println("  auth:")
	fmt.Println("    service_keys:")
	fmt.Println("      - user_id: <acting user id>")
	fmt.Printf("        hash: \"%s\"\n", hash)
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	// Connect to database
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("Running migrations", "direction", direction)

	// Run migrations
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Get current version
	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("Migration completed", "version", schemaVersion, "dirty", dirty)
	return nil
}
