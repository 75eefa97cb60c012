package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/flashvault/internal/audit"
	"github.com/mrlokans/flashvault/internal/config"
	"github.com/mrlokans/flashvault/internal/database"
	"github.com/mrlokans/flashvault/internal/database/imports"
	"github.com/mrlokans/flashvault/internal/exporters"
	http_controllers "github.com/mrlokans/flashvault/internal/http"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/scheduler"
	"github.com/mrlokans/flashvault/internal/tasks"
)

// vaultProbeName is touched and removed to check the vault is writable.
const vaultProbeName = ".flashvault"

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	if cfg.Vault.Dir == "" {
		log.Printf("WARNING: Vault directory is not set. Imports will only be recorded, not exported. Set 'VAULT_DIR' environment variable to enable.")
	} else {
		log.Printf("Checking vault directory: %s\n", cfg.Vault.Dir)
		if err := checkVaultWritable(cfg.Vault.Dir); err != nil {
			log.Fatalf("%v", err)
			return
		}
		log.Printf("Vault directory %s is writable\n", cfg.Vault.Dir)
	}

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    cfg.HTTP.Address(),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s\n", cfg.HTTP.Address())
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be caught, so don't need to add it
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

// checkVaultWritable verifies dir exists, is a directory, and accepts new files.
func checkVaultWritable(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("vault directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("vault directory %s is not accessible: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path %s is not a directory", dir)
	}

	probe := filepath.Join(dir, vaultProbeName)
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("vault directory %s is not writable: %w", dir, err)
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("could not remove the test file from the vault directory %s: %w", dir, err)
	}
	return nil
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Flashvault v%s", version)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	history := imports.NewRepository(db.DB)

	// Cards go to the vault only when one is configured
	var exporter importers.Exporter
	if cfg.Vault.Dir != "" {
		exporter = exporters.NewVaultExporter(cfg.Vault.Dir, cfg.Vault.ExportPath)
	}

	// Create auditor for keeping uploaded packages and import reports
	auditor := audit.NewAuditor(cfg.Audit.Dir)

	pipeline := importers.NewPipeline(importers.WithWorkers(cfg.Import.Workers))
	importService := importers.NewImportService(pipeline, exporter, history).WithAuditor(auditor)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		// Register task queues
		taskClient.Register(
			tasks.NewImportPackageQueue(importService),
			tasks.NewCleanupImportHistoryQueue(history),
		)

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		if cfg.Import.HistoryRetentionDays > 0 {
			if err := taskClient.EnqueueHistoryCleanup(cfg.Import.HistoryRetentionDays); err != nil {
				log.Printf("WARNING: %v", err)
			}
		}
	} else {
		log.Printf("Task queue disabled: asynchronous imports and history cleanup are unavailable")
	}

	// Start inbox scheduler if enabled
	var inbox *scheduler.InboxScheduler
	if cfg.Inbox.Enabled {
		inbox = scheduler.NewInboxScheduler(cfg.Inbox.Dir, cfg.Inbox.Schedule, importService, history)
		if err := inbox.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start inbox scheduler: %v", err)
		}
	}

	// Build router configuration with all dependencies
	routerCfg := http_controllers.RouterConfig{
		Importer:       importService,
		Packages:       auditor,
		History:        history,
		Database:       db,
		MaxPackageSize: cfg.Import.MaxPackageSize(),
		VaultDir:       cfg.Vault.Dir,
		Version:        version,
	}
	if taskClient != nil {
		routerCfg.TaskClient = taskClient
	}

	router := http_controllers.NewRouter(routerCfg)

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		if inbox != nil {
			inbox.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
