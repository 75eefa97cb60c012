package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
)

// PackageImporter runs one package import end to end.
type PackageImporter interface {
	ImportPackage(ctx context.Context, in importers.PackageInput) (services.ImportResult, error)
}

// ImportPackageTask imports a package that was stored on disk by an upload.
type ImportPackageTask struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	DryRun bool   `json:"dry_run"`
}

// Config returns the queue configuration for package imports. Imports are
// not retried: a package that failed once fails the same way again.
func (t ImportPackageTask) Config() backlite.QueueConfig {
	cfg := currentConfig()
	return backlite.QueueConfig{
		Name:        "import_package",
		MaxAttempts: 1,
		Backoff:     cfg.RetryDelay,
		Timeout:     cfg.TaskTimeout,
		Retention:   retention(cfg),
	}
}

// ImportPackageProcessor creates a processor function for ImportPackageTask.
func ImportPackageProcessor(importer PackageImporter) backlite.QueueProcessor[ImportPackageTask] {
	return func(ctx context.Context, task ImportPackageTask) error {
		if importer == nil {
			return fmt.Errorf("package importer not configured")
		}

		result, err := importer.ImportPackage(ctx, importers.PackageInput{
			Name:    task.Name,
			Path:    task.Path,
			Trigger: entities.ImportTriggerTask,
			DryRun:  task.DryRun,
		})
		if err != nil {
			return fmt.Errorf("import package %s (session %s): %w", task.Name, result.SessionID, err)
		}

		log.Printf("[TASK] Imported package %s (session %s): %d cards, %d failed",
			task.Name, result.SessionID, result.Report.Succeeded, result.Report.Failed)
		return nil
	}
}

// NewImportPackageQueue creates a backlite queue for package imports.
func NewImportPackageQueue(importer PackageImporter) backlite.Queue {
	return backlite.NewQueue(ImportPackageProcessor(importer))
}
