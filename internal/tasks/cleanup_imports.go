package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// ImportHistoryCleaner provides the ability to delete old import sessions.
type ImportHistoryCleaner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// CleanupImportHistoryTask removes finished import sessions older than the
// configured retention period.
type CleanupImportHistoryTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for import history cleanup tasks.
// A cleanup touches one table, so it gets a short fixed timeout.
func (t CleanupImportHistoryTask) Config() backlite.QueueConfig {
	cfg := currentConfig()
	return backlite.QueueConfig{
		Name:        "cleanup_import_history",
		MaxAttempts: cfg.MaxRetries + 1,
		Backoff:     cfg.RetryDelay,
		Timeout:     2 * time.Minute,
		Retention:   retention(cfg),
	}
}

// CleanupImportHistoryProcessor creates a processor function for CleanupImportHistoryTask.
func CleanupImportHistoryProcessor(cleaner ImportHistoryCleaner) backlite.QueueProcessor[CleanupImportHistoryTask] {
	return func(ctx context.Context, task CleanupImportHistoryTask) error {
		if cleaner == nil {
			return fmt.Errorf("import history cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 90
		}
		cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

		deleted, err := cleaner.DeleteOlderThan(cutoff)
		if err != nil {
			return fmt.Errorf("cleanup import history: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d import sessions older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupImportHistoryQueue creates a backlite queue for import history cleanup tasks.
func NewCleanupImportHistoryQueue(cleaner ImportHistoryCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupImportHistoryProcessor(cleaner))
}
