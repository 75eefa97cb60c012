package tasks

import (
	"sync/atomic"
	"time"

	"github.com/mikestefanello/backlite"
)

// Config controls the background queue that runs package imports and
// history cleanup.
type Config struct {
	// Workers is how many tasks run at once. Each running import holds one
	// decompressed collection on disk. Default: 2
	Workers int

	// MaxRetries bounds attempts of tasks that can succeed on a later try,
	// such as history cleanup. Imports always run once. Default: 3
	MaxRetries int

	// RetryDelay is the wait between attempts. Default: 1m
	RetryDelay time.Duration

	// TaskTimeout caps a single import, including the vault export. Default: 30m
	TaskTimeout time.Duration

	// ReleaseAfter hands a claimed task back to the queue when its worker
	// stopped reporting. Keep it above TaskTimeout. Default: 45m
	ReleaseAfter time.Duration

	// CleanupInterval is how often finished tasks are purged. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration keeps finished tasks queryable through the task
	// status endpoint. Default: 24h
	RetentionDuration time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        1 * time.Minute,
		TaskTimeout:       30 * time.Minute,
		ReleaseAfter:      45 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

// Queue settings are read from a task's Config method, which backlite calls
// on the zero value of the task type, so they are kept per process.
var activeConfig atomic.Pointer[Config]

func setActiveConfig(cfg Config) {
	activeConfig.Store(&cfg)
}

// currentConfig returns the settings of the last client created, or the
// defaults when there is none.
func currentConfig() Config {
	if cfg := activeConfig.Load(); cfg != nil {
		return *cfg
	}
	return DefaultConfig()
}

// retention keeps every finished task for the configured duration and the
// payload of failed ones only.
func retention(cfg Config) *backlite.Retention {
	return &backlite.Retention{
		Duration:   cfg.RetentionDuration,
		OnlyFailed: false,
		Data:       &backlite.RetainData{OnlyFailed: true},
	}
}
