package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// Client runs package imports and history cleanup in the background. It
// owns a backlite queue stored in its own SQLite file next to the history
// database.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu      sync.RWMutex
	started bool
}

// TasksDatabasePath returns where the queue of the history database at
// historyPath is stored: the same directory and name with a "-tasks" suffix.
// Imports run for minutes, so the queue lives in a separate file to keep
// history writes from waiting on queue locks.
func TasksDatabasePath(historyPath string) string {
	ext := filepath.Ext(historyPath)
	return strings.TrimSuffix(historyPath, ext) + "-tasks" + ext
}

// NewClient opens the queue database for historyPath and installs the
// backlite schema. cfg also becomes the timing of every queue registered
// afterwards.
func NewClient(historyPath string, cfg Config) (*Client, error) {
	db, err := sql.Open("sqlite3", TasksDatabasePath(historyPath)+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}

	// Workers each hold a connection; the rest serve enqueues and status
	// lookups from HTTP handlers.
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &stdLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	setActiveConfig(cfg)
	return &Client{
		client: client,
		db:     db,
		config: cfg,
	}, nil
}

// Register adds queues to the client. Call it before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start runs the workers until ctx is cancelled or Stop is called. Calling it
// twice has no effect.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.Printf("Task queue started with %d workers (import timeout %v)", c.config.Workers, c.config.TaskTimeout)
	c.client.Start(ctx)
}

// Stop waits for running imports to finish. It reports false when ctx
// expired first.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.RLock()
	if !c.started {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	log.Println("Stopping task queue...")
	if !c.client.Stop(ctx) {
		log.Println("Task queue stopped before all imports finished")
		return false
	}
	log.Println("Task queue stopped")
	return true
}

// Close closes the queue database. Call it after Stop.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Add starts enqueueing tasks of any registered queue.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.client.Add(tasks...)
}

// Status returns the state of a task, as shown by the task status endpoint.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

// EnqueueImport schedules a package import and returns the task id.
func (c *Client) EnqueueImport(task ImportPackageTask) (string, error) {
	ids, err := c.client.Add(task).Save()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue import of %s: %w", task.Name, err)
	}
	return ids[0], nil
}

// EnqueueHistoryCleanup schedules removal of old import sessions.
func (c *Client) EnqueueHistoryCleanup(retentionDays int) error {
	if _, err := c.client.Add(CleanupImportHistoryTask{RetentionDays: retentionDays}).Save(); err != nil {
		return fmt.Errorf("failed to enqueue history cleanup: %w", err)
	}
	return nil
}

// stdLogger sends backlite's messages to the process log.
type stdLogger struct{}

func (l *stdLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (l *stdLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
