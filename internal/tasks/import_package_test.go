package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
	"github.com/mrlokans/flashvault/internal/testutil"
)

type mockImporter struct {
	inputs []importers.PackageInput
	err    error
}

func (m *mockImporter) ImportPackage(_ context.Context, in importers.PackageInput) (services.ImportResult, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return services.ImportResult{SessionID: "s1"}, m.err
	}
	return services.ImportResult{SessionID: "s1", Report: &entities.ImportReport{Succeeded: 9}}, nil
}

type mockCleaner struct {
	cutoff time.Time
}

func (m *mockCleaner) DeleteOlderThan(cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return 4, nil
}

// useConfig makes cfg the active queue configuration for one test.
func useConfig(t *testing.T, cfg Config) {
	t.Helper()
	previous := activeConfig.Load()
	setActiveConfig(cfg)
	t.Cleanup(func() { activeConfig.Store(previous) })
}

func TestImportPackageTaskConfig(t *testing.T) {
	settings := DefaultConfig()
	settings.MaxRetries = 5
	settings.TaskTimeout = 10 * time.Minute
	settings.RetryDelay = 2 * time.Second
	settings.RetentionDuration = time.Hour
	useConfig(t, settings)

	cfg := ImportPackageTask{Path: "/tmp/x.apkg"}.Config()

	assert.Equal(t, "import_package", cfg.Name)
	assert.Equal(t, 1, cfg.MaxAttempts, "imports are never retried")
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Backoff)
	require.NotNil(t, cfg.Retention)
	assert.Equal(t, time.Hour, cfg.Retention.Duration)
	require.NotNil(t, cfg.Retention.Data)
	assert.True(t, cfg.Retention.Data.OnlyFailed)
}

func TestCurrentConfig_DefaultsWithoutClient(t *testing.T) {
	previous := activeConfig.Load()
	activeConfig.Store(nil)
	t.Cleanup(func() { activeConfig.Store(previous) })

	assert.Equal(t, DefaultConfig(), currentConfig())
}

func TestImportPackageProcessor(t *testing.T) {
	t.Run("passes the task to the importer", func(t *testing.T) {
		importer := &mockImporter{}
		process := ImportPackageProcessor(importer)

		err := process(context.Background(), ImportPackageTask{Path: "/tmp/x.apkg", Name: "deck.apkg", DryRun: true})
		require.NoError(t, err)

		require.Len(t, importer.inputs, 1)
		assert.Equal(t, importers.PackageInput{
			Name:    "deck.apkg",
			Path:    "/tmp/x.apkg",
			Trigger: entities.ImportTriggerTask,
			DryRun:  true,
		}, importer.inputs[0])
	})

	t.Run("returns import errors", func(t *testing.T) {
		process := ImportPackageProcessor(&mockImporter{err: errors.New("corrupt")})

		err := process(context.Background(), ImportPackageTask{Name: "deck.apkg"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session s1")
	})

	t.Run("fails without importer", func(t *testing.T) {
		err := ImportPackageProcessor(nil)(context.Background(), ImportPackageTask{})
		assert.Error(t, err)
	})
}

func TestImportPackageQueue_EndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(filepath.Join(tmpDir, "test.db"), cfg)
	require.NoError(t, err)
	defer client.Close()

	done := make(chan services.ImportResult, 1)
	service := importers.NewImportService(importers.NewPipeline(), nil, nil)
	client.Register(NewImportPackageQueue(notifyingImporter{service: service, done: done}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)

	path := testutil.StandardPackage().WriteFile(t, tmpDir, "deck.apkg")
	taskID, err := client.EnqueueImport(ImportPackageTask{Path: path, Name: "deck.apkg"})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	select {
	case result := <-done:
		require.NotNil(t, result.Report)
		assert.Equal(t, 9, result.Report.Succeeded)
	case <-time.After(10 * time.Second):
		t.Fatal("import task was not executed within timeout")
	}
}

type notifyingImporter struct {
	service *importers.ImportService
	done    chan<- services.ImportResult
}

func (n notifyingImporter) ImportPackage(ctx context.Context, in importers.PackageInput) (services.ImportResult, error) {
	result, err := n.service.ImportPackage(ctx, in)
	n.done <- result
	return result, err
}

func TestCleanupImportHistoryProcessor(t *testing.T) {
	cleaner := &mockCleaner{}
	process := CleanupImportHistoryProcessor(cleaner)

	require.NoError(t, process(context.Background(), CleanupImportHistoryTask{RetentionDays: 7}))
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), cleaner.cutoff, time.Minute)

	require.NoError(t, process(context.Background(), CleanupImportHistoryTask{}))
	assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), cleaner.cutoff, time.Minute)

	assert.Error(t, CleanupImportHistoryProcessor(nil)(context.Background(), CleanupImportHistoryTask{}))
}

func TestCleanupImportHistoryTaskConfig(t *testing.T) {
	settings := DefaultConfig()
	settings.MaxRetries = 2
	settings.RetryDelay = 30 * time.Second
	useConfig(t, settings)

	cfg := CleanupImportHistoryTask{}.Config()

	assert.Equal(t, "cleanup_import_history", cfg.Name)
	assert.Equal(t, 3, cfg.MaxAttempts, "first attempt plus retries")
	assert.Equal(t, 30*time.Second, cfg.Backoff)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}
