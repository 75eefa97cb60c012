package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/testutil"
)

type fakeLookup struct {
	digests map[string]bool
}

func (f *fakeLookup) GetByDigest(sha256 string) (*entities.ImportSession, error) {
	if f.digests[sha256] {
		return &entities.ImportSession{PackageSHA256: sha256, Status: entities.ImportStatusCompleted}, nil
	}
	return nil, nil
}

func newTestScheduler(t *testing.T, lookup ImportedLookup) (*InboxScheduler, string) {
	t.Helper()
	dir := t.TempDir()
	service := importers.NewImportService(importers.NewPipeline(), nil, nil)
	return NewInboxScheduler(dir, "@every 1h", service, lookup), dir
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names
}

func TestInboxScheduler_Sweep(t *testing.T) {
	s, dir := newTestScheduler(t, nil)

	testutil.StandardPackage().WriteFile(t, dir, "a.apkg")
	testutil.StandardPackage().WriteFile(t, dir, "B.APKG")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.apkg"), []byte("not a zip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Imported: 2, Failed: 1}, result)
	assert.Equal(t, []string{"notes.txt"}, listNames(t, dir))
	assert.ElementsMatch(t, []string{"B.APKG", "a.apkg"}, listNames(t, filepath.Join(dir, ProcessedDirName)))
	assert.Equal(t, []string{"broken.apkg"}, listNames(t, filepath.Join(dir, FailedDirName)))
}

func TestInboxScheduler_Sweep_Empty(t *testing.T) {
	s, dir := newTestScheduler(t, nil)

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	_, err = os.Stat(filepath.Join(dir, ProcessedDirName))
	assert.True(t, os.IsNotExist(err))
}

func TestInboxScheduler_Sweep_MissingDir(t *testing.T) {
	service := importers.NewImportService(importers.NewPipeline(), nil, nil)
	s := NewInboxScheduler(filepath.Join(t.TempDir(), "missing"), "@every 1h", service, nil)

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read inbox")
}

func TestInboxScheduler_Sweep_SkipsImported(t *testing.T) {
	lookup := &fakeLookup{digests: map[string]bool{}}
	s, dir := newTestScheduler(t, lookup)

	path := testutil.StandardPackage().WriteFile(t, dir, "seen.apkg")
	digest, err := importers.FileDigest(path)
	require.NoError(t, err)
	lookup.digests[digest] = true

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Skipped: 1}, result)
	assert.Equal(t, []string{"seen.apkg"}, listNames(t, filepath.Join(dir, ProcessedDirName)))
}

func TestInboxScheduler_Sweep_NameCollision(t *testing.T) {
	s, dir := newTestScheduler(t, nil)

	testutil.StandardPackage().WriteFile(t, dir, "deck.apkg")
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	testutil.StandardPackage().WriteFile(t, dir, "deck.apkg")
	_, err = s.Sweep(context.Background())
	require.NoError(t, err)

	processed := listNames(t, filepath.Join(dir, ProcessedDirName))
	require.Len(t, processed, 2)
	assert.Contains(t, processed, "deck.apkg")
}

func TestInboxScheduler_Sweep_Cancelled(t *testing.T) {
	s, dir := newTestScheduler(t, nil)
	testutil.StandardPackage().WriteFile(t, dir, "deck.apkg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"deck.apkg"}, listNames(t, dir), "package stays in the inbox")
}

func TestInboxScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t, nil)

	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *next, time.Minute)

	// Starting twice is a no-op.
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())

	s.Stop()
}

func TestInboxScheduler_StopOnContextCancel(t *testing.T) {
	s, _ := newTestScheduler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestInboxScheduler_InvalidSchedule(t *testing.T) {
	service := importers.NewImportService(importers.NewPipeline(), nil, nil)
	s := NewInboxScheduler(t.TempDir(), "every tuesday", service, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")
	assert.False(t, s.IsRunning())
}
