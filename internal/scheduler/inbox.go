package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
)

// Subfolders of the inbox that receive handled packages.
const (
	ProcessedDirName = "processed"
	FailedDirName    = "failed"
)

// PackageImporter runs one package import end to end.
type PackageImporter interface {
	ImportPackage(ctx context.Context, in importers.PackageInput) (services.ImportResult, error)
}

// ImportedLookup finds a successful earlier import of the same package.
type ImportedLookup interface {
	GetByDigest(sha256 string) (*entities.ImportSession, error)
}

// SweepResult summarizes one pass over the inbox.
type SweepResult struct {
	Imported int
	Skipped  int
	Failed   int
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// InboxScheduler periodically imports every package dropped in a directory
// and moves it to processed/ or failed/ afterwards.
type InboxScheduler struct {
	dir      string
	schedule string
	importer PackageImporter
	lookup   ImportedLookup

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	sweepMu    sync.Mutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewInboxScheduler creates a new scheduler instance. lookup may be nil, in
// which case packages are imported again even if they were seen before.
func NewInboxScheduler(dir, schedule string, importer PackageImporter, lookup ImportedLookup) *InboxScheduler {
	return &InboxScheduler{
		dir:      dir,
		schedule: schedule,
		importer: importer,
		lookup:   lookup,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start begins the scheduler.
func (s *InboxScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	schedule, err := cronParser.Parse(s.schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	var runCtx context.Context
	runCtx, s.cancelFunc = context.WithCancel(ctx)
	s.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.Sweep(runCtx); err != nil {
			log.Printf("Inbox scheduler: sweep failed: %v", err)
		}
	}))

	s.cron.Start()
	s.isRunning = true

	log.Printf("Inbox scheduler: watching %s with schedule '%s'. Next run: %v",
		s.dir, s.schedule, schedule.Next(time.Now()))

	// Monitor for context cancellation
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep.
func (s *InboxScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Cancel first so a sweep in progress stops between packages.
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron.Remove(s.entryID)

	s.isRunning = false

	log.Printf("Inbox scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *InboxScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sweep will occur
func (s *InboxScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	entry := s.cron.Entry(s.entryID)
	if !entry.Valid() {
		return nil
	}
	t := entry.Next
	return &t
}

// Sweep imports every package currently in the inbox. Only one sweep runs
// at a time; on cancellation the remaining packages stay in place.
func (s *InboxScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	var result SweepResult
	packages, err := s.pending()
	if err != nil {
		return result, err
	}
	if len(packages) == 0 {
		return result, nil
	}

	log.Printf("Inbox scheduler: found %d package(s)", len(packages))
	startTime := time.Now()

	for _, path := range packages {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := filepath.Base(path)
		if s.alreadyImported(path) {
			log.Printf("Inbox scheduler: %s was already imported, skipping", name)
			result.Skipped++
			s.move(path, ProcessedDirName)
			continue
		}

		imported, err := s.importer.ImportPackage(ctx, importers.PackageInput{
			Name:    name,
			Path:    path,
			Trigger: entities.ImportTriggerInbox,
		})
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return result, err
		case err != nil:
			log.Printf("Inbox scheduler: import of %s failed (session %s): %v", name, imported.SessionID, err)
			result.Failed++
			s.move(path, FailedDirName)
		default:
			result.Imported++
			s.move(path, ProcessedDirName)
		}
	}

	log.Printf("Inbox scheduler: imported %d, skipped %d, failed %d in %v",
		result.Imported, result.Skipped, result.Failed, time.Since(startTime).Round(time.Millisecond))
	return result, nil
}

// pending lists the packages at the top level of the inbox, sorted by name.
func (s *InboxScheduler) pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}

	var packages []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".apkg") {
			continue
		}
		packages = append(packages, filepath.Join(s.dir, entry.Name()))
	}
	sort.Strings(packages)
	return packages, nil
}

func (s *InboxScheduler) alreadyImported(path string) bool {
	if s.lookup == nil {
		return false
	}
	digest, err := importers.FileDigest(path)
	if err != nil {
		log.Printf("Inbox scheduler: failed to hash %s: %v", path, err)
		return false
	}
	session, err := s.lookup.GetByDigest(digest)
	if err != nil {
		log.Printf("Inbox scheduler: failed to look up %s: %v", path, err)
		return false
	}
	return session != nil
}

// move files a handled package away. An existing file of the same name gets
// a timestamp prefix instead of being overwritten.
func (s *InboxScheduler) move(path, subdir string) {
	targetDir := filepath.Join(s.dir, subdir)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		log.Printf("Inbox scheduler: failed to create %s: %v", targetDir, err)
		return
	}

	target := filepath.Join(targetDir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(targetDir, time.Now().Format("20060102-150405.000")+"-"+filepath.Base(path))
	}
	if err := os.Rename(path, target); err != nil {
		log.Printf("Inbox scheduler: failed to move %s to %s: %v", path, targetDir, err)
	}
}
