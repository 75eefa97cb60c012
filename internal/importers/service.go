package importers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/flashvault/internal/apkg"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/services"
)

// PackageInput identifies a package to import. Path takes precedence over Data.
type PackageInput struct {
	Name    string
	Path    string
	Data    []byte
	Trigger entities.ImportTrigger
	DryRun  bool
}

// ImportService runs the pipeline, hands the result to the exporter and
// records the session in the import history. Every surface (CLI, HTTP,
// background task, inbox) goes through it.
type ImportService struct {
	pipeline *Pipeline
	exporter Exporter
	history  services.ImportHistory
	auditor  services.ReportAuditor
}

// WithAuditor keeps a copy of every produced report.
func (s *ImportService) WithAuditor(auditor services.ReportAuditor) *ImportService {
	s.auditor = auditor
	return s
}

// NewImportService creates a new ImportService. exporter and history may be
// nil: without an exporter every import is a dry run, without a history
// nothing is recorded.
func NewImportService(pipeline *Pipeline, exporter Exporter, history services.ImportHistory) *ImportService {
	return &ImportService{
		pipeline: pipeline,
		exporter: exporter,
		history:  history,
	}
}

// ImportPackage imports one package. The returned result carries the report
// whenever the pipeline got as far as producing one, even alongside an error.
func (s *ImportService) ImportPackage(ctx context.Context, in PackageInput) (services.ImportResult, error) {
	session := &entities.ImportSession{
		ExternalID:  uuid.NewString(),
		Trigger:     in.Trigger,
		PackageName: in.Name,
		Status:      entities.ImportStatusRunning,
		StartedAt:   time.Now(),
	}
	result := services.ImportResult{SessionID: session.ExternalID}

	digest, err := packageDigest(in)
	if err != nil {
		return result, fmt.Errorf("failed to read package: %w", err)
	}
	session.PackageSHA256 = digest
	s.record(session, true)

	var imported *Result
	if in.Path != "" {
		imported, err = s.pipeline.ImportFile(ctx, in.Path)
	} else {
		imported, err = s.pipeline.Import(ctx, in.Data)
	}
	if imported == nil {
		s.finish(session, nil, services.ExportResult{}, err)
		return result, err
	}
	defer imported.Close()

	result.Report = imported.Report
	importErr := err

	if importErr == nil && !in.DryRun && s.exporter != nil {
		result.Export, err = s.exporter.Export(ctx, imported.Report, imported)
		if err != nil {
			err = fmt.Errorf("failed to export: %w", err)
		}
	}

	s.finish(session, imported.Report, result.Export, err)
	if s.auditor != nil {
		if _, auditErr := s.auditor.SaveReport(session.ExternalID, imported.Report); auditErr != nil {
			log.Printf("Failed to save audit report for session %s: %v", session.ExternalID, auditErr)
		}
	}
	log.Printf("Imported package %s: %d/%d cards converted, %d failed, %d media files",
		in.Name, imported.Report.Succeeded, imported.Report.Total, imported.Report.Failed, len(imported.Report.Media))
	return result, err
}

func (s *ImportService) finish(session *entities.ImportSession, report *entities.ImportReport, export services.ExportResult, err error) {
	now := time.Now()
	session.CompletedAt = &now
	session.FilesWritten = export.CardsWritten + export.MediaWritten

	if report != nil {
		session.Decks = report.Decks
		session.NoteTypes = report.NoteTypes
		session.Notes = report.Notes
		session.CardsTotal = report.Total
		session.CardsSucceeded = report.Succeeded
		session.CardsFailed = report.Failed
		session.MediaFiles = len(report.Media)
		if len(report.Failures) > 0 {
			if failures, marshalErr := json.Marshal(report.Failures); marshalErr == nil {
				session.Failures = string(failures)
			}
		}
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		session.Status = entities.ImportStatusCancelled
		session.ErrorKind = "cancelled"
		session.Error = err.Error()
	case err != nil:
		session.Status = entities.ImportStatusFailed
		session.ErrorKind = apkg.Kind(err)
		session.Error = err.Error()
	case report != nil && report.Failed > 0:
		session.Status = entities.ImportStatusPartial
	default:
		session.Status = entities.ImportStatusCompleted
	}

	s.record(session, false)
}

func (s *ImportService) record(session *entities.ImportSession, create bool) {
	if s.history == nil {
		return
	}
	var err error
	if create {
		err = s.history.Create(session)
	} else {
		err = s.history.Save(session)
	}
	if err != nil {
		log.Printf("Failed to record import session %s: %v", session.ExternalID, err)
	}
}

func packageDigest(in PackageInput) (string, error) {
	if in.Path != "" {
		return FileDigest(in.Path)
	}
	sum := sha256.Sum256(in.Data)
	return hex.EncodeToString(sum[:]), nil
}

// FileDigest returns the hex SHA-256 of a file, the identity of a package in
// the import history.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
