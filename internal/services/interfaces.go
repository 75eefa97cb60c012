package services

import "github.com/mrlokans/flashvault/internal/entities"

// ExportResult contains the outcome of an export operation.
type ExportResult struct {
	CardsWritten int
	MediaWritten int
	MediaMissing int
	Directory    string
}

// ImportResult contains the outcome of an import operation.
type ImportResult struct {
	SessionID string
	Report    *entities.ImportReport
	Export    ExportResult
}

// ImportHistory persists import sessions.
// Use this interface when an import should leave a trace in the history.
type ImportHistory interface {
	Create(session *entities.ImportSession) error
	Save(session *entities.ImportSession) error
}

// ReportAuditor keeps a copy of every import report.
type ReportAuditor interface {
	SaveReport(sessionID string, report *entities.ImportReport) (string, error)
}
