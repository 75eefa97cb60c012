package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/flashvault/internal/apkg"
	"github.com/mrlokans/flashvault/internal/audit"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
	"github.com/mrlokans/flashvault/internal/tasks"
)

// packageFormField is the multipart field carrying the uploaded package.
const packageFormField = "package"

// PackageImporter runs one package import end to end.
type PackageImporter interface {
	ImportPackage(ctx context.Context, in importers.PackageInput) (services.ImportResult, error)
}

// PackageStore keeps uploaded packages on disk.
type PackageStore interface {
	SavePackage(src io.Reader, limit int64) (string, error)
}

// ImportEnqueuer schedules a background import.
type ImportEnqueuer interface {
	EnqueueImport(task tasks.ImportPackageTask) (string, error)
}

type ApkgImportController struct {
	importer PackageImporter
	packages PackageStore
	enqueuer ImportEnqueuer
	maxSize  int64
}

// NewApkgImportController creates the upload controller. enqueuer may be nil,
// in which case asynchronous imports are rejected.
func NewApkgImportController(importer PackageImporter, packages PackageStore, enqueuer ImportEnqueuer, maxSize int64) *ApkgImportController {
	return &ApkgImportController{
		importer: importer,
		packages: packages,
		enqueuer: enqueuer,
		maxSize:  maxSize,
	}
}

// ExportSummary describes what the vault writer produced.
type ExportSummary struct {
	CardsWritten int    `json:"cards_written"`
	MediaWritten int    `json:"media_written"`
	MediaMissing int    `json:"media_missing"`
	Directory    string `json:"directory,omitempty"`
}

type ApkgImportResult struct {
	Success   bool                   `json:"success"`
	SessionID string                 `json:"session_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Report    *entities.ImportReport `json:"report,omitempty"`
	Export    *ExportSummary         `json:"export,omitempty"`
}

// Import handles POST /api/import/apkg.
// Query parameters: async=true enqueues the import, dry_run=true skips the export.
func (c *ApkgImportController) Import(ctx *gin.Context) {
	async := parseBoolQuery(ctx, "async")
	dryRun := parseBoolQuery(ctx, "dry_run")

	if async && c.enqueuer == nil {
		respondError(ctx, http.StatusServiceUnavailable, "background tasks are disabled")
		return
	}

	file, header, err := ctx.Request.FormFile(packageFormField)
	if err != nil {
		respondBadRequest(ctx, "package file not provided")
		return
	}
	defer file.Close()

	// Check file size
	if c.maxSize > 0 && header.Size > c.maxSize {
		respondError(ctx, http.StatusRequestEntityTooLarge, c.tooLargeMessage())
		return
	}

	path, err := c.packages.SavePackage(file, c.maxSize)
	if errors.Is(err, audit.ErrPackageTooLarge) {
		respondError(ctx, http.StatusRequestEntityTooLarge, c.tooLargeMessage())
		return
	}
	if err != nil {
		respondInternalError(ctx, err, "store uploaded package")
		return
	}

	if async {
		taskID, err := c.enqueuer.EnqueueImport(tasks.ImportPackageTask{
			Path:   path,
			Name:   header.Filename,
			DryRun: dryRun,
		})
		if err != nil {
			respondInternalError(ctx, err, "enqueue import")
			return
		}
		respondAccepted(ctx, "import enqueued", ApkgImportResult{Success: true, TaskID: taskID})
		return
	}

	result, err := c.importer.ImportPackage(ctx.Request.Context(), importers.PackageInput{
		Name:    header.Filename,
		Path:    path,
		Trigger: entities.ImportTriggerHTTP,
		DryRun:  dryRun,
	})

	response := ApkgImportResult{
		Success:   err == nil,
		SessionID: result.SessionID,
		Report:    result.Report,
	}
	if err == nil && !dryRun {
		response.Export = &ExportSummary{
			CardsWritten: result.Export.CardsWritten,
			MediaWritten: result.Export.MediaWritten,
			MediaMissing: result.Export.MediaMissing,
			Directory:    result.Export.Directory,
		}
	}
	if err != nil {
		response.Error = err.Error()
		response.ErrorKind = errorKind(err)
	}

	ctx.JSON(importStatusCode(err), response)
}

func (c *ApkgImportController) tooLargeMessage() string {
	return fmt.Sprintf("package too large (max %d MB)", c.maxSize>>20)
}

func errorKind(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return apkg.Kind(err)
}

// importStatusCode maps an import error to the HTTP status of the response.
// A broken package is the client's fault, anything else is ours.
func importStatusCode(err error) int {
	switch errorKind(err) {
	case "":
		return http.StatusOK
	case "unsupported_format", "corrupt_archive", "schema_mismatch", "protobuf_decode_error":
		return http.StatusUnprocessableEntity
	case "cancelled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
