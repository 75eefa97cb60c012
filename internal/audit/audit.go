package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/services"
)

// PackageExtension is the extension of stored packages.
const PackageExtension = ".apkg"

// ErrPackageTooLarge is returned by SavePackage when the input exceeds the limit.
var ErrPackageTooLarge = errors.New("package too large")

// Auditor keeps an on-disk trail of imports: the uploaded packages and the
// JSON report of every import session.
type Auditor struct {
	AuditDir string
}

var _ services.ReportAuditor = (*Auditor)(nil)

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveReport writes the report as <sessionID>.json and returns the filename.
func (a *Auditor) SaveReport(sessionID string, report *entities.ImportReport) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	filename := sessionID + ".json"
	if err := a.SaveJSON(filename, report); err != nil {
		return "", err
	}
	return filename, nil
}

// SaveJSON saves the provided data as indented JSON under filename.
func (a *Auditor) SaveJSON(filename string, data any) error {
	if err := a.ensureAuditDir(); err != nil {
		return fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	if err := os.WriteFile(filepath.Join(a.AuditDir, filename), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write audit file: %w", err)
	}
	return nil
}

// SavePackage streams a package to a file with a UUID4 name and returns its
// full path. At most limit bytes are written when limit is positive; larger
// packages are removed and rejected.
func (a *Auditor) SavePackage(src io.Reader, limit int64) (string, error) {
	if err := a.ensureAuditDir(); err != nil {
		return "", fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	path := filepath.Join(a.AuditDir, uuid.NewString()+PackageExtension)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create package file: %w", err)
	}

	reader := src
	if limit > 0 {
		reader = io.LimitReader(src, limit+1)
	}
	written, err := io.Copy(f, reader)
	closeErr := f.Close()
	switch {
	case err != nil:
		os.Remove(path)
		return "", fmt.Errorf("failed to write package file: %w", err)
	case closeErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("failed to write package file: %w", closeErr)
	case limit > 0 && written > limit:
		os.Remove(path)
		return "", fmt.Errorf("%w: more than %d bytes", ErrPackageTooLarge, limit)
	}
	return path, nil
}

// ensureAuditDir creates the audit directory if it doesn't exist
func (a *Auditor) ensureAuditDir() error {
	if _, err := os.Stat(a.AuditDir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.AuditDir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return nil
}
