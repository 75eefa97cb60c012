package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/flashvault/internal/audit"
	"github.com/mrlokans/flashvault/internal/database/imports"
	"github.com/mrlokans/flashvault/internal/exporters"
	"github.com/mrlokans/flashvault/internal/http"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/scheduler"
	"github.com/mrlokans/flashvault/internal/services"
	"github.com/mrlokans/flashvault/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Import history implementations
var _ services.ImportHistory = (*imports.Repository)(nil)
var _ http.ImportHistoryReader = (*imports.Repository)(nil)
var _ scheduler.ImportedLookup = (*imports.Repository)(nil)
var _ tasks.ImportHistoryCleaner = (*imports.Repository)(nil)

// Audit implementations
var _ services.ReportAuditor = (*audit.Auditor)(nil)
var _ http.PackageStore = (*audit.Auditor)(nil)

// =============================================================================
// Import Pipeline
// =============================================================================

// Exporter implementations
var _ importers.Exporter = (*exporters.VaultExporter)(nil)

// MediaSource implementations
var _ importers.MediaSource = (*importers.Result)(nil)

// PackageImporter implementations
var _ http.PackageImporter = (*importers.ImportService)(nil)
var _ tasks.PackageImporter = (*importers.ImportService)(nil)
var _ scheduler.PackageImporter = (*importers.ImportService)(nil)

// =============================================================================
// Task Queue
// =============================================================================

var _ http.TaskClient = (*tasks.Client)(nil)
