// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Import Pipeline
//
//   - Exporter: Persists an ImportReport and its media (internal/importers/pipeline.go)
//   - MediaSource: Lazy access to media blobs of an opened package (internal/importers/pipeline.go)
//
// ## Data Access Interfaces
//
//   - ImportHistory: Records import sessions (internal/services/interfaces.go)
//   - ImportHistoryReader: Lists past sessions for the API (internal/http/imports.go)
//   - ImportedLookup: Finds an earlier import of the same package (internal/scheduler/inbox.go)
//   - ImportHistoryCleaner: Removes expired sessions (internal/tasks/cleanup_imports.go)
//   - ReportAuditor: Keeps JSON copies of import reports (internal/services/interfaces.go)
//
// ## Surfaces
//
//   - PackageImporter: One import end to end, declared separately by the HTTP
//     layer, the task queue and the inbox scheduler so each depends only on
//     what it calls
//   - TaskClient: Enqueue imports and query task status (internal/http/tasks.go)
//
// # Adding a New Export Target
//
// To write imported cards somewhere other than an Obsidian vault:
//
//  1. Implement Exporter in internal/exporters/
//
//     type AnkiConnectExporter struct {
//         endpoint string
//     }
//
//     func (e *AnkiConnectExporter) Export(ctx context.Context, report *entities.ImportReport, media importers.MediaSource) (services.ExportResult, error)
//
//     var _ importers.Exporter = (*AnkiConnectExporter)(nil)
//
//  2. Pass it to importers.NewImportService in entrypoint.go
//
// Media must be fetched through MediaSource one file at a time; the package
// stays open only until the ImportService returns.
//
// # Adding a New Database Domain
//
// To add a new data domain:
//
//  1. Create sub-package: internal/database/<domain>/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB) *Repository
//
//  3. Implement interface methods
//
//  4. Add compile-time check:
//
//     var _ SomeStore = (*Repository)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
