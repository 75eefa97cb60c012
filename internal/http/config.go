package http

import (
	"github.com/mrlokans/flashvault/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Importer PackageImporter
	Packages PackageStore
	History  ImportHistoryReader
	Database *database.Database

	// Uploads larger than this are rejected. Zero disables the limit.
	MaxPackageSize int64

	// Vault directory reported by the health check (optional)
	VaultDir string

	// Application info
	Version string

	// Task queue client (optional). Without it ?async=true is rejected.
	TaskClient TaskClient
}
