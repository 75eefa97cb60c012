package config

// Default paths
const (
	// DefaultDatabasePath is the default path for the import history database
	DefaultDatabasePath = "./data/flashvault.db"

	// DefaultInboxDir is where the inbox scheduler looks for dropped packages
	DefaultInboxDir = "./inbox"

	// DefaultExportPath is the folder created inside the vault for flashcards
	DefaultExportPath = "Flashcards"
)
