package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/mrlokans/flashvault/internal/audit"
	"github.com/mrlokans/flashvault/internal/config"
	"github.com/mrlokans/flashvault/internal/database"
	"github.com/mrlokans/flashvault/internal/database/imports"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/exporters"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
)

// ApkgImportCommand converts an Anki package into vault notes.
type ApkgImportCommand struct {
	PackagePath  string
	OutputDir    string
	ExportPath   string
	DatabasePath string
	ReportPath   string
	Workers      int
	Verbose      bool
	DryRun       bool
}

func NewApkgImportCommand() *ApkgImportCommand {
	return &ApkgImportCommand{}
}

func (cmd *ApkgImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("apkg-import", flag.ContinueOnError)

	fs.StringVar(&cmd.PackagePath, "file", "", "Path to the .apkg package (required)")
	fs.StringVar(&cmd.OutputDir, "output", "", "Vault directory to write cards into (if omitted, only the report is produced)")
	fs.StringVar(&cmd.ExportPath, "export-path", config.DefaultExportPath, "Folder inside the vault for imported cards")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Import history database (empty disables history)")
	fs.StringVar(&cmd.ReportPath, "report", "", "Write the full import report as JSON to this file")
	fs.IntVar(&cmd.Workers, "workers", runtime.NumCPU(), "Number of cards converted concurrently")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Convert the package without writing anything to the vault")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s apkg-import -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Convert the decks, notes and media of an Anki package into Markdown cards.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Import into an Obsidian vault:\n")
		fmt.Fprintf(os.Stderr, "  %s apkg-import -file German.apkg -output ~/Obsidian/Vault\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Preview the conversion and keep the report:\n")
		fmt.Fprintf(os.Stderr, "  %s apkg-import -file German.apkg -dry-run -verbose -report report.json\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.PackagePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	if cmd.Workers < 1 {
		return fmt.Errorf("-workers must be at least 1")
	}
	if cmd.OutputDir != "" && cmd.ExportPath == "" {
		return fmt.Errorf("-export-path must not be empty")
	}

	return nil
}

func (cmd *ApkgImportCommand) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.RunContext(ctx)
}

// RunContext runs the import; cancelling ctx stops it between cards.
func (cmd *ApkgImportCommand) RunContext(ctx context.Context) error {
	fmt.Println("Anki Package Import")
	fmt.Println("===================")

	if cmd.DryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
		fmt.Println()
	}

	// Verify package file exists
	if _, err := os.Stat(cmd.PackagePath); os.IsNotExist(err) {
		return fmt.Errorf("package file not found: %s", cmd.PackagePath)
	}

	absPackagePath, err := filepath.Abs(cmd.PackagePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for package: %w", err)
	}
	cmd.PackagePath = absPackagePath

	fmt.Printf("File: %s\n", cmd.PackagePath)

	var exporter importers.Exporter
	if cmd.OutputDir != "" {
		absOutputDir, err := filepath.Abs(cmd.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for output: %w", err)
		}
		cmd.OutputDir = absOutputDir
		exporter = exporters.NewVaultExporter(cmd.OutputDir, cmd.ExportPath)
		fmt.Printf("Vault: %s\n", filepath.Join(cmd.OutputDir, cmd.ExportPath))
	}

	var history services.ImportHistory
	if cmd.DatabasePath != "" && !cmd.DryRun {
		db, err := database.NewDatabase(cmd.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		history = imports.NewRepository(db.DB)
	}

	opts := []importers.Option{importers.WithWorkers(cmd.Workers)}
	if cmd.Verbose {
		opts = append(opts, importers.WithProgress(progressPrinter()))
	}
	service := importers.NewImportService(importers.NewPipeline(opts...), exporter, history)

	fmt.Println("\nConverting cards...")

	result, importErr := service.ImportPackage(ctx, importers.PackageInput{
		Name:    filepath.Base(cmd.PackagePath),
		Path:    cmd.PackagePath,
		Trigger: entities.ImportTriggerCLI,
		DryRun:  cmd.DryRun,
	})

	if result.Report != nil {
		cmd.printReport(result.Report)
		if cmd.ReportPath != "" {
			if err := writeReport(cmd.ReportPath, result.Report); err != nil {
				return err
			}
			fmt.Printf("\nReport written to %s\n", cmd.ReportPath)
		}
	}

	if importErr != nil {
		return fmt.Errorf("import failed: %w", importErr)
	}

	if exporter != nil && !cmd.DryRun {
		fmt.Println("\n=== Vault Export Summary ===")
		fmt.Printf("Cards written: %d\n", result.Export.CardsWritten)
		fmt.Printf("Media written: %d\n", result.Export.MediaWritten)
		if result.Export.MediaMissing > 0 {
			fmt.Printf("Media missing: %d\n", result.Export.MediaMissing)
		}
	}

	if cmd.DryRun {
		fmt.Println("\nDry run complete. Use without -dry-run to import.")
		return nil
	}

	fmt.Println("\nImport complete!")
	return nil
}

func (cmd *ApkgImportCommand) printReport(report *entities.ImportReport) {
	fmt.Printf("Found %d decks, %d note types, %d notes\n", report.Decks, report.NoteTypes, report.Notes)

	if cmd.Verbose {
		fmt.Println("\n=== Cards ===")
		for _, artifact := range report.Artifacts {
			fmt.Printf("  [OK] %d %s / %s (%s)\n", artifact.CardID, artifact.DeckName, artifact.NoteTypeName, artifact.TemplateName)
		}
	}

	fmt.Println("\n=== Conversion Summary ===")
	fmt.Printf("Cards converted: %d/%d\n", report.Succeeded, report.Total)
	fmt.Printf("Media files: %d\n", len(report.Media))

	if len(report.MissingMedia) > 0 {
		fmt.Printf("\n%d media files are referenced but not in the package:\n", len(report.MissingMedia))
		for _, name := range report.MissingMedia {
			fmt.Printf("  [MISSING] %s\n", name)
		}
	}

	if len(report.Failures) > 0 {
		fmt.Printf("\n%d cards failed:\n", len(report.Failures))
		for _, failure := range report.Failures {
			fmt.Printf("  [ERROR] card %d: %s\n", failure.CardID, failure.Message)
		}
	}
}

// progressPrinter reports every tenth of the cards. It is safe for
// concurrent use.
func progressPrinter() importers.ProgressFunc {
	var lastDecile atomic.Int32
	return func(processed, total int) {
		if total == 0 {
			return
		}
		decile := int32(processed * 10 / total)
		if old := lastDecile.Load(); decile > old && lastDecile.CompareAndSwap(old, decile) {
			fmt.Printf("  ... %d/%d cards\n", processed, total)
		}
	}
}

func writeReport(path string, report *entities.ImportReport) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for report: %w", err)
	}
	if err := audit.NewAuditor(filepath.Dir(absPath)).SaveJSON(filepath.Base(absPath), report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
