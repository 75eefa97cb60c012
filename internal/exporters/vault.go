package exporters

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/importers"
	"github.com/mrlokans/flashvault/internal/services"
	"github.com/mrlokans/flashvault/internal/utils"
)

// MediaDirName is the folder under the export path that receives media files.
const MediaDirName = "media"

// VaultExporter writes flashcard artifacts as Markdown notes into an
// Obsidian vault:
//
//	<vault>/<exportPath>/<Deck>/<Subdeck>/<NoteType> <cardID>.md
//	<vault>/<exportPath>/media/<file>
type VaultExporter struct {
	VaultDir   string
	ExportPath string
}

var _ importers.Exporter = (*VaultExporter)(nil)

func NewVaultExporter(vaultDir string, exportPath string) *VaultExporter {
	return &VaultExporter{
		VaultDir:   vaultDir,
		ExportPath: exportPath,
	}
}

func (exporter *VaultExporter) ensureDirs() (string, error) {
	// The vault itself must already exist; only the export folder is created.
	if _, err := os.Stat(exporter.VaultDir); err != nil {
		return "", fmt.Errorf("vault directory is not accessible: %w", err)
	}

	exportDir := filepath.Join(exporter.VaultDir, exporter.ExportPath)
	if err := os.MkdirAll(filepath.Join(exportDir, MediaDirName), 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	return exportDir, nil
}

// Export writes the referenced media first, then one note per artifact.
// Media blobs are fetched one at a time.
func (exporter *VaultExporter) Export(ctx context.Context, report *entities.ImportReport, media importers.MediaSource) (services.ExportResult, error) {
	exportDir, err := exporter.ensureDirs()
	if err != nil {
		return services.ExportResult{}, err
	}
	result := services.ExportResult{Directory: exportDir}

	renames, err := exporter.writeMedia(ctx, exportDir, report.Media, media, &result)
	if err != nil {
		return result, err
	}
	result.MediaMissing += len(report.MissingMedia)

	for _, artifact := range report.Artifacts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := exporter.writeCard(exportDir, artifact, renames); err != nil {
			return result, fmt.Errorf("failed to write card %d: %w", artifact.CardID, err)
		}
		result.CardsWritten++
	}

	log.Printf("Vault export completed: %d cards, %d media files, %d media missing in %s",
		result.CardsWritten, result.MediaWritten, result.MediaMissing, exportDir)
	return result, nil
}

// writeMedia stores every blob under the media folder and returns the names
// that had to change on disk, keyed by the referenced name.
func (exporter *VaultExporter) writeMedia(ctx context.Context, exportDir string, names []string, media importers.MediaSource, result *services.ExportResult) (map[string]string, error) {
	renames := make(map[string]string)
	taken := make(map[string]bool, len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blob, err := media.Media(name)
		if errors.Is(err, importers.ErrMediaNotFound) {
			log.Printf("Media file %q is listed but missing from the package", name)
			result.MediaMissing++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to extract media %q: %w", name, err)
		}

		diskName := uniqueName(utils.SanitizeFilename(name), taken)
		taken[diskName] = true
		if diskName != name {
			renames[name] = diskName
		}

		if err := os.WriteFile(filepath.Join(exportDir, MediaDirName, diskName), blob, 0644); err != nil {
			return nil, fmt.Errorf("failed to write media %q: %w", diskName, err)
		}
		result.MediaWritten++
	}
	return renames, nil
}

func (exporter *VaultExporter) writeCard(exportDir string, artifact entities.FlashcardArtifact, renames map[string]string) (string, error) {
	dir := exportDir
	for _, part := range strings.Split(artifact.DeckName, "::") {
		dir = filepath.Join(dir, utils.SanitizeFilename(part))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create deck directory: %w", err)
	}

	content, err := GenerateCardMarkdown(artifact, renames)
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(dir, CardFileName(artifact))
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

// CardFileName names the note of one card. Card ids keep it unique within
// a deck folder.
func CardFileName(artifact entities.FlashcardArtifact) string {
	return utils.SanitizeFilename(fmt.Sprintf("%s %d", artifact.NoteTypeName, artifact.CardID)) + ".md"
}

type cardFrontmatter struct {
	ContentType string            `yaml:"content_type"`
	Deck        string            `yaml:"deck"`
	NoteType    string            `yaml:"note_type"`
	Template    string            `yaml:"template"`
	CardID      int64             `yaml:"card_id"`
	NoteID      int64             `yaml:"note_id"`
	Tags        []string          `yaml:"tags"`
	Fields      map[string]string `yaml:"fields"`
}

// GenerateCardMarkdown renders the frontmatter and body of one card note.
// Embeds of media stored under a different name are rewritten.
func GenerateCardMarkdown(artifact entities.FlashcardArtifact, renames map[string]string) (string, error) {
	tags := artifact.Tags
	if tags == nil {
		tags = []string{}
	}
	frontmatter, err := yaml.Marshal(cardFrontmatter{
		ContentType: "flashcard",
		Deck:        artifact.DeckName,
		NoteType:    artifact.NoteTypeName,
		Template:    artifact.TemplateName,
		CardID:      artifact.CardID,
		NoteID:      artifact.NoteID,
		Tags:        tags,
		Fields:      artifact.Fields,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	body := artifact.GeneratedBody
	for _, ref := range artifact.MediaRefs {
		if renamed, ok := renames[ref]; ok {
			body = strings.ReplaceAll(body, "![["+ref+"]]", "![["+renamed+"]]")
		}
	}

	var builder strings.Builder
	builder.WriteString("---\n")
	builder.Write(frontmatter)
	builder.WriteString("---\n\n")
	builder.WriteString(body)
	builder.WriteString("\n")
	return builder.String(), nil
}

// uniqueName appends " (n)" before the extension until name is free.
func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}
