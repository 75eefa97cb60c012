package importers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/flashvault/internal/apkg"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/services"
)

// ErrMediaNotFound is returned by Result.Media for names the package does not hold.
var ErrMediaNotFound = errors.New("media not found in package")

// MediaSource hands out media blobs by the basename used in artifact Markdown.
type MediaSource interface {
	Media(name string) ([]byte, error)
}

// Exporter persists an import report and the media it references.
//
// Implementations:
//   - VaultExporter (internal/exporters/vault.go) - Markdown notes in an Obsidian vault
type Exporter interface {
	Export(ctx context.Context, report *entities.ImportReport, media MediaSource) (services.ExportResult, error)
}

// Pipeline runs a package import end to end:
// open archive → decompress collection → read rows → decode configs and
// media manifest → assemble note types → materialize cards → report.
//
// Archive and database access is sequential. Cards are materialized on a
// bounded pool of goroutines and the results are re-sorted by card id.
type Pipeline struct {
	decoder  *apkg.ConfigDecoder
	workers  int
	progress ProgressFunc
}

// ProgressFunc is called after each card is materialized. It may be called
// from several goroutines at once.
type ProgressFunc func(processed, total int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the number of cards materialized concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithProgress registers a callback invoked as cards complete.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithRegistry replaces the protobuf schema registry.
func WithRegistry(registry apkg.SchemaRegistry) Option {
	return func(p *Pipeline) {
		p.decoder = apkg.NewConfigDecoder(registry)
	}
}

// NewPipeline creates a pipeline. By default it uses one worker per CPU.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder: apkg.NewConfigDecoder(apkg.DefaultRegistry()),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is a finished import. It keeps the archive open so media can be
// extracted lazily; callers must Close it.
type Result struct {
	Report *entities.ImportReport

	archive  *apkg.Archive
	manifest *apkg.MediaManifest
}

var _ MediaSource = (*Result)(nil)

// Media extracts one media blob by its original filename.
func (r *Result) Media(name string) ([]byte, error) {
	key, ok := r.manifest.Key(name)
	if !ok || !r.archive.Has(key) {
		return nil, fmt.Errorf("%w: %q", ErrMediaNotFound, name)
	}
	return r.archive.Extract(key)
}

// Close releases the archive.
func (r *Result) Close() error {
	return r.archive.Close()
}

// Import runs the pipeline on an in-memory package.
func (p *Pipeline) Import(ctx context.Context, data []byte) (*Result, error) {
	archive, err := apkg.Open(data)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, archive)
}

// ImportFile runs the pipeline on a package on disk.
func (p *Pipeline) ImportFile(ctx context.Context, path string) (*Result, error) {
	archive, err := apkg.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, archive)
}

// run owns the archive: on a fatal error it is closed before returning.
// On cancellation the partial result is returned with the context error.
func (p *Pipeline) run(ctx context.Context, archive *apkg.Archive) (*Result, error) {
	result, err := p.process(ctx, archive)
	if result == nil {
		archive.Close()
	}
	return result, err
}

type rows struct {
	decks     []apkg.DeckRecord
	noteTypes []apkg.NoteTypeRow
	fields    []apkg.FieldRow
	templates []apkg.TemplateRow
	notes     []apkg.NoteRow
	cards     []apkg.CardRecord
}

func (p *Pipeline) process(ctx context.Context, archive *apkg.Archive) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := archive.Extract(apkg.CollectionEntry)
	if err != nil {
		return nil, err
	}
	raw, err := apkg.Decompress(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress collection: %w", err)
	}

	data, err := readRows(ctx, raw)
	if err != nil {
		return nil, err
	}

	manifest, err := p.readManifest(archive)
	if err != nil {
		return nil, err
	}

	assembled, err := apkg.AssembleNoteTypes(p.decoder, data.noteTypes, data.fields, data.templates)
	if err != nil {
		return nil, err
	}

	notes := make([]apkg.NoteRecord, len(data.notes))
	for i, n := range data.notes {
		notes[i] = n.Record()
	}

	report := &entities.ImportReport{
		Decks:     len(data.decks),
		NoteTypes: len(data.noteTypes),
		Notes:     len(data.notes),
		Total:     len(data.cards),
	}
	materializer := NewMaterializer(assembled, notes, data.decks)
	p.materialize(ctx, materializer, data.cards, report)
	resolveMedia(report, manifest)

	result := &Result{Report: report, archive: archive, manifest: manifest}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func readRows(ctx context.Context, raw []byte) (*rows, error) {
	reader, err := apkg.OpenSchemaReader(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var data rows
	if data.decks, err = reader.Decks(ctx); err != nil {
		return nil, fmt.Errorf("failed to read decks: %w", err)
	}
	if data.noteTypes, err = reader.NoteTypes(ctx); err != nil {
		return nil, fmt.Errorf("failed to read note types: %w", err)
	}
	if data.fields, err = reader.Fields(ctx); err != nil {
		return nil, fmt.Errorf("failed to read fields: %w", err)
	}
	if data.templates, err = reader.Templates(ctx); err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	if data.notes, err = reader.Notes(ctx); err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	if data.cards, err = reader.Cards(ctx); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return &data, nil
}

// readManifest decodes the media manifest. A package without one simply has
// no media.
func (p *Pipeline) readManifest(archive *apkg.Archive) (*apkg.MediaManifest, error) {
	if !archive.Has(apkg.MediaEntry) {
		return apkg.NewMediaManifest(nil), nil
	}
	data, err := archive.Extract(apkg.MediaEntry)
	if err != nil {
		return nil, err
	}
	manifest, err := p.decoder.DecodeMediaManifest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media manifest: %w", err)
	}
	return manifest, nil
}

type cardOutcome struct {
	done     bool
	artifact entities.FlashcardArtifact
	err      error
}

// materialize converts cards on the worker pool. Cancellation is checked
// before each card is started; a card in progress always finishes.
func (p *Pipeline) materialize(ctx context.Context, m *Materializer, cards []apkg.CardRecord, report *entities.ImportReport) {
	outcomes := make([]cardOutcome, len(cards))
	var processed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, card := range cards {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			artifact, err := m.Materialize(card)
			outcomes[i] = cardOutcome{done: true, artifact: artifact, err: err}
			if p.progress != nil {
				p.progress(int(processed.Add(1)), len(cards))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Artifacts = []entities.FlashcardArtifact{}
	report.Failures = []entities.CardFailure{}
	for i, o := range outcomes {
		if !o.done {
			continue
		}
		if o.err != nil {
			report.Failures = append(report.Failures, entities.CardFailure{
				CardID:  cards[i].ID,
				Kind:    apkg.Kind(o.err),
				Message: o.err.Error(),
				Err:     o.err,
			})
			continue
		}
		report.Artifacts = append(report.Artifacts, o.artifact)
	}

	sort.SliceStable(report.Artifacts, func(i, j int) bool { return report.Artifacts[i].CardID < report.Artifacts[j].CardID })
	sort.SliceStable(report.Failures, func(i, j int) bool { return report.Failures[i].CardID < report.Failures[j].CardID })
	report.Succeeded = len(report.Artifacts)
	report.Failed = len(report.Failures)
}

// resolveMedia collects the media referenced by produced artifacts and
// splits it into what the package holds and what it lacks.
func resolveMedia(report *entities.ImportReport, manifest *apkg.MediaManifest) {
	var refs [][]string
	for _, a := range report.Artifacts {
		refs = append(refs, a.MediaRefs)
	}

	report.Media = []string{}
	for _, name := range unionSorted(refs...) {
		if _, ok := manifest.Key(name); ok {
			report.Media = append(report.Media, name)
			continue
		}
		report.MissingMedia = append(report.MissingMedia, name)
	}
}
