// Package importers turns flashcard packages into flashcard artifacts.
//
// # Architecture
//
// The import pipeline follows a single pass:
//
//	.apkg → apkg.Archive → collection rows → NoteTypeRecords → Materializer → ImportReport → Exporter
//
// Everything up to the materializer runs sequentially against one archive
// handle and one database connection. The Materializer is pure; the Pipeline
// runs it on a bounded errgroup and sorts the results by card id, so the
// report does not depend on scheduling.
//
// # Failures
//
// Setup errors (archive, collection, schema, media manifest) abort the import
// and are returned as errors wrapping one of the apkg sentinels. Problems with
// a single card are recorded in ImportReport.Failures and never abort the
// batch.
//
// # Templates
//
// Card templates are rendered with a small subset of the template language:
// {{Field}}, {{#Field}}...{{/Field}}, {{^Field}}...{{/Field}}, the text, cloze,
// hint and type filters, and the special fields FrontSide, Tags, Deck,
// Subdeck, Type and Card. On the answer side everything up to the
// <hr id=answer> divider is dropped because the generated body already shows
// the question above it.
//
// # Example Usage
//
//	pipeline := importers.NewPipeline(importers.WithWorkers(4))
//	result, err := pipeline.ImportFile(ctx, "deck.apkg")
//	if err != nil {
//		return err
//	}
//	defer result.Close()
//
//	for _, card := range result.Report.Artifacts {
//		fmt.Println(card.GeneratedBody)
//	}
//
// Surfaces that also persist and record imports use ImportService, which
// wraps the pipeline with an Exporter and an import history.
package importers
