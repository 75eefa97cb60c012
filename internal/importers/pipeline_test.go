package importers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/flashvault/internal/apkg"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/testutil"
)

func importPackage(t *testing.T, pkg testutil.Package, opts ...Option) *Result {
	t.Helper()
	result, err := NewPipeline(opts...).Import(context.Background(), pkg.Build(t))
	require.NoError(t, err)
	t.Cleanup(func() { result.Close() })
	return result
}

func artifactByCard(t *testing.T, report *entities.ImportReport, cardID int64) entities.FlashcardArtifact {
	t.Helper()
	for _, a := range report.Artifacts {
		if a.CardID == cardID {
			return a
		}
	}
	t.Fatalf("no artifact for card %d", cardID)
	return entities.FlashcardArtifact{}
}

func TestPipeline_Import_StandardPackage(t *testing.T) {
	result := importPackage(t, testutil.StandardPackage())
	report := result.Report

	assert.Len(t, report.Artifacts, 9)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{testutil.ImageName}, report.Media)
	assert.Empty(t, report.MissingMedia)
	assert.Equal(t, 3, report.Decks)
	assert.Equal(t, 7, report.NoteTypes)
	assert.Equal(t, 7, report.Notes)
	assert.Equal(t, 9, report.Total)
	assert.Equal(t, 9, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	for i := 1; i < len(report.Artifacts); i++ {
		assert.Less(t, report.Artifacts[i-1].CardID, report.Artifacts[i].CardID)
	}
}

func TestPipeline_Import_ArtifactContent(t *testing.T) {
	report := importPackage(t, testutil.StandardPackage()).Report

	basic := artifactByCard(t, report, 2001)
	assert.Equal(t, "Default", basic.DeckName)
	assert.Equal(t, "Basic", basic.NoteTypeName)
	assert.Equal(t, "Card 1", basic.TemplateName)
	assert.Equal(t, "What is the capital of **France**?", basic.Question)
	assert.Equal(t, "Paris\n![[my image.png]]", basic.Answer)
	assert.Equal(t, "What is the capital of **France**?\n?\nParis\n![[my image.png]]", basic.GeneratedBody)
	assert.Equal(t, []string{"europe", "geography"}, basic.Tags)
	assert.Equal(t, []string{"my image.png"}, basic.MediaRefs)
	assert.Equal(t, `Paris<br><img src="my%20image.png">`, basic.Fields["Back"])

	reversed := artifactByCard(t, report, 2003)
	assert.Equal(t, "Languages::German", reversed.DeckName)
	assert.Equal(t, "Card 2", reversed.TemplateName)
	assert.Equal(t, "the dog", reversed.Question)
	assert.Equal(t, "der Hund", reversed.Answer)

	typeIn := artifactByCard(t, report, 2006)
	assert.Equal(t, "2 + 2 =", typeIn.Question)
	assert.Equal(t, "4", typeIn.Answer)
	assert.Equal(t, []string{}, typeIn.Tags)

	cloze := artifactByCard(t, report, 2007)
	assert.Equal(t, "==Berlin== is the capital of ==Germany==", cloze.Question)
	assert.Contains(t, cloze.Answer, "Since 1990")
	assert.NotContains(t, cloze.GeneratedBody, "country")

	occlusion := artifactByCard(t, report, 2008)
	assert.Contains(t, occlusion.Question, "Label the map")
	assert.Contains(t, occlusion.Question, "==image-occlusion:rect:left=.1:top=.2:width=.3:height=.4:oi=1==")
	assert.Equal(t, []string{"my image.png"}, occlusion.MediaRefs)

	vocab := artifactByCard(t, report, 2009)
	assert.Equal(t, "## Schmetterling\n\n*Der Schmetterling fliegt.*", vocab.Question)
	assert.Equal(t, "- butterfly\n- moth (rare)", vocab.Answer)
}

func TestPipeline_Import_UnsupportedFormat(t *testing.T) {
	tests := []struct {
		name string
		pkg  testutil.Package
	}{
		{name: "no collection", pkg: testutil.Package{OmitCollection: true}},
		{name: "legacy collection only", pkg: testutil.Package{OmitCollection: true, LegacyCollection: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewPipeline().Import(context.Background(), tt.pkg.Build(t))

			assert.ErrorIs(t, err, apkg.ErrUnsupportedFormat)
			assert.Nil(t, result)
		})
	}
}

func TestPipeline_Import_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*testutil.Package)
		wantErr error
	}{
		{
			name:    "missing table",
			mutate:  func(p *testutil.Package) { p.DropTables = []string{"fields"} },
			wantErr: apkg.ErrSchemaMismatch,
		},
		{
			name:    "corrupt media manifest",
			mutate:  func(p *testutil.Package) { p.RawManifest = []byte{0x0a, 0xff, 0xff} },
			wantErr: apkg.ErrProtobufDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := testutil.StandardPackage()
			tt.mutate(&pkg)

			result, err := NewPipeline().Import(context.Background(), pkg.Build(t))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, apkg.IsFatal(err))
			assert.Nil(t, result)
		})
	}
}

func TestPipeline_Import_CorruptZip(t *testing.T) {
	_, err := NewPipeline().Import(context.Background(), []byte("PK\x03\x04 but not really"))
	assert.ErrorIs(t, err, apkg.ErrCorruptArchive)
}

func TestPipeline_Import_UnknownFieldFailsOnlyThatCard(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.NoteTypes[0].Templates[0].Question = "{{Front}} {{Missing}}"

	report := importPackage(t, pkg).Report

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, int64(2001), failure.CardID)
	assert.Equal(t, "card_conversion_error", failure.Kind)
	assert.ErrorIs(t, failure.Err, apkg.ErrCardConversion)
	assert.Contains(t, failure.Message, `"Missing"`)

	assert.Len(t, report.Artifacts, 8)
	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	// Card 2001 was not the only reference to the image.
	assert.Equal(t, []string{testutil.ImageName}, report.Media)
}

func TestPipeline_Import_TemplateOrdinalOutOfRange(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.Cards = append(pkg.Cards, testutil.Card{ID: 2010, NoteID: 3001, DeckID: testutil.DefaultDeckID, Ordinal: 5})

	report := importPackage(t, pkg).Report

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, int64(2010), failure.CardID)
	assert.Equal(t, "card_conversion_error", failure.Kind)
	assert.ErrorIs(t, failure.Err, apkg.ErrCardConversion)
	assert.Contains(t, failure.Message, "template ordinal 5 out of range")

	assert.Len(t, report.Artifacts, 9)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 9, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "Basic", artifactByCard(t, report, 2001).NoteTypeName)
}

func TestPipeline_Import_FieldCountMismatch(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.Notes[0].Fields = append(pkg.Notes[0].Fields, "stray value")

	report := importPackage(t, pkg).Report

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, int64(2001), failure.CardID)
	assert.Equal(t, "card_conversion_error", failure.Kind)
	assert.ErrorIs(t, failure.Err, apkg.ErrCardConversion)
	assert.Contains(t, failure.Message, "has 3 field values")

	assert.Len(t, report.Artifacts, 8)
	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	for _, a := range report.Artifacts {
		assert.NotEqual(t, int64(2001), a.CardID)
	}
}

func TestPipeline_Import_UndecodableNoteTypeConfig(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.NoteTypes[1].Config = []byte{0x08}

	report := importPackage(t, pkg).Report

	require.Len(t, report.Failures, 2)
	assert.Equal(t, int64(2002), report.Failures[0].CardID)
	assert.Equal(t, int64(2003), report.Failures[1].CardID)
	for _, f := range report.Failures {
		assert.ErrorIs(t, f.Err, apkg.ErrCardConversion)
		assert.ErrorIs(t, f.Err, apkg.ErrProtobufDecode)
	}
	assert.Len(t, report.Artifacts, 7)
}

func TestPipeline_Import_OptionalReverse(t *testing.T) {
	noteType := testutil.StandardNoteTypes()[2]

	tests := []struct {
		name          string
		addReverse    string
		cards         []testutil.Card
		wantArtifacts int
		wantFailures  int
	}{
		{
			name:          "reverse requested",
			addReverse:    "y",
			cards:         []testutil.Card{{ID: 1, NoteID: 10, DeckID: 1, Ordinal: 0}, {ID: 2, NoteID: 10, DeckID: 1, Ordinal: 1}},
			wantArtifacts: 2,
		},
		{
			name:          "reverse not requested",
			addReverse:    "",
			cards:         []testutil.Card{{ID: 1, NoteID: 10, DeckID: 1, Ordinal: 0}},
			wantArtifacts: 1,
		},
		{
			name:          "stale reverse card of an empty field",
			addReverse:    "<br>",
			cards:         []testutil.Card{{ID: 1, NoteID: 10, DeckID: 1, Ordinal: 0}, {ID: 2, NoteID: 10, DeckID: 1, Ordinal: 1}},
			wantArtifacts: 1,
			wantFailures:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := testutil.Package{
				Decks:     []testutil.Deck{{ID: 1, Name: "Default"}},
				NoteTypes: []testutil.NoteType{noteType},
				Notes:     []testutil.Note{{ID: 10, NoteTypeID: noteType.ID, Fields: []string{"front", "back", tt.addReverse}}},
				Cards:     tt.cards,
			}

			report := importPackage(t, pkg).Report
			assert.Len(t, report.Artifacts, tt.wantArtifacts)
			assert.Len(t, report.Failures, tt.wantFailures)
		})
	}
}

func TestPipeline_Import_ClozeOrdinalUsesSingleTemplate(t *testing.T) {
	cloze := testutil.StandardNoteTypes()[4]
	pkg := testutil.Package{
		Decks:     []testutil.Deck{{ID: 1, Name: "Default"}},
		NoteTypes: []testutil.NoteType{cloze},
		Notes:     []testutil.Note{{ID: 10, NoteTypeID: cloze.ID, Fields: []string{"{{c1::a}} {{c2::b}}", ""}}},
		Cards: []testutil.Card{
			{ID: 1, NoteID: 10, DeckID: 1, Ordinal: 0},
			{ID: 2, NoteID: 10, DeckID: 1, Ordinal: 1},
		},
	}

	report := importPackage(t, pkg).Report
	require.Len(t, report.Artifacts, 2)
	assert.Equal(t, "==a== ==b==", report.Artifacts[1].Question)
}

func TestPipeline_Import_MissingMedia(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.Notes[1].Fields[1] = `the dog <img src="absent.png">`

	report := importPackage(t, pkg).Report

	assert.Equal(t, []string{testutil.ImageName}, report.Media)
	assert.Equal(t, []string{"absent.png"}, report.MissingMedia)
}

func TestPipeline_Import_Deterministic(t *testing.T) {
	data := testutil.StandardPackage().Build(t)

	run := func(workers int) []byte {
		result, err := NewPipeline(WithWorkers(workers)).Import(context.Background(), data)
		require.NoError(t, err)
		defer result.Close()

		out, err := json.Marshal(result.Report)
		require.NoError(t, err)
		return out
	}

	first := run(4)
	assert.Equal(t, first, run(4))
	assert.Equal(t, first, run(1))
	assert.Equal(t, first, run(16))
}

func TestPipeline_Import_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := NewPipeline(WithWorkers(1), WithProgress(func(processed, total int) {
		assert.Equal(t, 9, total)
		if processed == 3 {
			cancel()
		}
	}))

	result, err := pipeline.Import(ctx, testutil.StandardPackage().Build(t))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	defer result.Close()

	report := result.Report
	require.Len(t, report.Artifacts, 3)
	assert.Equal(t, []int64{2001, 2002, 2003}, []int64{
		report.Artifacts[0].CardID, report.Artifacts[1].CardID, report.Artifacts[2].CardID,
	})
	assert.Equal(t, 9, report.Total)
	assert.Equal(t, 3, report.Succeeded)
}

func TestPipeline_Import_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewPipeline().Import(ctx, testutil.StandardPackage().Build(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestPipeline_ImportFile(t *testing.T) {
	path := testutil.StandardPackage().WriteFile(t, t.TempDir(), "deck.apkg")

	result, err := NewPipeline().ImportFile(context.Background(), path)
	require.NoError(t, err)
	defer result.Close()

	assert.Len(t, result.Report.Artifacts, 9)

	blob, err := result.Media(testutil.ImageName)
	require.NoError(t, err)
	assert.Equal(t, testutil.ImageData, blob)

	_, err = result.Media("unknown.png")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestPipeline_Import_WithoutManifest(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.OmitManifest = true
	pkg.Media = nil

	report := importPackage(t, pkg).Report

	assert.Len(t, report.Artifacts, 9)
	assert.Empty(t, report.Media)
	assert.Equal(t, []string{testutil.ImageName}, report.MissingMedia)
}
