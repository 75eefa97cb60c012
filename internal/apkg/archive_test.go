package apkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrlokans/flashvault/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_StandardPackage(t *testing.T) {
	data := testutil.StandardPackage().Build(t)

	archive, err := Open(data)
	require.NoError(t, err)
	defer archive.Close()

	assert.True(t, archive.Has(CollectionEntry))
	assert.True(t, archive.Has(MediaEntry))
	assert.True(t, archive.Has("0"))
	assert.Equal(t, []string{"0", "collection.anki21b", "media"}, archive.Names())

	blob, err := archive.Extract("0")
	require.NoError(t, err)
	assert.Equal(t, testutil.ImageData, blob)
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "not a zip",
			data:    func(t *testing.T) []byte { return []byte("definitely not a zip file") },
			wantErr: ErrCorruptArchive,
		},
		{
			name: "missing collection",
			data: func(t *testing.T) []byte {
				return testutil.Package{OmitCollection: true}.Build(t)
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "legacy collection only",
			data: func(t *testing.T) []byte {
				return testutil.Package{OmitCollection: true, LegacyCollection: true}.Build(t)
			},
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive, err := Open(tt.data(t))
			assert.Nil(t, archive)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpen_LegacyStubAlongsideModernCollection(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.LegacyCollection = true

	archive, err := Open(pkg.Build(t))
	require.NoError(t, err)
	assert.True(t, archive.Has("collection.anki2"))
}

func TestOpenFile(t *testing.T) {
	path := testutil.StandardPackage().WriteFile(t, t.TempDir(), "deck.apkg")

	archive, err := OpenFile(path)
	require.NoError(t, err)
	defer archive.Close()

	assert.True(t, archive.Has(CollectionEntry))
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.apkg"))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestExtract_UnknownEntry(t *testing.T) {
	archive, err := Open(testutil.StandardPackage().Build(t))
	require.NoError(t, err)

	_, err = archive.Extract("42")
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestDecompress(t *testing.T) {
	frame := testutil.Compress(t, []byte("hello collection"))
	assert.True(t, IsZstdFrame(frame))

	raw, err := Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, "hello collection", string(raw))
}

func TestDecompress_Invalid(t *testing.T) {
	frame := testutil.Compress(t, []byte("some payload that is long enough to be truncated"))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "no magic", data: []byte("plain text")},
		{name: "truncated", data: frame[:len(frame)/2]},
		{name: "empty", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data)
			assert.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}

func TestOpenSchemaReader_ReadsAllTables(t *testing.T) {
	ctx := context.Background()
	raw := testutil.StandardPackage().Collection(t)

	reader, err := OpenSchemaReader(ctx, raw)
	require.NoError(t, err)
	defer reader.Close()

	decks, err := reader.Decks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 3)
	assert.Equal(t, "Languages::German", decks[2].DisplayName())
	assert.Equal(t, []string{"Languages", "German"}, decks[2].Path())

	noteTypes, err := reader.NoteTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, noteTypes, 7)

	fields, err := reader.Fields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 19)

	templates, err := reader.Templates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 9)

	notes, err := reader.Notes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 7)
	note := notes[0].Record()
	assert.Equal(t, int64(3001), note.ID)
	assert.Equal(t, testutil.BasicID, note.NoteTypeID)
	assert.Len(t, note.FieldValues, 2)
	assert.Equal(t, []string{"europe", "geography"}, note.Tags)

	cards, err := reader.Cards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 9)
	assert.Equal(t, CardRecord{ID: 2003, NoteID: 3002, DeckID: testutil.GermanDeckID, TemplateOrdinal: 1}, cards[2])
}

func TestOpenSchemaReader_RemovesTempCopyOnClose(t *testing.T) {
	reader, err := OpenSchemaReader(context.Background(), testutil.StandardPackage().Collection(t))
	require.NoError(t, err)

	dir := reader.tempDir
	require.DirExists(t, dir)
	require.NoError(t, reader.Close())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenSchemaReader_MissingTable(t *testing.T) {
	pkg := testutil.StandardPackage()
	pkg.DropTables = []string{"templates"}

	_, err := OpenSchemaReader(context.Background(), pkg.Collection(t))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpenSchemaReader_NotADatabase(t *testing.T) {
	_, err := OpenSchemaReader(context.Background(), []byte("this is not sqlite at all, just some bytes"))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: []string{}},
		{raw: "  ", want: []string{}},
		{raw: " b a  b ", want: []string{"a", "b"}},
		{raw: "lang::de vocab", want: []string{"lang::de", "vocab"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTags(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNoteRow_Record_SeparatorCount(t *testing.T) {
	row := NoteRow{ID: 1, NoteTypeID: 2, Fields: "a\x1f\x1fc\x1f"}
	rec := row.Record()
	assert.Equal(t, []string{"a", "", "c", ""}, rec.FieldValues)
}
