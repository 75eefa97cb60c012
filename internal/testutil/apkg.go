// Package testutil builds real flashcard packages in memory for tests: a
// SQLite collection with the modern schema, zstd framed, next to a protobuf
// media manifest and numbered media entries, all zipped together.
package testutil

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/mattn/go-sqlite3"
	"google.golang.org/protobuf/encoding/protowire"
)

const sqliteDriver = "sqlite3_testutil"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterCollation("unicase", func(a, b string) int {
				return strings.Compare(strings.ToLower(a), strings.ToLower(b))
			})
		},
	})
}

// Deck is a row of the decks table. Levels of the hierarchy are joined with
// \x1f, as exporters store them.
type Deck struct {
	ID   int64
	Name string
}

// Template is a card template. Config overrides the encoded question/answer
// formats when set.
type Template struct {
	Name     string
	Question string
	Answer   string
	Config   []byte
}

// NoteType is a note type with its fields and templates in ordinal order.
// Config overrides the encoded kind when set.
type NoteType struct {
	ID        int64
	Name      string
	Cloze     bool
	Fields    []string
	Templates []Template
	Config    []byte
}

// Note is a row of the notes table.
type Note struct {
	ID         int64
	NoteTypeID int64
	Fields     []string
	Tags       string
}

// Card is a row of the cards table.
type Card struct {
	ID      int64
	NoteID  int64
	DeckID  int64
	Ordinal int
}

// Media is one media file; its archive entry name is its position.
type Media struct {
	Name string
	Data []byte
}

// Package describes a package to build.
type Package struct {
	Decks     []Deck
	NoteTypes []NoteType
	Notes     []Note
	Cards     []Card
	Media     []Media

	// OmitCollection leaves out the compressed collection entry.
	OmitCollection bool
	// LegacyCollection adds an uncompressed collection.anki2 entry.
	LegacyCollection bool
	// DropTables removes tables from the collection after creating it.
	DropTables []string
	// RawManifest replaces the encoded media manifest.
	RawManifest []byte
	// PlainManifest stores the manifest without zstd framing.
	PlainManifest bool
	// OmitManifest leaves out the media entry.
	OmitManifest bool
}

var schemaStatements = []string{
	`CREATE TABLE col (id integer PRIMARY KEY, crt integer NOT NULL, mod integer NOT NULL, scm integer NOT NULL, ver integer NOT NULL)`,
	`CREATE TABLE decks (id integer PRIMARY KEY NOT NULL, name text NOT NULL COLLATE unicase, mtime_secs integer NOT NULL DEFAULT 0, usn integer NOT NULL DEFAULT 0, common blob, kind blob)`,
	`CREATE TABLE notetypes (id integer PRIMARY KEY NOT NULL, name text NOT NULL COLLATE unicase, mtime_secs integer NOT NULL DEFAULT 0, usn integer NOT NULL DEFAULT 0, config blob NOT NULL)`,
	`CREATE TABLE fields (ntid integer NOT NULL, ord integer NOT NULL, name text NOT NULL COLLATE unicase, config blob, PRIMARY KEY (ntid, ord))`,
	`CREATE TABLE templates (ntid integer NOT NULL, ord integer NOT NULL, name text NOT NULL COLLATE unicase, mtime_secs integer NOT NULL DEFAULT 0, usn integer NOT NULL DEFAULT 0, config blob NOT NULL, PRIMARY KEY (ntid, ord))`,
	`CREATE TABLE notes (id integer PRIMARY KEY, guid text NOT NULL DEFAULT '', mid integer NOT NULL, mod integer NOT NULL DEFAULT 0, usn integer NOT NULL DEFAULT 0, tags text NOT NULL, flds text NOT NULL, sfld integer NOT NULL DEFAULT 0, csum integer NOT NULL DEFAULT 0, flags integer NOT NULL DEFAULT 0, data text NOT NULL DEFAULT '')`,
	`CREATE TABLE cards (id integer PRIMARY KEY, nid integer NOT NULL, did integer NOT NULL, ord integer NOT NULL, mod integer NOT NULL DEFAULT 0, usn integer NOT NULL DEFAULT 0, type integer NOT NULL DEFAULT 0, queue integer NOT NULL DEFAULT 0, due integer NOT NULL DEFAULT 0, ivl integer NOT NULL DEFAULT 0, factor integer NOT NULL DEFAULT 0, reps integer NOT NULL DEFAULT 0, lapses integer NOT NULL DEFAULT 0, left integer NOT NULL DEFAULT 0, odue integer NOT NULL DEFAULT 0, odid integer NOT NULL DEFAULT 0, flags integer NOT NULL DEFAULT 0, data text NOT NULL DEFAULT '')`,
}

// Build returns the zipped package bytes.
func (p Package) Build(t testing.TB) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", name, err)
		}
	}

	if p.LegacyCollection {
		write("collection.anki2", []byte("SQLite format 3\x00"))
	}
	if !p.OmitCollection {
		write("collection.anki21b", Compress(t, p.Collection(t)))
	}
	if !p.OmitManifest {
		manifest := p.RawManifest
		if manifest == nil {
			manifest = p.Manifest()
		}
		if !p.PlainManifest {
			manifest = Compress(t, manifest)
		}
		write("media", manifest)
	}
	for i, m := range p.Media {
		write(strconv.Itoa(i), m.Data)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// WriteFile builds the package into dir and returns its path.
func (p Package) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.Build(t), 0644); err != nil {
		t.Fatalf("failed to write package: %v", err)
	}
	return path
}

// Collection returns the uncompressed SQLite collection bytes.
func (p Package) Collection(t testing.TB) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "collection.db")
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		t.Fatalf("failed to open collection: %v", err)
	}

	exec := func(query string, args ...any) {
		if _, err := db.Exec(query, args...); err != nil {
			db.Close()
			t.Fatalf("failed to execute %q: %v", query, err)
		}
	}

	for _, stmt := range schemaStatements {
		exec(stmt)
	}
	exec(`INSERT INTO col (id, crt, mod, scm, ver) VALUES (1, 0, 0, 0, 18)`)

	for _, d := range p.Decks {
		exec(`INSERT INTO decks (id, name) VALUES (?, ?)`, d.ID, d.Name)
	}
	for _, nt := range p.NoteTypes {
		config := nt.Config
		if config == nil {
			config = NoteTypeConfig(nt.Cloze)
		}
		exec(`INSERT INTO notetypes (id, name, config) VALUES (?, ?, ?)`, nt.ID, nt.Name, config)
		for ord, name := range nt.Fields {
			exec(`INSERT INTO fields (ntid, ord, name, config) VALUES (?, ?, ?, x'')`, nt.ID, ord, name)
		}
		for ord, tmpl := range nt.Templates {
			tc := tmpl.Config
			if tc == nil {
				tc = TemplateConfig(tmpl.Question, tmpl.Answer)
			}
			exec(`INSERT INTO templates (ntid, ord, name, config) VALUES (?, ?, ?, ?)`, nt.ID, ord, tmpl.Name, tc)
		}
	}
	for _, n := range p.Notes {
		exec(`INSERT INTO notes (id, mid, tags, flds) VALUES (?, ?, ?, ?)`, n.ID, n.NoteTypeID, n.Tags, strings.Join(n.Fields, "\x1f"))
	}
	for _, c := range p.Cards {
		exec(`INSERT INTO cards (id, nid, did, ord) VALUES (?, ?, ?, ?)`, c.ID, c.NoteID, c.DeckID, c.Ordinal)
	}
	for _, table := range p.DropTables {
		exec(`DROP TABLE ` + table)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("failed to close collection: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read collection: %v", err)
	}
	return data
}

// Manifest encodes the media manifest of the package, unframed.
func (p Package) Manifest() []byte {
	var out []byte
	for _, m := range p.Media {
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, MediaEntry(m.Name, uint64(len(m.Data))))
	}
	return out
}

// MediaEntry encodes one manifest record.
func MediaEntry(name string, size uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, size)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, make([]byte, 20))
	return b
}

// TemplateConfig encodes a template configuration blob.
func TemplateConfig(question, answer string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, question)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, answer)
	return b
}

// NoteTypeConfig encodes a note type configuration blob.
func NoteTypeConfig(cloze bool) []byte {
	var kind uint64
	if cloze {
		kind = 1
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, kind)
	// Field 2 (sort field index) is outside the decoded schema.
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 0)
	return b
}

// Compress wraps data in a zstd frame.
func Compress(t testing.TB, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("failed to create zstd encoder: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}
