package apkg

import (
	"sort"
	"strings"
)

// FieldSeparator delimits field values inside a note's flds column.
const FieldSeparator = "\x1f"

// deckSeparator delimits deck hierarchy levels in the decks.name column.
const deckSeparator = "\x1f"

// DeckRecord is a row of the decks table.
type DeckRecord struct {
	ID   int64
	Name string
}

// DisplayName renders the deck hierarchy the way users type it: Parent::Child.
func (d DeckRecord) DisplayName() string {
	return strings.ReplaceAll(d.Name, deckSeparator, "::")
}

// Path returns the hierarchy levels of the deck name.
func (d DeckRecord) Path() []string {
	return strings.Split(d.Name, deckSeparator)
}

// NoteTypeRow is a raw row of the notetypes table. Config is an undecoded
// protobuf blob.
type NoteTypeRow struct {
	ID     int64
	Name   string
	Config []byte
}

// FieldRow is a row of the fields table.
type FieldRow struct {
	NoteTypeID int64
	Ordinal    int
	Name       string
}

// TemplateRow is a raw row of the templates table.
type TemplateRow struct {
	NoteTypeID int64
	Ordinal    int
	Name       string
	Config     []byte
}

// NoteRow is a raw row of the notes table.
type NoteRow struct {
	ID         int64
	NoteTypeID int64
	Tags       string
	Fields     string
}

// NoteRecord is a note with its delimited field string split into values.
type NoteRecord struct {
	ID          int64
	NoteTypeID  int64
	FieldValues []string
	Tags        []string
}

// Record splits the raw row into a NoteRecord. The number of values is always
// one more than the number of separators.
func (r NoteRow) Record() NoteRecord {
	return NoteRecord{
		ID:          r.ID,
		NoteTypeID:  r.NoteTypeID,
		FieldValues: strings.Split(r.Fields, FieldSeparator),
		Tags:        ParseTags(r.Tags),
	}
}

// CardRecord is a row of the cards table.
type CardRecord struct {
	ID              int64
	NoteID          int64
	DeckID          int64
	TemplateOrdinal int
}

// ParseTags splits a space-delimited tag string into a sorted, de-duplicated set.
func ParseTags(raw string) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, tag := range strings.Fields(raw) {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
