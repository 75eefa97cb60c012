package apkg

import (
	"fmt"
	"sort"
)

// NoteTypeKind distinguishes regular note types from cloze note types.
type NoteTypeKind int

const (
	KindStandard NoteTypeKind = 0
	KindCloze    NoteTypeKind = 1
)

func (k NoteTypeKind) String() string {
	switch k {
	case KindCloze:
		return "cloze"
	default:
		return "standard"
	}
}

// FieldDef is one field of a note type.
type FieldDef struct {
	Ordinal int
	Name    string
}

// TemplateDef is one card template of a note type, with its decoded formats.
type TemplateDef struct {
	Ordinal        int
	Name           string
	QuestionFormat string
	AnswerFormat   string
}

// NoteTypeRecord is the logical note type: fields and templates in ordinal order.
type NoteTypeRecord struct {
	ID        int64
	Name      string
	Kind      NoteTypeKind
	Fields    []FieldDef
	Templates []TemplateDef
}

// FieldIndex returns the position of the named field, or -1.
func (nt *NoteTypeRecord) FieldIndex(name string) int {
	for i, f := range nt.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FieldNames returns field names in ordinal order.
func (nt *NoteTypeRecord) FieldNames() []string {
	names := make([]string, len(nt.Fields))
	for i, f := range nt.Fields {
		names[i] = f.Name
	}
	return names
}

// Template returns the template with the given ordinal.
func (nt *NoteTypeRecord) Template(ordinal int) (TemplateDef, bool) {
	for _, t := range nt.Templates {
		if t.Ordinal == ordinal {
			return t, true
		}
	}
	return TemplateDef{}, false
}

// AssembledNoteTypes is the outcome of assembling note types. Note types whose
// configuration could not be decoded are left out of Records and their decode
// error is kept in Excluded, keyed by note type id.
type AssembledNoteTypes struct {
	Records  map[int64]*NoteTypeRecord
	Excluded map[int64]error
}

// AssembleNoteTypes groups field and template rows under their note type and
// decodes the configuration blobs. Non-contiguous field ordinals and duplicate
// template ordinals are fatal schema violations. A config blob that fails to
// decode only excludes its own note type.
func AssembleNoteTypes(decoder *ConfigDecoder, noteTypes []NoteTypeRow, fields []FieldRow, templates []TemplateRow) (*AssembledNoteTypes, error) {
	result := &AssembledNoteTypes{
		Records:  make(map[int64]*NoteTypeRecord, len(noteTypes)),
		Excluded: make(map[int64]error),
	}

	fieldsByType := make(map[int64][]FieldRow)
	for _, f := range fields {
		fieldsByType[f.NoteTypeID] = append(fieldsByType[f.NoteTypeID], f)
	}
	templatesByType := make(map[int64][]TemplateRow)
	for _, t := range templates {
		templatesByType[t.NoteTypeID] = append(templatesByType[t.NoteTypeID], t)
	}

	for _, row := range noteTypes {
		fieldDefs, err := assembleFields(row, fieldsByType[row.ID])
		if err != nil {
			return nil, err
		}
		if err := checkTemplateOrdinals(row, templatesByType[row.ID]); err != nil {
			return nil, err
		}

		record := &NoteTypeRecord{ID: row.ID, Name: row.Name, Fields: fieldDefs}

		kind, err := decoder.DecodeNoteTypeKind(row.Config)
		if err != nil {
			result.Excluded[row.ID] = fmt.Errorf("note type %d (%s): %w", row.ID, row.Name, err)
			continue
		}
		record.Kind = kind

		tmplRows := templatesByType[row.ID]
		sort.Slice(tmplRows, func(i, j int) bool { return tmplRows[i].Ordinal < tmplRows[j].Ordinal })

		var decodeErr error
		for _, t := range tmplRows {
			cfg, err := decoder.DecodeTemplateConfig(t.Config)
			if err != nil {
				decodeErr = fmt.Errorf("note type %d (%s), template %q: %w", row.ID, row.Name, t.Name, err)
				break
			}
			record.Templates = append(record.Templates, TemplateDef{
				Ordinal:        t.Ordinal,
				Name:           t.Name,
				QuestionFormat: cfg.QuestionFormat,
				AnswerFormat:   cfg.AnswerFormat,
			})
		}
		if decodeErr != nil {
			result.Excluded[row.ID] = decodeErr
			continue
		}

		result.Records[row.ID] = record
	}

	return result, nil
}

func assembleFields(nt NoteTypeRow, rows []FieldRow) ([]FieldDef, error) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Ordinal < rows[j].Ordinal })

	defs := make([]FieldDef, 0, len(rows))
	for i, f := range rows {
		if f.Ordinal != i {
			return nil, fmt.Errorf("%w: note type %d (%s): field ordinals are not contiguous (expected %d, got %d)",
				ErrSchemaMismatch, nt.ID, nt.Name, i, f.Ordinal)
		}
		defs = append(defs, FieldDef{Ordinal: f.Ordinal, Name: f.Name})
	}
	return defs, nil
}

func checkTemplateOrdinals(nt NoteTypeRow, rows []TemplateRow) error {
	seen := make(map[int]struct{}, len(rows))
	for _, t := range rows {
		if _, dup := seen[t.Ordinal]; dup {
			return fmt.Errorf("%w: note type %d (%s): duplicate template ordinal %d",
				ErrSchemaMismatch, nt.ID, nt.Name, t.Ordinal)
		}
		seen[t.Ordinal] = struct{}{}
	}
	return nil
}
