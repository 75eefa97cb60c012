package importers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrlokans/flashvault/internal/apkg"
	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/markdown"
)

// answerSeparator splits question and answer in the generated body.
const answerSeparator = "\n?\n"

// Materializer turns card rows into flashcard artifacts. It only reads the
// lookup tables built at construction time, so Materialize may be called
// from several goroutines at once.
type Materializer struct {
	noteTypes map[int64]*apkg.NoteTypeRecord
	excluded  map[int64]error
	notes     map[int64]apkg.NoteRecord
	decks     map[int64]apkg.DeckRecord
}

// NewMaterializer indexes the assembled note types, notes and decks.
func NewMaterializer(noteTypes *apkg.AssembledNoteTypes, notes []apkg.NoteRecord, decks []apkg.DeckRecord) *Materializer {
	m := &Materializer{
		noteTypes: noteTypes.Records,
		excluded:  noteTypes.Excluded,
		notes:     make(map[int64]apkg.NoteRecord, len(notes)),
		decks:     make(map[int64]apkg.DeckRecord, len(decks)),
	}
	for _, n := range notes {
		m.notes[n.ID] = n
	}
	for _, d := range decks {
		m.decks[d.ID] = d
	}
	return m
}

// Materialize renders one card. Every error wraps apkg.ErrCardConversion.
func (m *Materializer) Materialize(card apkg.CardRecord) (entities.FlashcardArtifact, error) {
	fail := func(format string, args ...any) (entities.FlashcardArtifact, error) {
		return entities.FlashcardArtifact{}, fmt.Errorf("%w: card %d: %s", apkg.ErrCardConversion, card.ID, fmt.Sprintf(format, args...))
	}

	note, ok := m.notes[card.NoteID]
	if !ok {
		return fail("note %d not found", card.NoteID)
	}
	if cause, excluded := m.excluded[note.NoteTypeID]; excluded {
		return entities.FlashcardArtifact{}, fmt.Errorf("%w: card %d: %w", apkg.ErrCardConversion, card.ID, cause)
	}
	noteType, ok := m.noteTypes[note.NoteTypeID]
	if !ok {
		return fail("note type %d not found", note.NoteTypeID)
	}
	deck, ok := m.decks[card.DeckID]
	if !ok {
		return fail("deck %d not found", card.DeckID)
	}
	if len(note.FieldValues) != len(noteType.Fields) {
		return fail("note %d has %d field values, note type %q defines %d",
			note.ID, len(note.FieldValues), noteType.Name, len(noteType.Fields))
	}

	ordinal := card.TemplateOrdinal
	if noteType.Kind == apkg.KindCloze {
		// Cloze cards share the single template and show every deletion.
		ordinal = 0
	}
	tmpl, ok := noteType.Template(ordinal)
	if !ok {
		return fail("template ordinal %d out of range for note type %q", card.TemplateOrdinal, noteType.Name)
	}

	fields := make(map[string]string, len(noteType.Fields))
	for i, f := range noteType.Fields {
		fields[f.Name] = note.FieldValues[i]
	}

	path := deck.Path()
	ctx := renderContext{
		fields: fields,
		special: map[string]string{
			fieldTags:    strings.Join(note.Tags, " "),
			fieldDeck:    deck.DisplayName(),
			fieldSubdeck: path[len(path)-1],
			fieldType:    noteType.Name,
			fieldCard:    tmpl.Name,
		},
		template: tmpl.Name,
	}

	ctx.side = questionSide
	questionHTML, err := renderTemplate(tmpl.QuestionFormat, ctx)
	if err != nil {
		return fail("%v", err)
	}
	ctx.side = answerSide
	answerHTML, err := renderTemplate(tmpl.AnswerFormat, ctx)
	if err != nil {
		return fail("%v", err)
	}

	question := markdown.Convert(questionHTML)
	if question.Markdown == "" {
		return fail("question of template %q renders empty", tmpl.Name)
	}
	answer := markdown.Convert(answerOnly(answerHTML))

	body := question.Markdown
	if answer.Markdown != "" {
		body += answerSeparator + answer.Markdown
	}

	tags := make([]string, len(note.Tags))
	copy(tags, note.Tags)

	return entities.FlashcardArtifact{
		CardID:        card.ID,
		NoteID:        note.ID,
		DeckName:      deck.DisplayName(),
		NoteTypeName:  noteType.Name,
		TemplateName:  tmpl.Name,
		Fields:        fields,
		Tags:          tags,
		Question:      question.Markdown,
		Answer:        answer.Markdown,
		GeneratedBody: body,
		MediaRefs:     unionSorted(question.Media, answer.Media),
	}, nil
}

func unionSorted(sets ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, set := range sets {
		for _, v := range set {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
