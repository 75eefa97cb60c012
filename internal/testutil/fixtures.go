package testutil

// Note type ids of the standard fixture.
const (
	BasicID            int64 = 1001
	BasicReversedID    int64 = 1002
	OptionalReversedID int64 = 1003
	TypeInID           int64 = 1004
	ClozeID            int64 = 1005
	ImageOcclusionID   int64 = 1006
	VocabularyID       int64 = 1007
)

// Deck ids of the standard fixture.
const (
	DefaultDeckID   int64 = 1
	LanguagesDeckID int64 = 2
	GermanDeckID    int64 = 3
)

// ImageName is the only media file of the standard fixture.
const ImageName = "my image.png"

// ImageData is the content stored for ImageName.
var ImageData = []byte("\x89PNG\r\n\x1a\nfixture")

// StandardNoteTypes returns the stock note types plus one custom type.
func StandardNoteTypes() []NoteType {
	return []NoteType{
		{
			ID:     BasicID,
			Name:   "Basic",
			Fields: []string{"Front", "Back"},
			Templates: []Template{
				{Name: "Card 1", Question: "{{Front}}", Answer: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}"},
			},
		},
		{
			ID:     BasicReversedID,
			Name:   "Basic (and reversed card)",
			Fields: []string{"Front", "Back"},
			Templates: []Template{
				{Name: "Card 1", Question: "{{Front}}", Answer: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}"},
				{Name: "Card 2", Question: "{{Back}}", Answer: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Front}}"},
			},
		},
		{
			ID:     OptionalReversedID,
			Name:   "Basic (optional reversed card)",
			Fields: []string{"Front", "Back", "Add Reverse"},
			Templates: []Template{
				{Name: "Card 1", Question: "{{Front}}", Answer: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}"},
				{Name: "Card 2", Question: "{{#Add Reverse}}{{Back}}{{/Add Reverse}}", Answer: "{{FrontSide}}\n\n<hr id=answer>\n\n{{Front}}"},
			},
		},
		{
			ID:     TypeInID,
			Name:   "Basic (type in the answer)",
			Fields: []string{"Front", "Back"},
			Templates: []Template{
				{Name: "Card 1", Question: "{{Front}}\n\n{{type:Back}}", Answer: "{{Front}}\n\n<hr id=answer>\n\n{{type:Back}}"},
			},
		},
		{
			ID:     ClozeID,
			Name:   "Cloze",
			Cloze:  true,
			Fields: []string{"Text", "Back Extra"},
			Templates: []Template{
				{Name: "Cloze", Question: "{{cloze:Text}}", Answer: "{{cloze:Text}}<br>\n{{Back Extra}}"},
			},
		},
		{
			ID:     ImageOcclusionID,
			Name:   "Image Occlusion",
			Cloze:  true,
			Fields: []string{"Occlusion", "Image", "Header", "Back Extra", "Comments"},
			Templates: []Template{
				{
					Name:     "Image Occlusion",
					Question: "{{#Header}}<div>{{Header}}</div>{{/Header}}\n<div style=\"display: none\">{{cloze:Occlusion}}</div>\n{{Image}}",
					Answer:   "{{#Header}}<div>{{Header}}</div>{{/Header}}\n{{cloze:Occlusion}}\n{{Image}}\n{{#Back Extra}}<div>{{Back Extra}}</div>{{/Back Extra}}",
				},
			},
		},
		{
			ID:     VocabularyID,
			Name:   "Vocabulary",
			Fields: []string{"Word", "Meaning", "Example"},
			Templates: []Template{
				{
					Name:     "Recognition",
					Question: "<h2>{{Word}}</h2>{{#Example}}<p><i>{{Example}}</i></p>{{/Example}}",
					Answer:   "{{FrontSide}}<hr id=answer>{{Meaning}}",
				},
			},
		},
	}
}

// StandardPackage is the end-to-end fixture: 3 decks, 7 note types, 7 notes,
// 9 cards and 1 media file.
func StandardPackage() Package {
	return Package{
		Decks: []Deck{
			{ID: DefaultDeckID, Name: "Default"},
			{ID: LanguagesDeckID, Name: "Languages"},
			{ID: GermanDeckID, Name: "Languages\x1fGerman"},
		},
		NoteTypes: StandardNoteTypes(),
		Notes: []Note{
			{ID: 3001, NoteTypeID: BasicID, Fields: []string{"What is the capital of <b>France</b>?", `Paris<br><img src="my%20image.png">`}, Tags: "geography europe"},
			{ID: 3002, NoteTypeID: BasicReversedID, Fields: []string{"der Hund", "the dog"}, Tags: "german nouns"},
			{ID: 3003, NoteTypeID: OptionalReversedID, Fields: []string{"die Katze", "the cat", "y"}, Tags: "german"},
			{ID: 3004, NoteTypeID: TypeInID, Fields: []string{"2 + 2 =", "4"}, Tags: ""},
			{ID: 3005, NoteTypeID: ClozeID, Fields: []string{"{{c1::Berlin}} is the capital of {{c2::Germany::country}}", "Since 1990"}, Tags: "geography"},
			{ID: 3006, NoteTypeID: ImageOcclusionID, Fields: []string{
				"{{c1::image-occlusion:rect:left=.1:top=.2:width=.3:height=.4:oi=1}}",
				`<img src="my%20image.png">`,
				"Label the map",
				"",
				"",
			}, Tags: "geography maps"},
			{ID: 3007, NoteTypeID: VocabularyID, Fields: []string{"Schmetterling", "<ul><li>butterfly</li><li>moth (rare)</li></ul>", "Der Schmetterling fliegt."}, Tags: "german nouns"},
		},
		Cards: []Card{
			{ID: 2001, NoteID: 3001, DeckID: DefaultDeckID, Ordinal: 0},
			{ID: 2002, NoteID: 3002, DeckID: GermanDeckID, Ordinal: 0},
			{ID: 2003, NoteID: 3002, DeckID: GermanDeckID, Ordinal: 1},
			{ID: 2004, NoteID: 3003, DeckID: GermanDeckID, Ordinal: 0},
			{ID: 2005, NoteID: 3003, DeckID: GermanDeckID, Ordinal: 1},
			{ID: 2006, NoteID: 3004, DeckID: DefaultDeckID, Ordinal: 0},
			{ID: 2007, NoteID: 3005, DeckID: DefaultDeckID, Ordinal: 0},
			{ID: 2008, NoteID: 3006, DeckID: LanguagesDeckID, Ordinal: 0},
			{ID: 2009, NoteID: 3007, DeckID: GermanDeckID, Ordinal: 0},
		},
		Media: []Media{
			{Name: ImageName, Data: ImageData},
		},
	}
}
