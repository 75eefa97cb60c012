package entities

import (
	"time"
)

// FlashcardArtifact is one converted card: the structured record plus the
// generated Markdown body.
type FlashcardArtifact struct {
	CardID        int64             `json:"card_id"`
	NoteID        int64             `json:"note_id"`
	DeckName      string            `json:"deck_name"`
	NoteTypeName  string            `json:"note_type_name"`
	TemplateName  string            `json:"template_name"`
	Fields        map[string]string `json:"fields"` // field name -> raw HTML value
	Tags          []string          `json:"tags"`
	Question      string            `json:"question"`
	Answer        string            `json:"answer"`
	GeneratedBody string            `json:"generated_body"`
	MediaRefs     []string          `json:"media_refs"`
}

// CardFailure records a card that could not be materialized.
type CardFailure struct {
	CardID  int64  `json:"card_id"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// ImportReport is the outcome of one package import. Artifacts and Failures
// are ordered by ascending card id.
type ImportReport struct {
	Artifacts    []FlashcardArtifact `json:"artifacts"`
	Failures     []CardFailure       `json:"failures"`
	Media        []string            `json:"media"`
	MissingMedia []string            `json:"missing_media,omitempty"`

	Decks     int `json:"decks"`
	NoteTypes int `json:"note_types"`
	Notes     int `json:"notes"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusPartial   ImportStatus = "partial"
	ImportStatusFailed    ImportStatus = "failed"
	ImportStatusCancelled ImportStatus = "cancelled"
)

// ImportTrigger names the surface that started an import.
type ImportTrigger string

const (
	ImportTriggerCLI   ImportTrigger = "cli"
	ImportTriggerHTTP  ImportTrigger = "http"
	ImportTriggerTask  ImportTrigger = "task"
	ImportTriggerInbox ImportTrigger = "inbox"
)

// ImportSession is the persisted history entry of one package import.
type ImportSession struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ExternalID    string        `gorm:"uniqueIndex;size:36" json:"external_id"`
	Trigger       ImportTrigger `gorm:"size:20" json:"trigger"`
	PackageName   string        `gorm:"size:512" json:"package_name"`
	PackageSHA256 string        `gorm:"index;size:64" json:"package_sha256"`
	Status        ImportStatus  `gorm:"size:20;default:'pending'" json:"status"`

	Decks          int `json:"decks"`
	NoteTypes      int `json:"note_types"`
	Notes          int `json:"notes"`
	CardsTotal     int `json:"cards_total"`
	CardsSucceeded int `json:"cards_succeeded"`
	CardsFailed    int `json:"cards_failed"`
	MediaFiles     int `json:"media_files"`
	FilesWritten   int `json:"files_written"`

	ErrorKind string `gorm:"size:50" json:"error_kind,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
	Failures  string `gorm:"type:text" json:"failures,omitempty"` // JSON array of CardFailure

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ImportSession) TableName() string {
	return "import_sessions"
}
