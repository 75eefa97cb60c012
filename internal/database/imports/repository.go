package imports

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/flashvault/internal/entities"
	"github.com/mrlokans/flashvault/internal/services"
)

// ErrSessionNotFound is returned when no session has the requested id.
var ErrSessionNotFound = errors.New("import session not found")

type Repository struct {
	db *gorm.DB
}

var _ services.ImportHistory = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new session.
func (r *Repository) Create(session *entities.ImportSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if session.Status == "" {
		session.Status = entities.ImportStatusPending
	}
	return r.db.Create(session).Error
}

// Save updates every column of an existing session, or inserts it when it
// has no primary key yet.
func (r *Repository) Save(session *entities.ImportSession) error {
	return r.db.Save(session).Error
}

// List retrieves paginated sessions, most recent first.
func (r *Repository) List(limit, offset int) ([]entities.ImportSession, int64, error) {
	var sessions []entities.ImportSession
	var total int64

	query := r.db.Model(&entities.ImportSession{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&sessions).Error
	return sessions, total, err
}

// GetByExternalID retrieves one session by its public id.
func (r *Repository) GetByExternalID(externalID string) (*entities.ImportSession, error) {
	var session entities.ImportSession
	err := r.db.Where("external_id = ?", externalID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByDigest returns the most recent completed session of a package, or
// nil when it was never imported successfully.
func (r *Repository) GetByDigest(sha256 string) (*entities.ImportSession, error) {
	var session entities.ImportSession
	err := r.db.
		Where("package_sha256 = ? AND status IN ?", sha256, []entities.ImportStatus{entities.ImportStatusCompleted, entities.ImportStatusPartial}).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteOlderThan removes finished sessions started before the cutoff.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.
		Where("started_at < ? AND status NOT IN ?", cutoff, []entities.ImportStatus{entities.ImportStatusPending, entities.ImportStatusRunning}).
		Delete(&entities.ImportSession{})
	return result.RowsAffected, result.Error
}
