package imports

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/flashvault/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.ImportSession{})
	require.NoError(t, err)

	return db
}

func newSession(id string, status entities.ImportStatus, startedAt time.Time) *entities.ImportSession {
	return &entities.ImportSession{
		ExternalID:    id,
		Trigger:       entities.ImportTriggerCLI,
		PackageName:   id + ".apkg",
		PackageSHA256: "digest-" + id,
		Status:        status,
		StartedAt:     startedAt,
	}
}

func TestRepository_Create(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	session := &entities.ImportSession{ExternalID: "abc"}
	require.NoError(t, repo.Create(session))

	assert.NotZero(t, session.ID)
	assert.False(t, session.StartedAt.IsZero())
	assert.Equal(t, entities.ImportStatusPending, session.Status)

	err := repo.Create(&entities.ImportSession{ExternalID: "abc"})
	assert.Error(t, err, "external id must be unique")
}

func TestRepository_Save(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	session := newSession("abc", entities.ImportStatusRunning, time.Now())
	require.NoError(t, repo.Create(session))

	completed := time.Now()
	session.Status = entities.ImportStatusPartial
	session.CardsTotal = 9
	session.CardsFailed = 1
	session.Failures = `[{"card_id":1}]`
	session.CompletedAt = &completed
	require.NoError(t, repo.Save(session))

	stored, err := repo.GetByExternalID("abc")
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
	assert.Equal(t, entities.ImportStatusPartial, stored.Status)
	assert.Equal(t, 9, stored.CardsTotal)
	assert.Equal(t, 1, stored.CardsFailed)
	assert.Equal(t, `[{"card_id":1}]`, stored.Failures)
	assert.NotNil(t, stored.CompletedAt)
}

func TestRepository_GetByExternalID_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, err := repo.GetByExternalID("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRepository_List(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	base := time.Now()
	for i := 0; i < 15; i++ {
		session := newSession(fmt.Sprintf("s%02d", i), entities.ImportStatusCompleted, base.Add(time.Duration(-i)*time.Hour))
		require.NoError(t, repo.Create(session))
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantCount int
		wantFirst string
	}{
		{name: "first page", limit: 10, offset: 0, wantCount: 10, wantFirst: "s00"},
		{name: "second page", limit: 10, offset: 10, wantCount: 5, wantFirst: "s10"},
		{name: "default limit", limit: 0, offset: 0, wantCount: 15, wantFirst: "s00"},
		{name: "negative offset", limit: 5, offset: -3, wantCount: 5, wantFirst: "s00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, total, err := repo.List(tt.limit, tt.offset)
			require.NoError(t, err)

			assert.Equal(t, int64(15), total)
			require.Len(t, sessions, tt.wantCount)
			assert.Equal(t, tt.wantFirst, sessions[0].ExternalID)
		})
	}
}

func TestRepository_GetByDigest(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	now := time.Now()
	require.NoError(t, repo.Create(newSession("failed", entities.ImportStatusFailed, now)))
	old := newSession("old", entities.ImportStatusCompleted, now.Add(-2*time.Hour))
	old.PackageSHA256 = "shared"
	require.NoError(t, repo.Create(old))
	recent := newSession("recent", entities.ImportStatusPartial, now.Add(-time.Hour))
	recent.PackageSHA256 = "shared"
	require.NoError(t, repo.Create(recent))

	session, err := repo.GetByDigest("shared")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "recent", session.ExternalID)

	session, err = repo.GetByDigest("digest-failed")
	require.NoError(t, err)
	assert.Nil(t, session, "failed imports do not count")

	session, err = repo.GetByDigest("unknown")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	now := time.Now()
	require.NoError(t, repo.Create(newSession("old-done", entities.ImportStatusCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, repo.Create(newSession("old-running", entities.ImportStatusRunning, now.Add(-48*time.Hour))))
	require.NoError(t, repo.Create(newSession("new-done", entities.ImportStatusCompleted, now)))

	deleted, err := repo.DeleteOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = repo.GetByExternalID("old-done")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
