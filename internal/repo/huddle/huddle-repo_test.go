package huddle_repo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("CHATAPP_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("CHATAPP_TEST_POSTGRES_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entity.Huddle{}, &entity.HuddleParticipant{}))
	return db
}

func TestHuddleRepo_UpdateParticipantMedia(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewHuddleRepo(db)

	huddle := entity.Huddle{ID: uuid.NewString(), ChannelID: uuid.NewString(), InitiatorID: uuid.NewString(), Status: entity.HuddleActive}
	require.NoError(t, db.Create(&huddle).Error)
	t.Cleanup(func() {
		db.Where("huddle_id = ?", huddle.ID).Delete(&entity.HuddleParticipant{})
		db.Delete(&huddle)
	})

	user := uuid.NewString()
	muted, video := true, true

	p, err := repo.UpdateParticipantMedia(ctx, huddle.ID, user, entity.MediaState{Muted: &muted})
	require.NoError(t, err)
	assert.True(t, p.IsMuted)
	assert.False(t, p.IsVideoOn)

	p, err = repo.UpdateParticipantMedia(ctx, huddle.ID, user, entity.MediaState{Video: &video})
	require.NoError(t, err)
	assert.True(t, p.IsMuted)
	assert.True(t, p.IsVideoOn)

	_, err = repo.UpdateParticipantMedia(ctx, uuid.NewString(), user, entity.MediaState{Muted: &muted})
	assert.True(t, app_error.IsKind(err, app_error.KindNotFound))

	require.NoError(t, db.Model(&huddle).Update("status", entity.HuddleEnded).Error)
	_, err = repo.UpdateParticipantMedia(ctx, huddle.ID, user, entity.MediaState{Muted: &muted})
	assert.True(t, app_error.IsKind(err, app_error.KindNotFound))

	_, err = repo.Get(ctx, uuid.NewString())
	assert.True(t, app_error.IsKind(err, app_error.KindNotFound))
}
