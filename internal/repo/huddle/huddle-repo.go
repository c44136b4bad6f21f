package huddle_repo

import (
	"context"
	"errors"

	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HuddleRepo struct {
	DB *gorm.DB
}

func NewHuddleRepo(db *gorm.DB) *HuddleRepo {
	return &HuddleRepo{DB: db}
}

func (r *HuddleRepo) Get(ctx context.Context, huddleID string) (*entity.Huddle, error) {
	var huddle entity.Huddle
	if err := r.DB.WithContext(ctx).Where("id = ?", huddleID).First(&huddle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NotFound("huddle not found", "huddleId")
		}
		return nil, app_error.TransientStore("failed to load huddle", err)
	}
	return &huddle, nil
}

// UpdateParticipantMedia applies a partial media update to the participant
// row, creating it on first use. The huddle row is locked so concurrent
// updates from several devices serialize.
func (r *HuddleRepo) UpdateParticipantMedia(ctx context.Context, huddleID, userID string, media entity.MediaState) (*entity.HuddleParticipant, error) {
	var participant entity.HuddleParticipant

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var huddle entity.Huddle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", huddleID).First(&huddle).Error; err != nil {
			return err
		}
		if huddle.Status == entity.HuddleEnded {
			return app_error.NotFound("huddle has ended", "huddleId")
		}

		if err := tx.Where(entity.HuddleParticipant{HuddleID: huddleID, UserID: userID}).
			FirstOrCreate(&participant).Error; err != nil {
			return err
		}

		participant.Apply(media)
		return tx.Model(&participant).Select("is_muted", "is_video_on", "is_screen_sharing").Updates(&participant).Error
	})
	if err != nil {
		var appErr *app_error.AppError
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, app_error.NotFound("huddle not found", "huddleId")
		}
		return nil, app_error.TransientStore("failed to update participant", err)
	}
	return &participant, nil
}
