package user_repo

import (
	"context"
	"errors"
	"time"

	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"gorm.io/gorm"
)

type UserRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{
		DB: db,
	}
}

func (r *UserRepo) FindByID(ctx context.Context, userID string) (*entity.User, error) {
	var user entity.User

	if err := r.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NotFound("cannot find user", "user-id")
		}
		return nil, app_error.TransientStore("unexpected error occur when fetch user", err)
	}

	return &user, nil
}

// UpdatePresence stores status and, when given, the last-seen time.
func (r *UserRepo) UpdatePresence(ctx context.Context, userID, status string, lastSeen *time.Time) error {
	updates := map[string]any{"status": status}
	if lastSeen != nil {
		updates["last_seen_at"] = *lastSeen
	}

	res := r.DB.WithContext(ctx).Model(&entity.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return app_error.TransientStore("unexpected error occur when updating presence", res.Error)
	}
	if res.RowsAffected == 0 {
		return app_error.NotFound("cannot find user", "user-id")
	}
	return nil
}
