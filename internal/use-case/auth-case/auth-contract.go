package auth_service

import (
	"context"

	"github.com/xenn00/teamchat/internal/entity"
)

type UserFinder interface {
	FindByID(ctx context.Context, userID string) (*entity.User, error)
}
