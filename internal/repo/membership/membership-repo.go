package membership_repo

import (
	"context"

	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"gorm.io/gorm"
)

type MembershipRepo struct {
	DB *gorm.DB
}

func NewMembershipRepo(db *gorm.DB) *MembershipRepo {
	return &MembershipRepo{DB: db}
}

const channelsOfQuery = `
SELECT c.id FROM channels c
LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = ?
WHERE c.is_archived = false
  AND (cm.user_id IS NOT NULL
       OR (c.type = ? AND c.workspace_id IN (
           SELECT wm.workspace_id FROM workspace_members wm WHERE wm.user_id = ? AND wm.is_active = true)))
ORDER BY c.id`

// ChannelsOf returns the channels the user joined plus public channels of
// the workspaces they are active in. Archived channels are skipped.
func (r *MembershipRepo) ChannelsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.DB.WithContext(ctx).Raw(channelsOfQuery, userID, entity.ChannelPublic, userID).Scan(&ids).Error; err != nil {
		return nil, app_error.TransientStore("failed to list channels", err)
	}
	return ids, nil
}

func (r *MembershipRepo) WorkspacesOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&entity.WorkspaceMember{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("workspace_id").
		Pluck("workspace_id", &ids).Error
	if err != nil {
		return nil, app_error.TransientStore("failed to list workspaces", err)
	}
	return ids, nil
}

func (r *MembershipRepo) IsChannelMember(ctx context.Context, channelID, userID string) (bool, error) {
	return exists(r.DB.WithContext(ctx).Model(&entity.ChannelMember{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID))
}

func (r *MembershipRepo) IsPublicChannel(ctx context.Context, channelID string) (bool, error) {
	return exists(r.DB.WithContext(ctx).Model(&entity.Channel{}).
		Where("id = ? AND type = ? AND is_archived = ?", channelID, entity.ChannelPublic, false))
}

func (r *MembershipRepo) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	return exists(r.DB.WithContext(ctx).Model(&entity.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ? AND is_active = ?", workspaceID, userID, true))
}

func exists(query *gorm.DB) (bool, error) {
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, app_error.TransientStore("failed to check membership", err)
	}
	return count > 0, nil
}
