package entity

import "time"

const (
	ChannelPublic  = "public"
	ChannelPrivate = "private"
	ChannelDirect  = "direct"
	ChannelGroup   = "group"
)

type Channel struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	WorkspaceID string    `gorm:"not null;type:uuid;index"`
	Name        string    `gorm:"not null"`
	Type        string    `gorm:"not null;default:public"`
	CreatorID   string    `gorm:"not null;type:uuid"`
	IsArchived  bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (c *Channel) IsPublic() bool {
	return c.Type == ChannelPublic && !c.IsArchived
}

type ChannelMember struct {
	ID        int64     `gorm:"primaryKey"`
	ChannelID string    `gorm:"not null;type:uuid;index:idx_channel_member,unique"`
	UserID    string    `gorm:"not null;type:uuid;index:idx_channel_member,unique"`
	Role      string    `gorm:"not null;default:member"`
	JoinedAt  time.Time `gorm:"autoCreateTime"`
}
