package entity

import "time"

type Workspace struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Name      string    `gorm:"not null"`
	Slug      string    `gorm:"uniqueIndex"`
	OwnerID   string    `gorm:"not null;type:uuid"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type WorkspaceMember struct {
	ID          int64     `gorm:"primaryKey"`
	WorkspaceID string    `gorm:"not null;type:uuid;index:idx_workspace_member,unique"`
	UserID      string    `gorm:"not null;type:uuid;index:idx_workspace_member,unique"`
	Role        string    `gorm:"not null;default:member"`
	IsActive    bool      `gorm:"not null;default:true"`
	JoinedAt    time.Time `gorm:"autoCreateTime"`
}
