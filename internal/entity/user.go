package entity

import (
	"time"
)

type User struct {
	ID          string     `gorm:"primaryKey;type:uuid"`
	Username    string     `gorm:"uniqueIndex"`
	Email       string     `gorm:"uniqueIndex"`
	DisplayName string
	AvatarURL   string
	Status      string     `gorm:"not null;default:offline"`
	IsActive    bool       `gorm:"not null"`
	LastSeenAt  *time.Time
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// Name is what other members see; falls back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
