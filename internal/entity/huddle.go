package entity

import "time"

const (
	HuddleActive = "active"
	HuddleEnded  = "ended"
)

type Huddle struct {
	ID              string     `gorm:"primaryKey;type:uuid"`
	ChannelID       string     `gorm:"not null;type:uuid;index"`
	InitiatorID     string     `gorm:"not null;type:uuid"`
	Name            string     `gorm:"not null;default:Huddle"`
	Type            string     `gorm:"not null;default:audio"`
	Status          string     `gorm:"not null;default:active"`
	MaxParticipants int        `gorm:"not null;default:50"`
	StartedAt       time.Time  `gorm:"autoCreateTime"`
	EndedAt         *time.Time
}

type HuddleParticipant struct {
	ID              int64     `gorm:"primaryKey" json:"-"`
	HuddleID        string    `gorm:"not null;type:uuid;index:idx_huddle_participant,unique" json:"huddleId"`
	UserID          string    `gorm:"not null;type:uuid;index:idx_huddle_participant,unique" json:"userId"`
	JoinedAt        time.Time `gorm:"autoCreateTime" json:"joinedAt"`
	IsMuted         bool      `gorm:"not null;default:false" json:"isMuted"`
	IsVideoOn       bool      `gorm:"not null;default:false" json:"isVideoOn"`
	IsScreenSharing bool      `gorm:"not null;default:false" json:"isScreenSharing"`
}

// MediaState is a partial update; nil fields are left untouched.
type MediaState struct {
	Muted       *bool
	Video       *bool
	ScreenShare *bool
}

func (p *HuddleParticipant) Apply(m MediaState) {
	if m.Muted != nil {
		p.IsMuted = *m.Muted
	}
	if m.Video != nil {
		p.IsVideoOn = *m.Video
	}
	if m.ScreenShare != nil {
		p.IsScreenSharing = *m.ScreenShare
	}
}
