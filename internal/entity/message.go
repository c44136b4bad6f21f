package entity

import (
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindFile  MessageKind = "file"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindAudio MessageKind = "audio"
	KindCode  MessageKind = "code"
)

type Attachment struct {
	Type     string `bson:"type" json:"type"`
	URL      string `bson:"url" json:"url"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	MimeType string `bson:"mime_type,omitempty" json:"mimeType,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

type Message struct {
	ID          string       `bson:"_id" json:"id"`
	ChannelID   string       `bson:"channel_id" json:"channelId"`
	SenderID    string       `bson:"sender_id" json:"senderId"`
	Content     string       `bson:"content" json:"content"`
	Kind        MessageKind  `bson:"kind" json:"type"`
	ParentID    *string      `bson:"parent_id,omitempty" json:"parentId,omitempty"`
	ThreadCount int          `bson:"thread_count" json:"threadCount"`
	Attachments []Attachment `bson:"attachments" json:"attachments"`
	Mentions    []string     `bson:"mentions" json:"mentions"`
	Reactions   Reactions    `bson:"reactions" json:"reactions"`
	IsEdited    bool         `bson:"is_edited" json:"isEdited"`
	EditedAt    *time.Time   `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	IsDeleted   bool         `bson:"is_deleted" json:"isDeleted"`
	DeletedAt   *time.Time   `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
	IsPinned    bool         `bson:"is_pinned" json:"isPinned"`
	PinnedBy    *string      `bson:"pinned_by,omitempty" json:"pinnedBy,omitempty"`
	PinnedAt    *time.Time   `bson:"pinned_at,omitempty" json:"pinnedAt,omitempty"`
	Version     int64        `bson:"version" json:"-"`
	CreatedAt   time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updatedAt"`
}

func ValidMessageKind(k MessageKind) bool {
	switch k {
	case KindText, KindFile, KindImage, KindVideo, KindAudio, KindCode:
		return true
	}
	return false
}
