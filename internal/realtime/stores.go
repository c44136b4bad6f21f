package realtime

import (
	"context"
	"time"

	"github.com/xenn00/teamchat/internal/entity"
)

type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Conn is a live transport connection as the engine sees it.
type Conn interface {
	ID() string
	// Deliver enqueues an encoded frame without blocking and reports
	// whether it was accepted.
	Deliver(frame []byte) bool
	Close()
}

type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

type MembershipStore interface {
	// ChannelsOf returns channels the identity belongs to plus the public
	// channels of its workspaces.
	ChannelsOf(ctx context.Context, identityID string) ([]string, error)
	WorkspacesOf(ctx context.Context, identityID string) ([]string, error)
	IsChannelMember(ctx context.Context, channelID, identityID string) (bool, error)
	IsPublicChannel(ctx context.Context, channelID string) (bool, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, identityID string) (bool, error)
}

type MessageStore interface {
	Create(ctx context.Context, msg *entity.Message) error
	Get(ctx context.Context, messageID string) (*entity.Message, error)
	UpdateContent(ctx context.Context, messageID, content string, at time.Time) (*entity.Message, error)
	SoftDelete(ctx context.Context, messageID string, at time.Time) (*entity.Message, error)
	// MutateReactions applies fn to the current aggregate and persists the
	// result atomically. An error from fn aborts the write.
	MutateReactions(ctx context.Context, messageID string, fn func(entity.Reactions) error) (*entity.Message, error)
	SetPinned(ctx context.Context, messageID string, pinned bool, by string, at time.Time) (*entity.Message, error)
	IncrementThreadCount(ctx context.Context, parentID string) error
}

type HuddleStore interface {
	Get(ctx context.Context, huddleID string) (*entity.Huddle, error)
	UpdateParticipantMedia(ctx context.Context, huddleID, identityID string, media entity.MediaState) (*entity.HuddleParticipant, error)
}

type PresenceStore interface {
	MarkOnline(ctx context.Context, identityID, status string, at time.Time) error
	UpdateStatus(ctx context.Context, identityID, status string) error
	MarkOffline(ctx context.Context, identityID string, lastSeen time.Time) error
}
