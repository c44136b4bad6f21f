package ws_dto

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type EventType string

const (
	EvIdentityOnline     EventType = "identity-online"
	EvIdentityOffline    EventType = "identity-offline"
	EvStatusChanged      EventType = "status-changed"
	EvMessageCreated     EventType = "message-created"
	EvMessageUpdated     EventType = "message-updated"
	EvMessageDeleted     EventType = "message-deleted"
	EvMessagePinned      EventType = "message-pinned"
	EvReactionChanged    EventType = "reaction-changed"
	EvTypingStart        EventType = "typing-start"
	EvTypingStop         EventType = "typing-stop"
	EvParticipantJoined  EventType = "participant-joined"
	EvParticipantLeft    EventType = "participant-left"
	EvParticipantUpdated EventType = "participant-updated"
	EvSignal             EventType = "signal"
	EvMention            EventType = "mention"
	EvWelcome            EventType = "welcome"
	EvRoomJoined         EventType = "room-joined"
	EvRoomLeft           EventType = "room-left"
	EvSubscriptions      EventType = "subscriptions"
	EvSessionClosed      EventType = "session-closed"
	EvError              EventType = "error"
)

type Envelope struct {
	Type      EventType `json:"type"`
	Room      string    `json:"room,omitempty"`
	Ref       string    `json:"ref,omitempty"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

func NewEvent(t EventType, data any) Envelope {
	return Envelope{Type: t, Data: data, Timestamp: time.Now().UnixMilli()}
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type IdentityPresence struct {
	IdentityID string     `json:"identityId"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
}

type StatusChanged struct {
	IdentityID string `json:"identityId"`
	Status     string `json:"status"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

type MessagePinned struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	Pinned    bool   `json:"pinned"`
	PinnedBy  string `json:"pinnedBy,omitempty"`
}

type ReactionChanged struct {
	MessageID string           `json:"messageId"`
	ChannelID string           `json:"channelId"`
	Emoji     string           `json:"emojiKey"`
	Users     []string         `json:"users"`
	Count     int              `json:"count"`
	Reactions entity.Reactions `json:"reactions"`
	// Version orders aggregates for one message; clients drop anything older
	// than what they hold.
	Version   int64            `json:"version"`
}

type Typing struct {
	Room       string     `json:"room"`
	IdentityID string     `json:"identityId"`
	Name       string     `json:"name,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type Participant struct {
	HuddleID    string                    `json:"huddleId"`
	IdentityID  string                    `json:"identityId"`
	Name        string                    `json:"name,omitempty"`
	Participant *entity.HuddleParticipant `json:"participant,omitempty"`
}

type SignalEvent struct {
	FromIdentity string              `json:"fromIdentity"`
	HuddleID     string              `json:"huddleId"`
	Payload      jsoniter.RawMessage `json:"payload"`
}

type Mention struct {
	Message      *entity.Message `json:"message"`
	ChannelID    string          `json:"channelId"`
	FromIdentity string          `json:"fromIdentity"`
}

type Welcome struct {
	ConnectionID string   `json:"connectionId"`
	IdentityID   string   `json:"identityId"`
	Rooms        []string `json:"rooms"`
}

type RoomAck struct {
	Room string `json:"room"`
}

type Subscriptions struct {
	Rooms []string `json:"rooms"`
}

type ErrorPayload struct {
	Kind    app_error.Kind `json:"kind"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
}

// NewErrorEvent builds the private error reply for a failed client event.
func NewErrorEvent(ref string, err error) Envelope {
	appErr := app_error.From(err)
	ev := NewEvent(EvError, ErrorPayload{
		Kind:    appErr.Kind,
		Code:    appErr.Code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
	ev.Ref = ref
	return ev
}
