package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type SendMessageInput struct {
	ChannelID   string
	Content     string
	Kind        entity.MessageKind
	ParentID    *string
	Attachments []entity.Attachment
	Mentions    []string
}

// Coordinator authorizes message operations, writes them through the
// message store and then fans them out. The durable write always
// completes before any broadcast.
type Coordinator struct {
	pub        Publisher
	membership MembershipStore
	messages   MessageStore
	now        func() time.Time
	newID      func() string
}

func NewCoordinator(pub Publisher, membership MembershipStore, messages MessageStore) *Coordinator {
	return &Coordinator{
		pub:        pub,
		membership: membership,
		messages:   messages,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

func (c *Coordinator) SendMessage(ctx context.Context, author Identity, in SendMessageInput) (*entity.Message, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return nil, app_error.Validation("content is required", "content")
	}
	kind := in.Kind
	if kind == "" {
		kind = entity.KindText
	}
	if !entity.ValidMessageKind(kind) {
		return nil, app_error.Validation("unsupported message type", "type")
	}

	if err := authorizeChannel(ctx, c.membership, in.ChannelID, author.ID); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := c.messages.Get(ctx, *in.ParentID)
		if err != nil {
			return nil, storeError("failed to load parent message", err)
		}
		if parent.ChannelID != in.ChannelID || parent.IsDeleted {
			return nil, app_error.NotFound("parent message not found", "parentId")
		}
	}

	now := c.now()
	msg := &entity.Message{
		ID:          c.newID(),
		ChannelID:   in.ChannelID,
		SenderID:    author.ID,
		Content:     in.Content,
		Kind:        kind,
		ParentID:    in.ParentID,
		Attachments: in.Attachments,
		Mentions:    dedupe(in.Mentions),
		Reactions:   entity.Reactions{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if msg.Attachments == nil {
		msg.Attachments = []entity.Attachment{}
	}
	if err := c.messages.Create(ctx, msg); err != nil {
		return nil, storeError("failed to store message", err)
	}

	if msg.ParentID != nil {
		if err := c.messages.IncrementThreadCount(ctx, *msg.ParentID); err != nil {
			log.Warn().Err(err).Str("parentID", *msg.ParentID).Msg("realtime: failed to bump thread count")
		}
	}

	c.pub.PublishRoom(ChannelRoom(msg.ChannelID), ws_dto.NewEvent(ws_dto.EvMessageCreated, msg), "")

	mention := ws_dto.NewEvent(ws_dto.EvMention, ws_dto.Mention{
		Message:      msg,
		ChannelID:    msg.ChannelID,
		FromIdentity: author.ID,
	})
	for _, identityID := range msg.Mentions {
		c.pub.PublishIdentity(identityID, mention)
	}

	log.Debug().Str("messageID", msg.ID).Str("channelID", msg.ChannelID).Int("mentions", len(msg.Mentions)).Msg("realtime: message created")
	return msg, nil
}

func (c *Coordinator) EditMessage(ctx context.Context, editor Identity, messageID, content string) (*entity.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, app_error.Validation("content is required", "content")
	}
	if _, err := c.loadOwned(ctx, editor, messageID); err != nil {
		return nil, err
	}

	msg, err := c.messages.UpdateContent(ctx, messageID, content, c.now())
	if err != nil {
		return nil, storeError("failed to update message", err)
	}

	c.pub.PublishRoom(ChannelRoom(msg.ChannelID), ws_dto.NewEvent(ws_dto.EvMessageUpdated, msg), "")
	return msg, nil
}

// DeleteMessage is a soft delete; reactions and the pin flag are kept.
func (c *Coordinator) DeleteMessage(ctx context.Context, deleter Identity, messageID string) error {
	if _, err := c.loadOwned(ctx, deleter, messageID); err != nil {
		return err
	}

	msg, err := c.messages.SoftDelete(ctx, messageID, c.now())
	if err != nil {
		return storeError("failed to delete message", err)
	}

	c.pub.PublishRoom(ChannelRoom(msg.ChannelID), ws_dto.NewEvent(ws_dto.EvMessageDeleted, ws_dto.MessageDeleted{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
	}), "")
	return nil
}

func (c *Coordinator) React(ctx context.Context, reactor Identity, messageID, emoji string) (*entity.Message, error) {
	return c.mutateReaction(ctx, reactor, messageID, emoji, func(r entity.Reactions) error {
		if !r.Add(emoji, reactor.ID) {
			return app_error.Conflict("already reacted with "+emoji, "emoji")
		}
		return nil
	})
}

func (c *Coordinator) Unreact(ctx context.Context, reactor Identity, messageID, emoji string) (*entity.Message, error) {
	return c.mutateReaction(ctx, reactor, messageID, emoji, func(r entity.Reactions) error {
		if !r.Remove(emoji, reactor.ID) {
			return app_error.NotFound("no "+emoji+" reaction to remove", "emoji")
		}
		return nil
	})
}

func (c *Coordinator) Pin(ctx context.Context, identity Identity, messageID string) (*entity.Message, error) {
	return c.setPinned(ctx, identity, messageID, true)
}

func (c *Coordinator) Unpin(ctx context.Context, identity Identity, messageID string) (*entity.Message, error) {
	return c.setPinned(ctx, identity, messageID, false)
}

func (c *Coordinator) mutateReaction(ctx context.Context, reactor Identity, messageID, emoji string, fn func(entity.Reactions) error) (*entity.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, app_error.Validation("emoji is required", "emoji")
	}
	current, err := c.loadLive(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := authorizeChannel(ctx, c.membership, current.ChannelID, reactor.ID); err != nil {
		return nil, err
	}

	msg, err := c.messages.MutateReactions(ctx, messageID, fn)
	if err != nil {
		return nil, storeError("failed to update reactions", err)
	}

	agg := msg.Reactions.Get(emoji)
	c.pub.PublishRoom(ChannelRoom(msg.ChannelID), ws_dto.NewEvent(ws_dto.EvReactionChanged, ws_dto.ReactionChanged{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Emoji:     emoji,
		Users:     agg.Users,
		Count:     agg.Count,
		Reactions: msg.Reactions,
		Version:   msg.Version,
	}), "")
	return msg, nil
}

func (c *Coordinator) setPinned(ctx context.Context, identity Identity, messageID string, pinned bool) (*entity.Message, error) {
	current, err := c.loadLive(ctx, messageID)
	if err != nil {
		return nil, err
	}

	member, err := c.membership.IsChannelMember(ctx, current.ChannelID, identity.ID)
	if err != nil {
		return nil, storeError("failed to check channel membership", err)
	}
	if !member {
		return nil, app_error.Authz("only channel members can pin messages", "messageId")
	}

	msg, err := c.messages.SetPinned(ctx, messageID, pinned, identity.ID, c.now())
	if err != nil {
		return nil, storeError("failed to update pin", err)
	}

	payload := ws_dto.MessagePinned{MessageID: msg.ID, ChannelID: msg.ChannelID, Pinned: msg.IsPinned}
	if msg.PinnedBy != nil {
		payload.PinnedBy = *msg.PinnedBy
	}
	c.pub.PublishRoom(ChannelRoom(msg.ChannelID), ws_dto.NewEvent(ws_dto.EvMessagePinned, payload), "")
	return msg, nil
}

func (c *Coordinator) loadLive(ctx context.Context, messageID string) (*entity.Message, error) {
	msg, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return nil, storeError("failed to load message", err)
	}
	if msg.IsDeleted {
		return nil, app_error.NotFound("message not found", "messageId")
	}
	return msg, nil
}

func (c *Coordinator) loadOwned(ctx context.Context, identity Identity, messageID string) (*entity.Message, error) {
	msg, err := c.loadLive(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != identity.ID {
		return nil, app_error.Authz("only the author can change this message", "messageId")
	}
	return msg, nil
}
