package realtime

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type Options struct {
	TypingWindow        time.Duration
	TypingSweepInterval time.Duration
}

type Deps struct {
	Identities IdentityResolver
	Membership MembershipStore
	Messages   MessageStore
	Huddles    HuddleStore
	Presence   PresenceStore
}

// Engine wires the trackers together and is the single entry point for
// the transport: Connect, Dispatch and Disconnect.
type Engine struct {
	opts       Options
	identities IdentityResolver

	Registry    *Registry
	Rooms       *RoomManager
	Presence    *PresenceTracker
	Coordinator *Coordinator
	Typing      *TypingTracker
	Relay       *SignalRelay

	// serializes connect/disconnect transitions per identity
	lifecycle [64]sync.Mutex
}

func NewEngine(opts Options, deps Deps) *Engine {
	registry := NewRegistry()
	return &Engine{
		opts:        opts,
		identities:  deps.Identities,
		Registry:    registry,
		Rooms:       NewRoomManager(registry, deps.Membership),
		Presence:    NewPresenceTracker(registry, deps.Presence),
		Coordinator: NewCoordinator(registry, deps.Membership, deps.Messages),
		Typing:      NewTypingTracker(registry, registry, opts.TypingWindow),
		Relay:       NewSignalRelay(registry, registry, deps.Huddles),
	}
}

// Run starts background work; it returns when ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if e.opts.TypingSweepInterval <= 0 {
		<-ctx.Done()
		return
	}
	e.Typing.RunSweeper(ctx, e.opts.TypingSweepInterval)
}

// Connect authenticates credential, admits conn and subscribes it to the
// rooms its identity is entitled to.
func (e *Engine) Connect(ctx context.Context, credential string, conn Conn) (Identity, error) {
	identity, err := e.Authenticate(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	if err := e.Attach(ctx, identity, conn); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// Authenticate resolves credential without admitting anything, so the
// transport can refuse before upgrading.
func (e *Engine) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if strings.TrimSpace(credential) == "" {
		return Identity{}, app_error.Auth("missing credential")
	}
	identity, err := e.identities.Resolve(ctx, credential)
	if err != nil {
		if app_error.IsKind(err, app_error.KindAuth) || app_error.IsKind(err, app_error.KindTransientStore) {
			return Identity{}, err
		}
		return Identity{}, app_error.Auth("invalid credential").Wrap(err)
	}
	if identity.ID == "" {
		return Identity{}, app_error.Auth("credential does not name an identity")
	}
	return identity, nil
}

// Attach admits conn for an already resolved identity.
func (e *Engine) Attach(ctx context.Context, identity Identity, conn Conn) error {
	lock := e.lockFor(identity.ID)
	lock.Lock()
	defer lock.Unlock()

	first := e.Registry.Admit(identity, conn)
	workspaces, err := e.Rooms.SubscribeInitial(ctx, conn.ID(), identity.ID)
	if err != nil {
		// never announced, so nothing to retract
		e.Registry.Dismiss(conn.ID())
		return err
	}

	e.Registry.PublishConn(conn.ID(), ws_dto.NewEvent(ws_dto.EvWelcome, ws_dto.Welcome{
		ConnectionID: conn.ID(),
		IdentityID:   identity.ID,
		Rooms:        e.Registry.RoomsOf(conn.ID()),
	}))

	if first {
		e.Presence.Online(ctx, identity, conn.ID(), workspaces)
	} else {
		e.Presence.TrackWorkspaces(identity, conn.ID(), workspaces)
	}

	log.Info().Str("connID", conn.ID()).Str("identityID", identity.ID).Bool("first", first).Msg("realtime: connection established")
	return nil
}

// Disconnect is idempotent.
func (e *Engine) Disconnect(ctx context.Context, connID string) {
	identity, ok := e.Registry.IdentityOf(connID)
	if !ok {
		return
	}

	lock := e.lockFor(identity.ID)
	lock.Lock()
	defer lock.Unlock()

	e.dismissLocked(ctx, connID)
}

func (e *Engine) dismissLocked(ctx context.Context, connID string) {
	d := e.Registry.Dismiss(connID)
	if !d.Found {
		return
	}

	e.Relay.Departed(d.Identity, connID, d.Rooms)
	if d.Last {
		e.Typing.ClearIdentity(d.Identity.ID)
		e.Presence.Offline(ctx, d.Identity, d.Rooms)
	}
	log.Info().Str("connID", connID).Str("identityID", d.Identity.ID).Bool("last", d.Last).Msg("realtime: connection closed")
}

// Dispatch decodes and handles one client frame. Failures are reported
// privately to the sending connection.
func (e *Engine) Dispatch(ctx context.Context, connID string, raw []byte) {
	frame, err := ws_dto.DecodeFrame(raw)
	if err == nil {
		err = e.Handle(ctx, connID, frame.Ref, frame.Command)
	}
	if err != nil {
		e.reject(connID, frame.Ref, frame.Type, err)
	}
}

// Handle runs a decoded command on behalf of connID.
func (e *Engine) Handle(ctx context.Context, connID, ref string, cmd ws_dto.Command) error {
	identity, ok := e.Registry.IdentityOf(connID)
	if !ok {
		return app_error.Auth("connection is not admitted")
	}

	switch c := cmd.(type) {
	case ws_dto.JoinRoom:
		if kind, id, ok := ParseRoom(c.Room); ok && kind == RoomHuddle {
			return e.Relay.JoinHuddle(ctx, connID, identity, id)
		}
		if err := e.Rooms.JoinRoom(ctx, connID, identity.ID, c.Room); err != nil {
			return err
		}
		e.Presence.TrackWorkspaces(identity, connID, []string{c.Room})
		e.ack(connID, ref, ws_dto.EvRoomJoined, ws_dto.RoomAck{Room: c.Room})

	case ws_dto.LeaveRoom:
		if kind, id, ok := ParseRoom(c.Room); ok && kind == RoomHuddle {
			return e.Relay.LeaveHuddle(connID, identity, id)
		}
		if err := e.Rooms.LeaveRoom(connID, c.Room); err != nil {
			return err
		}
		e.untrackStaleWorkspaces(identity.ID)
		e.ack(connID, ref, ws_dto.EvRoomLeft, ws_dto.RoomAck{Room: c.Room})

	case ws_dto.RefreshSubscriptions:
		rooms, err := e.Rooms.Refresh(ctx, connID, identity.ID)
		if err != nil {
			return err
		}
		e.untrackStaleWorkspaces(identity.ID)
		e.Presence.TrackWorkspaces(identity, connID, rooms)
		e.ack(connID, ref, ws_dto.EvSubscriptions, ws_dto.Subscriptions{Rooms: rooms})

	case ws_dto.SendMessage:
		_, err := e.Coordinator.SendMessage(ctx, identity, SendMessageInput{
			ChannelID:   c.ChannelID,
			Content:     c.Content,
			Kind:        entity.MessageKind(c.Kind),
			ParentID:    c.ParentID,
			Attachments: toAttachments(c.Attachments),
			Mentions:    c.Mentions,
		})
		return err

	case ws_dto.EditMessage:
		_, err := e.Coordinator.EditMessage(ctx, identity, c.MessageID, c.Content)
		return err

	case ws_dto.DeleteMessage:
		return e.Coordinator.DeleteMessage(ctx, identity, c.MessageID)

	case ws_dto.React:
		_, err := e.Coordinator.React(ctx, identity, c.MessageID, c.Emoji)
		return err

	case ws_dto.Unreact:
		_, err := e.Coordinator.Unreact(ctx, identity, c.MessageID, c.Emoji)
		return err

	case ws_dto.Pin:
		_, err := e.Coordinator.Pin(ctx, identity, c.MessageID)
		return err

	case ws_dto.Unpin:
		_, err := e.Coordinator.Unpin(ctx, identity, c.MessageID)
		return err

	case ws_dto.TypingStart:
		return e.Typing.Start(connID, identity, c.Room)

	case ws_dto.TypingStop:
		return e.Typing.Stop(connID, identity, c.Room)

	case ws_dto.StatusUpdate:
		return e.Presence.SetStatus(ctx, identity.ID, c.Status)

	case ws_dto.JoinHuddle:
		return e.Relay.JoinHuddle(ctx, connID, identity, c.HuddleID)

	case ws_dto.LeaveHuddle:
		return e.Relay.LeaveHuddle(connID, identity, c.HuddleID)

	case ws_dto.Signal:
		e.Relay.Relay(identity, c.To, c.HuddleID, c.Payload)

	case ws_dto.HuddleMedia:
		_, err := e.Relay.UpdateMedia(ctx, connID, identity, c.HuddleID, entity.MediaState{
			Muted:       c.Muted,
			Video:       c.Video,
			ScreenShare: c.ScreenShare,
		})
		return err

	default:
		return app_error.Validation("unsupported event", "type")
	}
	return nil
}

// untrackStaleWorkspaces drops presence rooms none of the identity's
// connections is subscribed to any more.
func (e *Engine) untrackStaleWorkspaces(identityID string) {
	for _, room := range e.Presence.Workspaces(identityID) {
		if !e.Registry.IdentityInRoom(identityID, room, "") {
			e.Presence.UntrackWorkspace(identityID, room)
		}
	}
}

func (e *Engine) ConnectionCount() int {
	return e.Registry.Stats().TotalConnections
}

// Shutdown closes every connection.
func (e *Engine) Shutdown() {
	n := e.Registry.CloseAll()
	log.Info().Int("connections", n).Msg("realtime: engine shutdown completed")
}

func (e *Engine) ack(connID, ref string, t ws_dto.EventType, data any) {
	ev := ws_dto.NewEvent(t, data)
	ev.Ref = ref
	e.Registry.PublishConn(connID, ev)
}

func (e *Engine) reject(connID, ref, eventType string, err error) {
	appErr := app_error.From(err)
	ev := log.Debug()
	if appErr.Kind == app_error.KindInternal || appErr.Kind == app_error.KindTransientStore {
		ev = log.Error().Err(err)
	}
	ev.Str("connID", connID).Str("event", eventType).Str("kind", string(appErr.Kind)).Msg("realtime: event rejected")

	e.Registry.PublishConn(connID, ws_dto.NewErrorEvent(ref, appErr))
}

func (e *Engine) lockFor(identityID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identityID))
	return &e.lifecycle[h.Sum32()%uint32(len(e.lifecycle))]
}

func toAttachments(in []ws_dto.AttachmentPayload) []entity.Attachment {
	out := make([]entity.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, entity.Attachment{
			Type:     a.Type,
			URL:      a.URL,
			Name:     a.Name,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return out
}
