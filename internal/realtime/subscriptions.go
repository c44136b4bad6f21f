package realtime

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

// RoomManager keeps connection subscriptions in line with membership.
// Subscriptions are derived at admission and on explicit request only.
type RoomManager struct {
	registry   *Registry
	membership MembershipStore
}

func NewRoomManager(registry *Registry, membership MembershipStore) *RoomManager {
	return &RoomManager{registry: registry, membership: membership}
}

// ImpliedRooms returns the channel and workspace rooms identityID is
// entitled to right now.
func (m *RoomManager) ImpliedRooms(ctx context.Context, identityID string) (channels, workspaces []string, err error) {
	channelIDs, err := m.membership.ChannelsOf(ctx, identityID)
	if err != nil {
		return nil, nil, storeError("failed to load channel membership", err)
	}
	workspaceIDs, err := m.membership.WorkspacesOf(ctx, identityID)
	if err != nil {
		return nil, nil, storeError("failed to load workspace membership", err)
	}

	for _, id := range dedupe(channelIDs) {
		channels = append(channels, ChannelRoom(id))
	}
	for _, id := range dedupe(workspaceIDs) {
		workspaces = append(workspaces, WorkspaceRoom(id))
	}
	return channels, workspaces, nil
}

// SubscribeInitial joins a freshly admitted connection to every implied
// room and returns the workspace rooms for presence announcements.
func (m *RoomManager) SubscribeInitial(ctx context.Context, connID, identityID string) ([]string, error) {
	channels, workspaces, err := m.ImpliedRooms(ctx, identityID)
	if err != nil {
		return nil, err
	}

	for _, room := range append(slices.Clone(channels), workspaces...) {
		m.registry.Join(connID, room)
	}

	log.Debug().Str("connID", connID).Str("identityID", identityID).Int("channels", len(channels)).Int("workspaces", len(workspaces)).Msg("realtime: initial subscriptions")
	return workspaces, nil
}

// JoinRoom re-checks entitlement at call time. Huddle rooms are handled
// by the signaling relay and rejected here.
func (m *RoomManager) JoinRoom(ctx context.Context, connID, identityID, room string) error {
	kind, id, ok := ParseRoom(room)
	if !ok {
		return app_error.Validation("unknown room: "+room, "room")
	}

	switch kind {
	case RoomChannel:
		if err := authorizeChannel(ctx, m.membership, id, identityID); err != nil {
			return err
		}
	case RoomWorkspace:
		member, err := m.membership.IsWorkspaceMember(ctx, id, identityID)
		if err != nil {
			return storeError("failed to check workspace membership", err)
		}
		if !member {
			return app_error.Authz("not a member of this workspace", "room")
		}
	default:
		return app_error.Validation("huddle rooms are joined with join-huddle", "room")
	}

	if !m.registry.Join(connID, room) {
		return app_error.NotFound("connection is closed", "connection")
	}
	return nil
}

func (m *RoomManager) LeaveRoom(connID, room string) error {
	if _, _, ok := ParseRoom(room); !ok {
		return app_error.Validation("unknown room: "+room, "room")
	}
	if !m.registry.Leave(connID, room) {
		return app_error.NotFound("not subscribed to "+room, "room")
	}
	return nil
}

// Refresh re-derives channel and workspace rooms for one connection.
// Huddle subscriptions are untouched.
func (m *RoomManager) Refresh(ctx context.Context, connID, identityID string) ([]string, error) {
	channels, workspaces, err := m.ImpliedRooms(ctx, identityID)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(channels)+len(workspaces))
	for _, room := range append(slices.Clone(channels), workspaces...) {
		want[room] = struct{}{}
	}

	for _, room := range m.registry.RoomsOf(connID) {
		kind, _, _ := ParseRoom(room)
		if kind == RoomHuddle {
			continue
		}
		if _, ok := want[room]; !ok {
			m.registry.Leave(connID, room)
		}
	}
	for room := range want {
		m.registry.Join(connID, room)
	}

	return m.registry.RoomsOf(connID), nil
}

// authorizeChannel passes when identityID is a member or the channel is public.
func authorizeChannel(ctx context.Context, membership MembershipStore, channelID, identityID string) error {
	member, err := membership.IsChannelMember(ctx, channelID, identityID)
	if err != nil {
		return storeError("failed to check channel membership", err)
	}
	if member {
		return nil
	}
	public, err := membership.IsPublicChannel(ctx, channelID)
	if err != nil {
		return storeError("failed to check channel visibility", err)
	}
	if !public {
		return app_error.Authz("not a member of this channel", "channelId")
	}
	return nil
}

// storeError passes typed store errors through and marks the rest transient.
func storeError(msg string, err error) error {
	switch app_error.From(err).Kind {
	case app_error.KindNotFound, app_error.KindConflict, app_error.KindAuthz, app_error.KindTransientStore:
		return err
	}
	return app_error.TransientStore(msg, err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
