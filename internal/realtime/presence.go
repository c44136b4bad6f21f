package realtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusAway    Status = "away"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusAway, StatusDND:
		return Status(s), true
	}
	return "", false
}

type presenceRecord struct {
	status     Status
	workspaces map[string]struct{}
}

// PresenceTracker holds the ONLINE records. An identity without a record
// is offline; occupancy transitions come from the registry.
type PresenceTracker struct {
	pub   Publisher
	store PresenceStore
	now   func() time.Time

	mu      sync.Mutex
	records map[string]*presenceRecord
}

func NewPresenceTracker(pub Publisher, store PresenceStore) *PresenceTracker {
	return &PresenceTracker{
		pub:     pub,
		store:   store,
		now:     time.Now,
		records: make(map[string]*presenceRecord),
	}
}

// Online handles OFFLINE -> ONLINE(active) for the identity's first connection.
func (p *PresenceTracker) Online(ctx context.Context, identity Identity, connID string, workspaceRooms []string) {
	rec := &presenceRecord{status: StatusActive, workspaces: make(map[string]struct{}, len(workspaceRooms))}
	for _, room := range workspaceRooms {
		rec.workspaces[room] = struct{}{}
	}

	p.mu.Lock()
	p.records[identity.ID] = rec
	p.mu.Unlock()

	ev := ws_dto.NewEvent(ws_dto.EvIdentityOnline, ws_dto.IdentityPresence{
		IdentityID: identity.ID,
		Name:       identity.Name,
		Status:     string(StatusActive),
	})
	for _, room := range workspaceRooms {
		p.pub.PublishRoom(room, ev, connID)
	}

	if err := p.store.MarkOnline(ctx, identity.ID, string(StatusActive), p.now()); err != nil {
		log.Warn().Err(err).Str("identityID", identity.ID).Msg("realtime: failed to record online presence")
	}
	log.Info().Str("identityID", identity.ID).Int("workspaces", len(workspaceRooms)).Msg("realtime: identity online")
}

// Offline handles ONLINE -> OFFLINE after the last connection is gone.
// Each workspace room hears about it once.
func (p *PresenceTracker) Offline(ctx context.Context, identity Identity, lastRooms []string) {
	p.mu.Lock()
	rec := p.records[identity.ID]
	delete(p.records, identity.ID)
	p.mu.Unlock()

	rooms := make(map[string]struct{})
	if rec != nil {
		for room := range rec.workspaces {
			rooms[room] = struct{}{}
		}
	}
	for _, room := range roomsOfKind(lastRooms, RoomWorkspace) {
		rooms[room] = struct{}{}
	}

	lastSeen := p.now()
	ev := ws_dto.NewEvent(ws_dto.EvIdentityOffline, ws_dto.IdentityPresence{
		IdentityID: identity.ID,
		Name:       identity.Name,
		Status:     string(StatusOffline),
		LastSeen:   &lastSeen,
	})
	for room := range rooms {
		p.pub.PublishRoom(room, ev, "")
	}

	if err := p.store.MarkOffline(ctx, identity.ID, lastSeen); err != nil {
		log.Warn().Err(err).Str("identityID", identity.ID).Msg("realtime: failed to record last seen")
	}
	log.Info().Str("identityID", identity.ID).Int("workspaces", len(rooms)).Msg("realtime: identity offline")
}

// SetStatus changes the mood of an ONLINE identity.
func (p *PresenceTracker) SetStatus(ctx context.Context, identityID, status string) error {
	st, ok := ParseStatus(status)
	if !ok {
		return app_error.Validation("status must be one of active, away, dnd", "status")
	}

	p.mu.Lock()
	rec, online := p.records[identityID]
	var rooms []string
	if online {
		rec.status = st
		for room := range rec.workspaces {
			rooms = append(rooms, room)
		}
	}
	p.mu.Unlock()

	if !online {
		return app_error.NotFound("identity is offline", "status")
	}

	ev := ws_dto.NewEvent(ws_dto.EvStatusChanged, ws_dto.StatusChanged{IdentityID: identityID, Status: string(st)})
	for _, room := range rooms {
		p.pub.PublishRoom(room, ev, "")
	}

	if err := p.store.UpdateStatus(ctx, identityID, string(st)); err != nil {
		log.Warn().Err(err).Str("identityID", identityID).Msg("realtime: failed to record status")
	}
	return nil
}

// TrackWorkspaces adds workspace rooms a connection of an ONLINE identity
// subscribed to after the first admission. Rooms new to the record hear
// identity-online with the current status.
func (p *PresenceTracker) TrackWorkspaces(identity Identity, connID string, rooms []string) {
	p.mu.Lock()
	rec, online := p.records[identity.ID]
	var added []string
	var status Status
	if online {
		status = rec.status
		for _, room := range roomsOfKind(rooms, RoomWorkspace) {
			if _, ok := rec.workspaces[room]; ok {
				continue
			}
			rec.workspaces[room] = struct{}{}
			added = append(added, room)
		}
	}
	p.mu.Unlock()

	if len(added) == 0 {
		return
	}
	ev := ws_dto.NewEvent(ws_dto.EvIdentityOnline, ws_dto.IdentityPresence{
		IdentityID: identity.ID,
		Name:       identity.Name,
		Status:     string(status),
	})
	for _, room := range added {
		p.pub.PublishRoom(room, ev, connID)
	}
}

// UntrackWorkspace stops presence announcements to room. Callers check
// that no connection of the identity is still subscribed.
func (p *PresenceTracker) UntrackWorkspace(identityID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[identityID]; ok {
		delete(rec.workspaces, room)
	}
}

// Workspaces lists the rooms that hear identityID's presence.
func (p *PresenceTracker) Workspaces(identityID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[identityID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rec.workspaces))
	for room := range rec.workspaces {
		out = append(out, room)
	}
	slices.Sort(out)
	return out
}

func (p *PresenceTracker) StatusOf(identityID string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[identityID]; ok {
		return rec.status
	}
	return StatusOffline
}
