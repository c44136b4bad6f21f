package realtime

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
)

// Publisher is the only path events take to connections.
type Publisher interface {
	PublishRoom(room string, ev ws_dto.Envelope, exceptConn string) int
	PublishIdentity(identityID string, ev ws_dto.Envelope) int
	PublishConn(connID string, ev ws_dto.Envelope) bool
}

type connEntry struct {
	conn        Conn
	identity    Identity
	rooms       map[string]struct{}
	connectedAt time.Time
}

type ConnInfo struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	Rooms       []string  `json:"rooms"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Dismissal describes what a dismiss removed.
type Dismissal struct {
	Found    bool
	Identity Identity
	Last     bool
	Rooms    []string
}

type HubStats struct {
	TotalRooms       int       `json:"total_rooms"`
	TotalConnections int       `json:"total_connections"`
	OnlineIdentities int       `json:"online_identities"`
	Admitted         int64     `json:"admitted"`
	EventsDelivered  int64     `json:"events_delivered"`
	EventsDropped    int64     `json:"events_dropped"`
	SignalsRelayed   int64     `json:"signals_relayed"`
	LastReset        time.Time `json:"last_reset"`
}

// Registry owns the connection, identity and room tables. Every mutation
// goes through mu; fanMu orders broadcasts so each connection observes
// events in the order they were published.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*connEntry
	byIdentity map[string]map[string]struct{}
	rooms      map[string]map[string]struct{}

	fanMu sync.Mutex

	admitted  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	signals   atomic.Int64
	lastReset time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]*connEntry),
		byIdentity: make(map[string]map[string]struct{}),
		rooms:      make(map[string]map[string]struct{}),
		lastReset:  time.Now(),
	}
}

// Admit registers conn for identity and reports whether it is the
// identity's first live connection.
func (r *Registry) Admit(identity Identity, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, exists := r.conns[id]; exists {
		return false
	}

	r.conns[id] = &connEntry{
		conn:        conn,
		identity:    identity,
		rooms:       make(map[string]struct{}),
		connectedAt: time.Now(),
	}

	set, ok := r.byIdentity[identity.ID]
	if !ok {
		set = make(map[string]struct{})
		r.byIdentity[identity.ID] = set
	}
	set[id] = struct{}{}
	r.admitted.Add(1)

	log.Debug().Str("connID", id).Str("identityID", identity.ID).Int("identityConns", len(set)).Msg("realtime: connection admitted")
	return len(set) == 1
}

// Dismiss removes a connection and all its subscriptions. Unknown ids are a no-op.
func (r *Registry) Dismiss(connID string) Dismissal {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connID]
	if !ok {
		return Dismissal{}
	}

	rooms := make([]string, 0, len(entry.rooms))
	for room := range entry.rooms {
		rooms = append(rooms, room)
		r.removeFromRoom(room, connID)
	}
	slices.Sort(rooms)
	delete(r.conns, connID)

	last := false
	if set, ok := r.byIdentity[entry.identity.ID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byIdentity, entry.identity.ID)
			last = true
		}
	}

	log.Debug().Str("connID", connID).Str("identityID", entry.identity.ID).Bool("last", last).Msg("realtime: connection dismissed")
	return Dismissal{Found: true, Identity: entry.identity, Last: last, Rooms: rooms}
}

func (r *Registry) ConnectionsOf(identityID string) []ConnInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnInfo, 0, len(r.byIdentity[identityID]))
	for id := range r.byIdentity[identityID] {
		out = append(out, r.infoLocked(id))
	}
	slices.SortFunc(out, func(a, b ConnInfo) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}

func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok {
		return Identity{}, false
	}
	return entry.identity, true
}

func (r *Registry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID]) > 0
}

// Join subscribes connID to room; false when the connection is gone.
func (r *Registry) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connID]
	if !ok {
		return false
	}
	entry.rooms[room] = struct{}{}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
	return true
}

// Leave reports whether connID was subscribed to room.
func (r *Registry) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, ok := entry.rooms[room]; !ok {
		return false
	}
	delete(entry.rooms, room)
	r.removeFromRoom(room, connID)
	return true
}

func (r *Registry) IsSubscribed(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, ok = entry.rooms[room]
	return ok
}

func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(entry.rooms))
	for room := range entry.rooms {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return rooms
}

// IdentityInRoom reports whether any connection of identityID other than
// exceptConn is subscribed to room.
func (r *Registry) IdentityInRoom(identityID, room, exceptConn string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byIdentity[identityID] {
		if id == exceptConn {
			continue
		}
		if _, ok := r.conns[id].rooms[room]; ok {
			return true
		}
	}
	return false
}

func (r *Registry) RoomMembers(room string) []ConnInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnInfo, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, r.infoLocked(id))
	}
	slices.SortFunc(out, func(a, b ConnInfo) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}

func (r *Registry) RoomStats(room string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]any{
		"room":   room,
		"exists": false,
	}
	members, ok := r.rooms[room]
	if !ok {
		return stats
	}

	identities := make(map[string]struct{})
	for id := range members {
		identities[r.conns[id].identity.ID] = struct{}{}
	}
	stats["exists"] = true
	stats["connections"] = len(members)
	stats["unique_identities"] = len(identities)
	return stats
}

func (r *Registry) Stats() HubStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return HubStats{
		TotalRooms:       len(r.rooms),
		TotalConnections: len(r.conns),
		OnlineIdentities: len(r.byIdentity),
		Admitted:         r.admitted.Load(),
		EventsDelivered:  r.delivered.Load(),
		EventsDropped:    r.dropped.Load(),
		SignalsRelayed:   r.signals.Load(),
		LastReset:        r.lastReset,
	}
}

// CloseAll closes every live connection; the transport dismisses them as
// their read loops exit.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, entry := range r.conns {
		conns = append(conns, entry.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// CloseIdentity closes every connection of identityID and returns how many.
func (r *Registry) CloseIdentity(identityID string) int {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.byIdentity[identityID]))
	for id := range r.byIdentity[identityID] {
		conns = append(conns, r.conns[id].conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

func (r *Registry) PublishRoom(room string, ev ws_dto.Envelope, exceptConn string) int {
	ev.Room = room
	data, err := ev.Marshal()
	if err != nil {
		log.Error().Err(err).Str("room", room).Str("type", string(ev.Type)).Msg("realtime: failed to marshal room event")
		return 0
	}

	r.fanMu.Lock()
	defer r.fanMu.Unlock()

	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if id == exceptConn {
			continue
		}
		targets = append(targets, r.conns[id].conn)
	}
	r.mu.RUnlock()

	sent := r.deliver(targets, data)
	log.Debug().Str("room", room).Str("type", string(ev.Type)).Int("targets", sent).Msg("realtime: room broadcast")
	return sent
}

func (r *Registry) PublishIdentity(identityID string, ev ws_dto.Envelope) int {
	data, err := ev.Marshal()
	if err != nil {
		log.Error().Err(err).Str("identityID", identityID).Str("type", string(ev.Type)).Msg("realtime: failed to marshal identity event")
		return 0
	}

	r.fanMu.Lock()
	defer r.fanMu.Unlock()

	r.mu.RLock()
	targets := make([]Conn, 0, len(r.byIdentity[identityID]))
	for id := range r.byIdentity[identityID] {
		targets = append(targets, r.conns[id].conn)
	}
	r.mu.RUnlock()

	return r.deliver(targets, data)
}

func (r *Registry) PublishConn(connID string, ev ws_dto.Envelope) bool {
	data, err := ev.Marshal()
	if err != nil {
		log.Error().Err(err).Str("connID", connID).Str("type", string(ev.Type)).Msg("realtime: failed to marshal direct event")
		return false
	}

	r.fanMu.Lock()
	defer r.fanMu.Unlock()

	r.mu.RLock()
	entry, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.deliver([]Conn{entry.conn}, data) == 1
}

func (r *Registry) deliver(targets []Conn, data []byte) int {
	sent := 0
	for _, c := range targets {
		if c.Deliver(data) {
			sent++
			continue
		}
		// slow consumer
		r.dropped.Add(1)
		log.Warn().Str("connID", c.ID()).Msg("realtime: send buffer full, closing connection")
		go c.Close()
	}
	r.delivered.Add(int64(sent))
	return sent
}

func (r *Registry) countSignal() {
	r.signals.Add(1)
}

func (r *Registry) removeFromRoom(room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) infoLocked(connID string) ConnInfo {
	entry := r.conns[connID]
	rooms := make([]string, 0, len(entry.rooms))
	for room := range entry.rooms {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return ConnInfo{
		ID:          connID,
		IdentityID:  entry.identity.ID,
		Rooms:       rooms,
		ConnectedAt: entry.connectedAt,
	}
}
