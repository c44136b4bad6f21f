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

const DefaultTypingWindow = 3 * time.Second

type typingKey struct {
	room       string
	identityID string
}

type TypingEntry struct {
	Room       string    `json:"room"`
	IdentityID string    `json:"identity_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TypingTracker keeps one self-expiring entry per (room, identity). It is
// never persisted.
type TypingTracker struct {
	registry *Registry
	pub      Publisher
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[typingKey]TypingEntry
}

func NewTypingTracker(registry *Registry, pub Publisher, window time.Duration) *TypingTracker {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingTracker{
		registry: registry,
		pub:      pub,
		window:   window,
		now:      time.Now,
		entries:  make(map[typingKey]TypingEntry),
	}
}

// Start upserts the entry and broadcasts typing-start to the rest of the
// room. A refresh is broadcast again.
func (t *TypingTracker) Start(connID string, identity Identity, room string) error {
	if err := t.checkRoom(connID, room); err != nil {
		return err
	}

	expiresAt := t.now().Add(t.window)
	t.mu.Lock()
	t.entries[typingKey{room: room, identityID: identity.ID}] = TypingEntry{Room: room, IdentityID: identity.ID, ExpiresAt: expiresAt}
	t.mu.Unlock()

	t.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvTypingStart, ws_dto.Typing{
		Room:       room,
		IdentityID: identity.ID,
		Name:       identity.Name,
		ExpiresAt:  &expiresAt,
	}), connID)
	return nil
}

func (t *TypingTracker) Stop(connID string, identity Identity, room string) error {
	if err := t.checkRoom(connID, room); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.entries, typingKey{room: room, identityID: identity.ID})
	t.mu.Unlock()

	t.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvTypingStop, ws_dto.Typing{
		Room:       room,
		IdentityID: identity.ID,
		Name:       identity.Name,
	}), connID)
	return nil
}

// Entries lists the unexpired entries of room.
func (t *TypingTracker) Entries(room string) []TypingEntry {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []TypingEntry
	for k, e := range t.entries {
		if k.room == room && e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b TypingEntry) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	return out
}

// Sweep drops expired entries and announces typing-stop for each.
func (t *TypingTracker) Sweep() int {
	now := t.now()
	t.mu.Lock()
	var expired []TypingEntry
	for k, e := range t.entries {
		if !e.ExpiresAt.After(now) {
			expired = append(expired, e)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		t.pub.PublishRoom(e.Room, ws_dto.NewEvent(ws_dto.EvTypingStop, ws_dto.Typing{Room: e.Room, IdentityID: e.IdentityID}), "")
	}
	return len(expired)
}

// ClearIdentity removes every entry of an identity that went offline.
func (t *TypingTracker) ClearIdentity(identityID string) int {
	t.mu.Lock()
	var cleared []TypingEntry
	for k, e := range t.entries {
		if k.identityID == identityID {
			cleared = append(cleared, e)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for _, e := range cleared {
		t.pub.PublishRoom(e.Room, ws_dto.NewEvent(ws_dto.EvTypingStop, ws_dto.Typing{Room: e.Room, IdentityID: identityID}), "")
	}
	return len(cleared)
}

// RunSweeper sweeps every interval until ctx is done.
func (t *TypingTracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("realtime: typing sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("realtime: typing sweeper stopping")
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("realtime: typing entries expired")
			}
		}
	}
}

func (t *TypingTracker) checkRoom(connID, room string) error {
	if _, _, ok := ParseRoom(room); !ok {
		return app_error.Validation("unknown room: "+room, "room")
	}
	if !t.registry.IsSubscribed(connID, room) {
		return app_error.Authz("not subscribed to "+room, "room")
	}
	return nil
}
