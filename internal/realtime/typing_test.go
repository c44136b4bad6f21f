package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTypingFixture(t *testing.T) (*TypingTracker, *manualClock, *fakeConn, *fakeConn) {
	t.Helper()
	r := NewRegistry()
	a1, b1 := newFakeConn("a1"), newFakeConn("b1")
	r.Admit(alice, a1)
	r.Admit(bob, b1)
	r.Join("a1", "channel:x")
	r.Join("b1", "channel:x")

	clock := &manualClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	tracker := NewTypingTracker(r, r, 3*time.Second)
	tracker.now = clock.Now
	return tracker, clock, a1, b1
}

func TestTyping_SweepExpiresEntries(t *testing.T) {
	tracker, clock, a1, b1 := newTypingFixture(t)

	require.NoError(t, tracker.Start("a1", alice, "channel:x"))
	clock.Advance(2 * time.Second)
	require.NoError(t, tracker.Start("b1", bob, "channel:x"))

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, tracker.Sweep())

	entries := tracker.Entries("channel:x")
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].IdentityID)

	stops := b1.events(ws_dto.EvTypingStop)
	require.Len(t, stops, 1)
	assert.Equal(t, "a", stops[0].Data["identityId"])
	assert.Len(t, a1.events(ws_dto.EvTypingStop), 1)
}

func TestTyping_RefreshExtendsExpiry(t *testing.T) {
	tracker, clock, _, _ := newTypingFixture(t)

	require.NoError(t, tracker.Start("a1", alice, "channel:x"))
	clock.Advance(2 * time.Second)
	require.NoError(t, tracker.Start("a1", alice, "channel:x"))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 0, tracker.Sweep())
	assert.Len(t, tracker.Entries("channel:x"), 1)
}

func TestTyping_RequiresSubscription(t *testing.T) {
	tracker, _, _, _ := newTypingFixture(t)

	err := tracker.Start("a1", alice, "channel:y")
	assert.True(t, app_error.IsKind(err, app_error.KindAuthz))

	err = tracker.Start("a1", alice, "lobby")
	assert.True(t, app_error.IsKind(err, app_error.KindValidation))
	assert.Empty(t, tracker.Entries("channel:y"))
}

func TestTyping_ClearIdentity(t *testing.T) {
	tracker, _, _, b1 := newTypingFixture(t)
	require.NoError(t, tracker.Start("a1", alice, "channel:x"))
	b1.reset()

	assert.Equal(t, 1, tracker.ClearIdentity("a"))
	assert.Len(t, b1.events(ws_dto.EvTypingStop), 1)
	assert.Equal(t, 0, tracker.ClearIdentity("a"))
}
