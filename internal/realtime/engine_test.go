package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

func TestConnect_RejectsBadCredential(t *testing.T) {
	env := newTestEnv(t)

	for _, cred := range []string{"", "   ", "garbage", "tok:"} {
		_, err := env.engine.Connect(context.Background(), cred, newFakeConn("x"))
		require.Error(t, err, cred)
		assert.True(t, app_error.IsKind(err, app_error.KindAuth), cred)
	}
	assert.Equal(t, 0, env.engine.Registry.Stats().TotalConnections)
}

func TestConnect_SubscribesToMembershipRooms(t *testing.T) {
	env := newTestEnv(t)

	a1 := env.connect(t, "a", "a1")
	c1 := env.connect(t, "c", "c1")

	assert.Equal(t, []string{"channel:c-general", "channel:c-secret", "workspace:w1"}, env.engine.Registry.RoomsOf("a1"))
	assert.Equal(t, []string{"channel:c-general", "workspace:w1"}, env.engine.Registry.RoomsOf("c1"))

	welcome := a1.events(ws_dto.EvWelcome)
	require.Len(t, welcome, 1)
	assert.Equal(t, "a1", welcome[0].Data["connectionId"])
	assert.Len(t, c1.events(ws_dto.EvWelcome), 1)
}

func TestConnect_MembershipFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	env.membership.err = errors.New("db down")

	_, err := env.engine.Connect(context.Background(), "tok:a", newFakeConn("a1"))
	require.Error(t, err)
	assert.True(t, app_error.IsKind(err, app_error.KindTransientStore))
	assert.False(t, env.engine.Registry.IsOnline("a"))
	assert.Empty(t, env.presence.callsOf("offline"))
}

func TestPresence_TwoConnectionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	b1 := env.connect(t, "b", "b1")
	b1.reset()

	a1 := env.connect(t, "a", "a1")
	online := b1.events(ws_dto.EvIdentityOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "a", online[0].Data["identityId"])
	assert.Equal(t, "active", online[0].Data["status"])
	assert.Equal(t, "workspace:w1", online[0].Room)
	assert.Empty(t, a1.events(ws_dto.EvIdentityOnline))

	env.connect(t, "a", "a2")
	assert.Len(t, b1.events(ws_dto.EvIdentityOnline), 1)

	env.engine.Disconnect(context.Background(), "a1")
	assert.Empty(t, b1.events(ws_dto.EvIdentityOffline))
	assert.Equal(t, StatusActive, env.engine.Presence.StatusOf("a"))

	env.engine.Disconnect(context.Background(), "a2")
	offline := b1.events(ws_dto.EvIdentityOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, "a", offline[0].Data["identityId"])
	assert.NotEmpty(t, offline[0].Data["lastSeen"])
	assert.Equal(t, StatusOffline, env.engine.Presence.StatusOf("a"))

	assert.Len(t, env.presence.callsOf("online"), 2) // a and b
	assert.Len(t, env.presence.callsOf("offline"), 1)

	env.engine.Disconnect(context.Background(), "a2")
	assert.Len(t, b1.events(ws_dto.EvIdentityOffline), 1)
}

func TestPresence_RefreshDropsLostWorkspace(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")

	env.membership.addWorkspace("w1", "b", "c", "d")
	env.dispatch("a1", `{"type":"refresh-subscriptions","ref":"r"}`)
	require.Len(t, a1.events(ws_dto.EvSubscriptions), 1)
	assert.False(t, env.engine.Registry.IsSubscribed("a1", "workspace:w1"))
	assert.Empty(t, env.engine.Presence.Workspaces("a"))
	resetAll(a1, b1)

	env.dispatch("a1", `{"type":"status-update","data":{"status":"away"}}`)
	assert.Empty(t, a1.events(ws_dto.EvError))
	assert.Empty(t, b1.events(ws_dto.EvStatusChanged))

	env.engine.Disconnect(context.Background(), "a1")
	assert.Empty(t, b1.events(ws_dto.EvIdentityOffline))
}

func TestPresence_LeaveWorkspaceRoomKeepsItWhileAnotherConnectionStays(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "a", "a1")
	env.connect(t, "a", "a2")
	b1 := env.connect(t, "b", "b1")

	env.dispatch("a1", `{"type":"leave-room","data":{"room":"workspace:w1"}}`)
	assert.Equal(t, []string{"workspace:w1"}, env.engine.Presence.Workspaces("a"))

	env.dispatch("a2", `{"type":"leave-room","data":{"room":"workspace:w1"}}`)
	assert.Empty(t, env.engine.Presence.Workspaces("a"))
	b1.reset()

	env.dispatch("a1", `{"type":"status-update","data":{"status":"dnd"}}`)
	assert.Empty(t, b1.events(ws_dto.EvStatusChanged))

	env.engine.Disconnect(context.Background(), "a1")
	env.engine.Disconnect(context.Background(), "a2")
	assert.Empty(t, b1.events(ws_dto.EvIdentityOffline))
}

func TestPresence_LaterConnectionAddsWorkspace(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "a", "a1")
	env.membership.addWorkspace("w2", "a", "e")
	e1 := env.connect(t, "e", "e1")
	e1.reset()

	a2 := env.connect(t, "a", "a2")
	assert.True(t, env.engine.Registry.IsSubscribed("a2", "workspace:w2"))
	online := e1.events(ws_dto.EvIdentityOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "a", online[0].Data["identityId"])
	assert.Equal(t, "workspace:w2", online[0].Room)
	assert.Empty(t, a2.events(ws_dto.EvIdentityOnline))

	env.dispatch("a1", `{"type":"status-update","data":{"status":"away"}}`)
	changed := e1.events(ws_dto.EvStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "away", changed[0].Data["status"])

	env.engine.Disconnect(context.Background(), "a2")
	assert.Empty(t, e1.events(ws_dto.EvIdentityOffline))
	env.engine.Disconnect(context.Background(), "a1")
	assert.Len(t, e1.events(ws_dto.EvIdentityOffline), 1)
}

func TestPresence_StatusUpdate(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	resetAll(a1, b1)

	env.dispatch("a1", `{"type":"status-update","data":{"status":"dnd"}}`)

	changed := b1.events(ws_dto.EvStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "dnd", changed[0].Data["status"])
	assert.Len(t, a1.events(ws_dto.EvStatusChanged), 1)
	assert.Equal(t, StatusDND, env.engine.Presence.StatusOf("a"))

	env.dispatch("a1", `{"type":"status-update","ref":"s","data":{"status":"offline"}}`)
	errs := a1.events(ws_dto.EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "validation", errs[0].Data["kind"])
}

func TestSendMessage_PrivateChannelRejectedWithoutBroadcast(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	c1 := env.connect(t, "c", "c1")
	resetAll(a1, b1, c1)

	env.dispatch("c1", `{"type":"send-message","ref":"m-1","data":{"channelId":"c-secret","content":"let me in"}}`)

	errs := c1.events(ws_dto.EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "m-1", errs[0].Ref)
	assert.Equal(t, "authz", errs[0].Data["kind"])

	assert.Empty(t, a1.all())
	assert.Empty(t, b1.all())
	assert.Len(t, c1.all(), 1)
	assert.Equal(t, 0, env.messages.count())
}

func TestSendMessage_PublicChannelBroadcastExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.membership.addChannel("c-lobby", "w1", true, "a")
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	c1 := env.connect(t, "c", "c1")
	resetAll(a1, b1, c1)

	env.dispatch("c1", `{"type":"send-message","data":{"channelId":"c-lobby","content":"hello lobby"}}`)

	for _, conn := range []*fakeConn{a1, b1, c1} {
		created := conn.events(ws_dto.EvMessageCreated)
		require.Len(t, created, 1, conn.id)
		assert.Equal(t, "channel:c-lobby", created[0].Room)
		assert.Equal(t, "hello lobby", created[0].Data["content"])
		assert.Equal(t, "c", created[0].Data["senderId"])
		assert.Empty(t, conn.events(ws_dto.EvError), conn.id)
	}
	assert.Equal(t, 1, env.messages.count())
}

func TestSendMessage_MentionsReachEveryConnection(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	b2 := env.connect(t, "b", "b2")
	c1 := env.connect(t, "c", "c1")
	c2 := env.connect(t, "c", "c2")
	env.engine.Registry.Leave("c2", "channel:c-general")
	resetAll(a1, b1, b2, c1, c2)

	env.dispatch("a1", `{"type":"send-message","data":{"channelId":"c-general","content":"@b @c standup","mentions":["b","c","b"]}}`)

	total := 0
	for _, conn := range []*fakeConn{b1, b2, c1, c2} {
		mentions := conn.events(ws_dto.EvMention)
		require.Len(t, mentions, 1, conn.id)
		assert.Equal(t, "a", mentions[0].Data["fromIdentity"])
		assert.Equal(t, "c-general", mentions[0].Data["channelId"])
		total += len(mentions)
	}
	assert.Equal(t, 4, total)
	assert.Empty(t, a1.events(ws_dto.EvMention))
	// c2 left the channel room but still gets the mention
	assert.Empty(t, c2.events(ws_dto.EvMessageCreated))
}

func TestReact_DuplicateIsPrivateConflict(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")

	msg, err := env.engine.Coordinator.SendMessage(context.Background(), Identity{ID: "a"}, SendMessageInput{ChannelID: "c-general", Content: "ship it"})
	require.NoError(t, err)
	resetAll(a1, b1)

	env.dispatch("b1", `{"type":"react","data":{"messageId":"`+msg.ID+`","emoji":"👍"}}`)
	env.dispatch("b1", `{"type":"react","ref":"dup","data":{"messageId":"`+msg.ID+`","emoji":"👍"}}`)

	changed := a1.events(ws_dto.EvReactionChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "👍", changed[0].Data["emojiKey"])
	assert.Equal(t, float64(1), changed[0].Data["count"])
	assert.Equal(t, []any{"b"}, changed[0].Data["users"])

	errs := b1.events(ws_dto.EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "dup", errs[0].Ref)
	assert.Equal(t, "conflict", errs[0].Data["kind"])
	assert.Empty(t, a1.events(ws_dto.EvError))

	stored, err := env.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Reactions.Get("👍").Count)
}

func TestHuddleSignal_OnlyTargetReceives(t *testing.T) {
	env := newTestEnv(t)
	env.huddles.add("h1", entity.HuddleActive)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	b2 := env.connect(t, "b", "b2")
	c1 := env.connect(t, "c", "c1")
	for _, id := range []string{"a1", "b1", "c1"} {
		env.dispatch(id, `{"type":"join-huddle","data":{"huddleId":"h1"}}`)
	}
	resetAll(a1, b1, b2, c1)

	env.dispatch("a1", `{"type":"signal","data":{"to":"b","huddleId":"h1","payload":{"type":"offer","sdp":"v=0"}}}`)

	for _, conn := range []*fakeConn{b1, b2} {
		sig := conn.events(ws_dto.EvSignal)
		require.Len(t, sig, 1, conn.id)
		assert.Equal(t, "a", sig[0].Data["fromIdentity"])
		assert.Equal(t, "h1", sig[0].Data["huddleId"])
		assert.Equal(t, map[string]any{"type": "offer", "sdp": "v=0"}, sig[0].Data["payload"])
	}
	assert.Empty(t, a1.all())
	assert.Empty(t, c1.all())
}

func TestHuddleSignal_OfflineTargetIsNoop(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	a1.reset()

	delivered := env.engine.Relay.Relay(Identity{ID: "a"}, "d", "h1", []byte(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`))
	assert.Equal(t, 0, delivered)

	env.dispatch("a1", `{"type":"signal","data":{"to":"d","huddleId":"h1","payload":{}}}`)
	assert.Empty(t, a1.all())
	assert.Equal(t, int64(0), env.engine.Registry.Stats().SignalsRelayed)
}

func TestTyping_RefreshKeepsOneEntryAndBroadcastsTwice(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	resetAll(a1, b1)

	env.dispatch("a1", `{"type":"typing-start","data":{"room":"channel:c-general"}}`)
	env.dispatch("a1", `{"type":"typing-start","data":{"room":"channel:c-general"}}`)

	assert.Len(t, env.engine.Typing.Entries("channel:c-general"), 1)
	assert.Len(t, b1.events(ws_dto.EvTypingStart), 2)
	assert.Empty(t, a1.all())

	env.dispatch("a1", `{"type":"typing-stop","data":{"room":"channel:c-general"}}`)
	assert.Empty(t, env.engine.Typing.Entries("channel:c-general"))
	assert.Len(t, b1.events(ws_dto.EvTypingStop), 1)
}

func TestJoinRoom_RevalidatesMembership(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.connect(t, "c", "c1")
	c1.reset()

	env.dispatch("c1", `{"type":"join-room","ref":"j1","data":{"room":"channel:c-secret"}}`)
	errs := c1.events(ws_dto.EvError)
	require.Len(t, errs, 1)
	assert.Equal(t, "authz", errs[0].Data["kind"])
	assert.False(t, env.engine.Registry.IsSubscribed("c1", "channel:c-secret"))

	env.membership.setMember("c-secret", "c", true)
	env.dispatch("c1", `{"type":"join-room","ref":"j2","data":{"room":"channel:c-secret"}}`)
	joined := c1.events(ws_dto.EvRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "j2", joined[0].Ref)
	assert.True(t, env.engine.Registry.IsSubscribed("c1", "channel:c-secret"))
}

func TestMembershipChange_NoAutomaticResubscribe(t *testing.T) {
	env := newTestEnv(t)
	b1 := env.connect(t, "b", "b1")
	a1 := env.connect(t, "a", "a1")

	env.membership.setMember("c-secret", "b", false)
	resetAll(a1, b1)
	_, err := env.engine.Coordinator.SendMessage(context.Background(), Identity{ID: "a"}, SendMessageInput{ChannelID: "c-secret", Content: "still here?"})
	require.NoError(t, err)
	assert.Len(t, b1.events(ws_dto.EvMessageCreated), 1)

	env.dispatch("b1", `{"type":"refresh-subscriptions","ref":"r"}`)
	subs := b1.events(ws_dto.EvSubscriptions)
	require.Len(t, subs, 1)
	assert.Equal(t, []any{"channel:c-general", "workspace:w1"}, subs[0].Data["rooms"])
	assert.False(t, env.engine.Registry.IsSubscribed("b1", "channel:c-secret"))
}

func TestDispatch_MalformedFrameKeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.connect(t, "a", "a1")
	a1.reset()

	env.dispatch("a1", `not json`)
	env.dispatch("a1", `{"type":"unknown","ref":"u"}`)

	errs := a1.events(ws_dto.EvError)
	require.Len(t, errs, 2)
	assert.Equal(t, "validation", errs[0].Data["kind"])
	assert.Equal(t, "u", errs[1].Ref)
	assert.True(t, env.engine.Registry.IsOnline("a"))
}

func TestDisconnect_ClearsTypingAndLeavesHuddle(t *testing.T) {
	env := newTestEnv(t)
	env.huddles.add("h1", entity.HuddleActive)
	a1 := env.connect(t, "a", "a1")
	b1 := env.connect(t, "b", "b1")
	env.dispatch("a1", `{"type":"join-huddle","data":{"huddleId":"h1"}}`)
	env.dispatch("b1", `{"type":"join-huddle","data":{"huddleId":"h1"}}`)
	env.dispatch("a1", `{"type":"typing-start","data":{"room":"channel:c-general"}}`)
	b1.reset()

	env.engine.Disconnect(context.Background(), "a1")

	left := b1.events(ws_dto.EvParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "a", left[0].Data["identityId"])
	assert.Len(t, b1.events(ws_dto.EvTypingStop), 1)
	assert.Len(t, b1.events(ws_dto.EvIdentityOffline), 1)
	assert.Empty(t, env.engine.Typing.Entries("channel:c-general"))
	assert.Empty(t, a1.events(ws_dto.EvParticipantLeft))
}
