package realtime

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

type received struct {
	Type string         `json:"type"`
	Room string         `json:"room"`
	Ref  string         `json:"ref"`
	Data map[string]any `json:"data"`
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []received
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	var r received
	if err := json.Unmarshal(frame, &r); err != nil {
		panic(err)
	}
	c.frames = append(c.frames, r)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t ws_dto.EventType) []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []received
	for _, f := range c.frames {
		if f.Type == string(t) {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) all() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fakeResolver struct{}

// Resolve accepts "tok:<identity>" credentials.
func (fakeResolver) Resolve(_ context.Context, credential string) (Identity, error) {
	id, ok := strings.CutPrefix(credential, "tok:")
	if !ok || id == "" {
		return Identity{}, app_error.Auth("invalid token")
	}
	return Identity{ID: id, Name: strings.ToUpper(id)}, nil
}

type fakeChannel struct {
	workspace string
	public    bool
	members   map[string]bool
}

type fakeMembership struct {
	mu         sync.Mutex
	channels   map[string]*fakeChannel
	workspaces map[string]map[string]bool
	err        error
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		channels:   make(map[string]*fakeChannel),
		workspaces: make(map[string]map[string]bool),
	}
}

func (m *fakeMembership) addWorkspace(id string, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool)
	for _, u := range members {
		set[u] = true
	}
	m.workspaces[id] = set
}

func (m *fakeMembership) addChannel(id, workspace string, public bool, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool)
	for _, u := range members {
		set[u] = true
	}
	m.channels[id] = &fakeChannel{workspace: workspace, public: public, members: set}
}

func (m *fakeMembership) setMember(channelID, identityID string, member bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID].members[identityID] = member
}

func (m *fakeMembership) ChannelsOf(_ context.Context, identityID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for id, ch := range m.channels {
		if ch.members[identityID] || (ch.public && m.workspaces[ch.workspace][identityID]) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *fakeMembership) WorkspacesOf(_ context.Context, identityID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for id, members := range m.workspaces {
		if members[identityID] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *fakeMembership) IsChannelMember(_ context.Context, channelID, identityID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	ch, ok := m.channels[channelID]
	return ok && ch.members[identityID], nil
}

func (m *fakeMembership) IsPublicChannel(_ context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	ch, ok := m.channels[channelID]
	return ok && ch.public, nil
}

func (m *fakeMembership) IsWorkspaceMember(_ context.Context, workspaceID, identityID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.workspaces[workspaceID][identityID], nil
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs map[string]*entity.Message
	err  error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{msgs: make(map[string]*entity.Message)}
}

func cloneMessage(m *entity.Message) *entity.Message {
	c := *m
	c.Reactions = m.Reactions.Clone()
	return &c
}

func (f *fakeMessages) Create(_ context.Context, msg *entity.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs[msg.ID] = cloneMessage(msg)
	return nil
}

func (f *fakeMessages) Get(_ context.Context, id string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[id]
	if !ok {
		return nil, app_error.NotFound("message not found", "messageId")
	}
	return cloneMessage(m), nil
}

func (f *fakeMessages) update(id string, fn func(*entity.Message) error) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.msgs[id]
	if !ok {
		return nil, app_error.NotFound("message not found", "messageId")
	}
	next := cloneMessage(m)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version++
	f.msgs[id] = next
	return cloneMessage(next), nil
}

func (f *fakeMessages) UpdateContent(_ context.Context, id, content string, at time.Time) (*entity.Message, error) {
	return f.update(id, func(m *entity.Message) error {
		m.Content = content
		m.IsEdited = true
		m.EditedAt = &at
		return nil
	})
}

func (f *fakeMessages) SoftDelete(_ context.Context, id string, at time.Time) (*entity.Message, error) {
	return f.update(id, func(m *entity.Message) error {
		m.IsDeleted = true
		m.DeletedAt = &at
		return nil
	})
}

func (f *fakeMessages) MutateReactions(_ context.Context, id string, fn func(entity.Reactions) error) (*entity.Message, error) {
	return f.update(id, func(m *entity.Message) error {
		if m.Reactions == nil {
			m.Reactions = entity.Reactions{}
		}
		return fn(m.Reactions)
	})
}

func (f *fakeMessages) SetPinned(_ context.Context, id string, pinned bool, by string, at time.Time) (*entity.Message, error) {
	return f.update(id, func(m *entity.Message) error {
		m.IsPinned = pinned
		if pinned {
			m.PinnedBy, m.PinnedAt = &by, &at
		} else {
			m.PinnedBy, m.PinnedAt = nil, nil
		}
		return nil
	})
}

func (f *fakeMessages) IncrementThreadCount(_ context.Context, parentID string) error {
	_, err := f.update(parentID, func(m *entity.Message) error {
		m.ThreadCount++
		return nil
	})
	return err
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeHuddles struct {
	mu           sync.Mutex
	huddles      map[string]*entity.Huddle
	participants map[string]*entity.HuddleParticipant
}

func newFakeHuddles() *fakeHuddles {
	return &fakeHuddles{
		huddles:      make(map[string]*entity.Huddle),
		participants: make(map[string]*entity.HuddleParticipant),
	}
}

func (f *fakeHuddles) add(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.huddles[id] = &entity.Huddle{ID: id, ChannelID: "c-general", Status: status}
}

func (f *fakeHuddles) Get(_ context.Context, id string) (*entity.Huddle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.huddles[id]
	if !ok {
		return nil, app_error.NotFound("huddle not found", "huddleId")
	}
	c := *h
	return &c, nil
}

func (f *fakeHuddles) UpdateParticipantMedia(_ context.Context, huddleID, identityID string, media entity.MediaState) (*entity.HuddleParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := huddleID + "/" + identityID
	p, ok := f.participants[key]
	if !ok {
		p = &entity.HuddleParticipant{HuddleID: huddleID, UserID: identityID}
		f.participants[key] = p
	}
	p.Apply(media)
	c := *p
	return &c, nil
}

type presenceCall struct {
	kind       string
	identityID string
	status     string
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (f *fakePresence) record(c presenceCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakePresence) MarkOnline(_ context.Context, identityID, status string, _ time.Time) error {
	return f.record(presenceCall{kind: "online", identityID: identityID, status: status})
}

func (f *fakePresence) UpdateStatus(_ context.Context, identityID, status string) error {
	return f.record(presenceCall{kind: "status", identityID: identityID, status: status})
}

func (f *fakePresence) MarkOffline(_ context.Context, identityID string, _ time.Time) error {
	return f.record(presenceCall{kind: "offline", identityID: identityID})
}

func (f *fakePresence) callsOf(kind string) []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []presenceCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type testEnv struct {
	engine     *Engine
	membership *fakeMembership
	messages   *fakeMessages
	huddles    *fakeHuddles
	presence   *fakePresence
}

// newTestEnv builds an engine over workspace w1 with members a, b, c, d,
// public channel c-general (all members) and private channel c-secret
// (a and b only).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		membership: newFakeMembership(),
		messages:   newFakeMessages(),
		huddles:    newFakeHuddles(),
		presence:   &fakePresence{},
	}
	env.membership.addWorkspace("w1", "a", "b", "c", "d")
	env.membership.addChannel("c-general", "w1", true, "a", "b", "c", "d")
	env.membership.addChannel("c-secret", "w1", false, "a", "b")

	env.engine = NewEngine(Options{TypingWindow: 3 * time.Second}, Deps{
		Identities: fakeResolver{},
		Membership: env.membership,
		Messages:   env.messages,
		Huddles:    env.huddles,
		Presence:   env.presence,
	})
	return env
}

func (env *testEnv) connect(t *testing.T, identityID, connID string) *fakeConn {
	t.Helper()
	conn := newFakeConn(connID)
	_, err := env.engine.Connect(context.Background(), "tok:"+identityID, conn)
	require.NoError(t, err)
	return conn
}

func (env *testEnv) dispatch(connID, frame string) {
	env.engine.Dispatch(context.Background(), connID, []byte(frame))
}

func resetAll(conns ...*fakeConn) {
	for _, c := range conns {
		c.reset()
	}
}
