package websocket

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/huntart-chat/internal/errs"
)

type stubValidator map[string]uint

func (v stubValidator) ValidateToken(_ context.Context, token string) (uint, error) {
	id, ok := v[token]
	if !ok {
		return 0, errs.Auth(nil, "invalid token")
	}
	return id, nil
}

// recordingSubsystem записывает вызовы вместе с id пользователя на момент вызова
type recordingSubsystem struct {
	name      SubsystemName
	reconnect bool
	d         *Dispatcher

	mu       sync.Mutex
	calls    []string
	received []*Envelope
	receive  func(env *Envelope) error
}

func (r *recordingSubsystem) Name() SubsystemName   { return r.name }
func (r *recordingSubsystem) ReconnectOnAuth() bool { return r.reconnect }

func (r *recordingSubsystem) record(event string) {
	id, _ := r.d.Session().UserID()
	r.mu.Lock()
	r.calls = append(r.calls, event+":"+string(rune('0'+id)))
	r.mu.Unlock()
}

func (r *recordingSubsystem) HandleConnect(context.Context) error {
	r.record("connect")
	return nil
}

func (r *recordingSubsystem) HandleDisconnect(context.Context) error {
	r.record("disconnect")
	return nil
}

func (r *recordingSubsystem) ReceiveMessage(_ context.Context, env *Envelope) error {
	r.mu.Lock()
	r.received = append(r.received, env)
	r.mu.Unlock()
	if r.receive != nil {
		return r.receive(env)
	}
	return nil
}

func (r *recordingSubsystem) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type dispatcherFixture struct {
	d        *Dispatcher
	session  *Session
	registry *Registry
	chat     *recordingSubsystem
	feed     *recordingSubsystem
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		chat: &recordingSubsystem{name: "chat", reconnect: true},
		feed: &recordingSubsystem{name: "feed", reconnect: false},
	}

	catalog, err := NewCatalog(
		CatalogEntry{Name: "chat", New: func(d *Dispatcher) Subsystem {
			f.chat.d = d
			return f.chat
		}},
		CatalogEntry{Name: "feed", New: func(d *Dispatcher) Subsystem {
			f.feed.d = d
			return f.feed
		}},
	)
	require.NoError(t, err)

	f.session, _ = newTestSession(t)
	f.registry = NewRegistry(nil)
	f.d = NewDispatcher(f.session, f.registry, catalog, stubValidator{"alice": 1, "bob": 2}, nil)
	return f
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	factory := func(*Dispatcher) Subsystem { return nil }
	_, err := NewCatalog(CatalogEntry{Name: "chat", New: factory}, CatalogEntry{Name: "chat", New: factory})
	assert.Error(t, err)
}

func TestCatalogResolve(t *testing.T) {
	catalog, err := NewCatalog(CatalogEntry{Name: "chat", New: func(*Dispatcher) Subsystem { return nil }})
	require.NoError(t, err)

	name, err := catalog.Resolve("chat")
	require.NoError(t, err)
	assert.Equal(t, SubsystemName("chat"), name)

	_, err = catalog.Resolve("polls")
	assert.ErrorIs(t, err, errs.ErrProtocol)
}

func TestFirstAuthenticationConnectsEverySubsystemOnce(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.d.Authenticate(ctx, "alice"))

	assert.True(t, f.d.Authenticated())
	assert.Equal(t, []string{"connect:1"}, f.chat.Calls())
	assert.Equal(t, []string{"connect:1"}, f.feed.Calls())
}

func TestReauthenticationReconnectsOnlyFlaggedSubsystems(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.d.Authenticate(ctx, "alice"))
	require.NoError(t, f.d.Authenticate(ctx, "bob"))

	assert.Equal(t, []string{"connect:1", "disconnect:1", "connect:2"}, f.chat.Calls())
	assert.Equal(t, []string{"connect:1"}, f.feed.Calls())

	id, _ := f.session.UserID()
	assert.Equal(t, uint(2), id)
}

func TestReauthenticationAsSameUserKeepsSubsystems(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.d.Authenticate(ctx, "alice"))
	require.NoError(t, f.d.Authenticate(ctx, "alice"))
	f.d.HandleFrame(ctx, []byte(`{"subsystem":"chat","headers":{"jwt_access":"alice"},"data":{"chat_id":1}}`))

	assert.Equal(t, []string{"connect:1"}, f.chat.Calls())
	assert.Equal(t, []string{"connect:1"}, f.feed.Calls())
	assert.Len(t, f.chat.received, 1)
}

// switchingSubsystem меняет пользователя без disconnect/connect
type switchingSubsystem struct {
	*recordingSubsystem
	targets []uint
	fail    error
}

func (s *switchingSubsystem) SwitchUser(_ context.Context, userID uint) error {
	s.record("switch")
	s.mu.Lock()
	s.targets = append(s.targets, userID)
	s.mu.Unlock()
	return s.fail
}

func newSwitchingDispatcher(t *testing.T, sub *switchingSubsystem) (*Dispatcher, *Session) {
	t.Helper()
	catalog, err := NewCatalog(CatalogEntry{Name: sub.name, New: func(d *Dispatcher) Subsystem {
		sub.d = d
		return sub
	}})
	require.NoError(t, err)

	session, _ := newTestSession(t)
	d := NewDispatcher(session, NewRegistry(nil), catalog, stubValidator{"alice": 1, "bob": 2}, nil)
	return d, session
}

func TestUserChangeUsesSwitcher(t *testing.T) {
	sub := &switchingSubsystem{recordingSubsystem: &recordingSubsystem{name: "chat", reconnect: true}}
	d, session := newSwitchingDispatcher(t, sub)
	ctx := context.Background()

	require.NoError(t, d.Authenticate(ctx, "alice"))
	require.NoError(t, d.Authenticate(ctx, "bob"))

	// switch видит прежнего пользователя, новый id приходит аргументом
	assert.Equal(t, []string{"connect:1", "switch:1"}, sub.Calls())
	assert.Equal(t, []uint{2}, sub.targets)

	id, _ := session.UserID()
	assert.Equal(t, uint(2), id)
	assert.Empty(t, drain(session))
}

func TestFailedSwitchDisconnectsSubsystem(t *testing.T) {
	sub := &switchingSubsystem{
		recordingSubsystem: &recordingSubsystem{name: "chat", reconnect: true},
		fail:               errs.Transient(nil, "load memberships"),
	}
	d, session := newSwitchingDispatcher(t, sub)
	ctx := context.Background()

	require.NoError(t, d.Authenticate(ctx, "alice"))
	require.NoError(t, d.Authenticate(ctx, "bob"))

	assert.Equal(t, []string{"connect:1", "switch:1", "disconnect:1"}, sub.Calls())

	sent := drain(session)
	require.Len(t, sent, 1)
	assert.Equal(t, errs.KindTransientIO, errorData(t, sent[0]).Kind)

	d.Close(ctx)
	assert.Equal(t, []string{"connect:1", "switch:1", "disconnect:1"}, sub.Calls())
}

func TestFailedAuthenticationLeavesStateUnchanged(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	err := f.d.Authenticate(ctx, "mallory")
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.False(t, f.d.Authenticated())
	assert.Empty(t, f.chat.Calls())

	require.NoError(t, f.d.Authenticate(ctx, "alice"))
	assert.ErrorIs(t, f.d.Authenticate(ctx, "mallory"), errs.ErrAuth)

	id, ok := f.session.UserID()
	assert.True(t, ok)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, []string{"connect:1"}, f.chat.Calls())
}

func TestHandleFrameProtocolErrors(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	frames := []string{
		`not json`,
		`{"data":{"chat_id":1}}`,
		`{"subsystem":"chat"}`,
		`{"subsystem":"chat","data":null}`,
		`{"subsystem":"polls","data":{}}`,
	}
	for _, frame := range frames {
		f.d.HandleFrame(ctx, []byte(frame))
	}

	sent := drain(f.session)
	require.Len(t, sent, len(frames))
	for _, env := range sent {
		assert.Equal(t, errs.KindProtocol, errorData(t, env).Kind)
	}
	assert.Equal(t, "polls", sent[4].Subsystem)
	assert.Empty(t, f.chat.received)
}

func TestHandleFrameAuthenticatesFromHeaders(t *testing.T) {
	f := newDispatcherFixture(t)

	f.d.HandleFrame(context.Background(), []byte(`{"subsystem":"chat","headers":{"jwt_access":"alice"},"data":{"chat_id":1}}`))

	assert.True(t, f.d.Authenticated())
	require.Len(t, f.chat.received, 1)
	assert.Empty(t, drain(f.session))
}

func TestHandleFrameBadHeaderTokenReportsAuthError(t *testing.T) {
	f := newDispatcherFixture(t)

	f.d.HandleFrame(context.Background(), []byte(`{"subsystem":"chat","headers":{"jwt_access":"nope"},"data":{}}`))

	sent := drain(f.session)
	require.Len(t, sent, 1)
	assert.Equal(t, errs.KindAuth, errorData(t, sent[0]).Kind)
	assert.Empty(t, f.chat.received)
}

func TestReceiveErrorGoesToSenderOnly(t *testing.T) {
	f := newDispatcherFixture(t)
	f.chat.receive = func(*Envelope) error { return errs.Permission("not a member of chat 9") }

	other, _ := newTestSession(t)
	f.registry.Subscribe("chat_pk_9", f.session)
	f.registry.Subscribe("chat_pk_9", other)

	f.d.HandleFrame(context.Background(), []byte(`{"subsystem":"chat","data":{"chat_id":9,"content":"x"}}`))

	sent := drain(f.session)
	require.Len(t, sent, 1)
	data := errorData(t, sent[0])
	assert.Equal(t, errs.KindPermission, data.Kind)
	assert.Equal(t, "not a member of chat 9", data.Message)
	assert.Empty(t, drain(other))
}

type hookedSubsystem struct {
	recordingSubsystem
	delivered []*Envelope
}

func (h *hookedSubsystem) Deliver(env *Envelope) {
	h.delivered = append(h.delivered, env)
}

func TestDeliveryRoutesToSubsystemHook(t *testing.T) {
	hooked := &hookedSubsystem{recordingSubsystem: recordingSubsystem{name: "chat"}}
	catalog, err := NewCatalog(CatalogEntry{Name: "chat", New: func(d *Dispatcher) Subsystem {
		hooked.d = d
		return hooked
	}})
	require.NoError(t, err)

	session, _ := newTestSession(t)
	registry := NewRegistry(nil)
	NewDispatcher(session, registry, catalog, stubValidator{}, nil)
	registry.Subscribe("g", session)

	registry.Broadcast("g", &Envelope{Subsystem: "chat", Action: "new_message", Data: []byte(`{}`)})
	registry.Broadcast("g", &Envelope{Subsystem: "presence", Action: "online", Data: []byte(`{}`)})

	require.Len(t, hooked.delivered, 1)
	sent := drain(session)
	require.Len(t, sent, 1)
	assert.Equal(t, "presence", sent[0].Subsystem)
}

func TestCloseDisconnectsAndUnsubscribes(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.d.Authenticate(ctx, "alice"))
	f.registry.Subscribe("chat_pk_1", f.session)
	f.registry.Subscribe("chat_pk_2", f.session)

	f.d.Close(ctx)
	f.d.Close(ctx)

	assert.Equal(t, []string{"connect:1", "disconnect:1"}, f.chat.Calls())
	assert.Equal(t, []string{"connect:1", "disconnect:1"}, f.feed.Calls())
	assert.Zero(t, f.registry.GroupCount())
	assert.True(t, f.session.Closed())

	f.d.HandleFrame(ctx, []byte(`{"subsystem":"chat","data":{}}`))
	assert.Empty(t, f.chat.received)
}

func TestCloseWithoutAuthenticationSkipsDisconnect(t *testing.T) {
	f := newDispatcherFixture(t)

	f.d.Close(context.Background())

	assert.Empty(t, f.chat.Calls())
	assert.True(t, f.session.Closed())
}
