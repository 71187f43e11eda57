package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnvelope(t *testing.T, n int) *Envelope {
	t.Helper()
	env, err := NewEnvelope("chat", "new_message", map[string]int{"n": n})
	require.NoError(t, err)
	return env
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)
	b, _ := newTestSession(t)
	c, _ := newTestSession(t)

	r.Subscribe("chat_pk_1", a)
	r.Subscribe("chat_pk_1", b)
	r.Subscribe("chat_pk_2", c)

	r.Broadcast("chat_pk_1", newEnvelope(t, 1))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)

	r.Subscribe("g", a)
	r.Subscribe("g", a)
	r.Broadcast("g", newEnvelope(t, 1))

	assert.Len(t, drain(a), 1)
	assert.Len(t, r.Sessions("g"), 1)
}

func TestBroadcastToEmptyGroupIsNoop(t *testing.T) {
	r := NewRegistry(nil)

	r.Broadcast("nobody", newEnvelope(t, 1))

	assert.Zero(t, r.GroupCount())
}

func TestUnsubscribeRemovesEmptyGroup(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)

	r.Subscribe("g", a)
	assert.Equal(t, 1, r.GroupCount())

	r.Unsubscribe("g", a)
	r.Unsubscribe("g", a)
	assert.Zero(t, r.GroupCount())
	assert.Empty(t, a.Groups())
}

func TestUnsubscribeAllLeavesNoDanglingReferences(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)
	b, _ := newTestSession(t)

	for i := 0; i < 5; i++ {
		r.Subscribe(fmt.Sprintf("chat_pk_%d", i), a)
	}
	r.Subscribe("chat_pk_0", b)

	r.UnsubscribeAll(a)

	assert.Empty(t, a.Groups())
	assert.Equal(t, 1, r.GroupCount())
	assert.Equal(t, []*Session{b}, r.Sessions("chat_pk_0"))
}

func TestBroadcastSkipsClosedSessions(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)
	b, _ := newTestSession(t)

	r.Subscribe("g", a)
	r.Subscribe("g", b)
	b.Close()

	r.Broadcast("g", newEnvelope(t, 1))

	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestSlowSessionDoesNotAffectOthers(t *testing.T) {
	r := NewRegistry(nil)
	slow := NewSession(newMockConn(), Options{SendQueueSize: 1}, nil)
	fast, _ := newTestSession(t)

	r.Subscribe("g", slow)
	r.Subscribe("g", fast)

	for i := 0; i < 3; i++ {
		r.Broadcast("g", newEnvelope(t, i))
	}

	assert.True(t, slow.Closed())
	assert.Len(t, drain(fast), 3)
}

func TestPublishErrorSkipsBroadcast(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t)
	r.Subscribe("g", a)

	boom := errors.New("boom")
	err := r.Publish(context.Background(), "g", func() (*Envelope, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, drain(a))
}

func TestPublishPreservesProduceOrder(t *testing.T) {
	r := NewRegistry(nil)
	listener := NewSession(newMockConn(), Options{SendQueueSize: 128}, nil)
	defer listener.Close()
	r.Subscribe("g", listener)

	var (
		mu       sync.Mutex
		produced []int
		seq      int
	)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Publish(context.Background(), "g", func() (*Envelope, error) {
				mu.Lock()
				seq++
				n := seq
				produced = append(produced, n)
				mu.Unlock()
				return NewEnvelope("chat", "new_message", map[string]int{"n": n})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var delivered []int
	for _, env := range drain(listener) {
		var data map[string]int
		require.NoError(t, json.Unmarshal(env.Data, &data))
		delivered = append(delivered, data["n"])
	}
	assert.Equal(t, produced, delivered)
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewSession(newMockConn(), Options{SendQueueSize: 64}, nil)
			name := fmt.Sprintf("g%d", i%3)
			r.Subscribe(name, s)
			r.Broadcast(name, newEnvelope(t, i))
			r.UnsubscribeAll(s)
			s.Close()
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.GroupCount())
}

func TestOnlineUsersCountsDistinctUsers(t *testing.T) {
	r := NewRegistry(nil)
	tab1, _ := newTestSession(t)
	tab2, _ := newTestSession(t)
	other, _ := newTestSession(t)
	anon, _ := newTestSession(t)
	tab1.SetUserID(1)
	tab2.SetUserID(1)
	other.SetUserID(2)

	for _, s := range []*Session{tab1, tab2, other, anon} {
		r.Subscribe("g", s)
	}

	assert.Equal(t, 2, r.OnlineUsers("g"))
}
