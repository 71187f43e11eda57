package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionUserIDUnsetUntilAuthenticated(t *testing.T) {
	s, _ := newTestSession(t)

	_, ok := s.UserID()
	assert.False(t, ok)

	s.SetUserID(7)
	id, ok := s.UserID()
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)
}

func TestSessionOverflowClosesSession(t *testing.T) {
	conn := newMockConn()
	s := NewSession(conn, Options{SendQueueSize: 2}, nil)

	env, err := NewEnvelope("chat", "new_message", map[string]int{"id": 1})
	require.NoError(t, err)

	require.NoError(t, s.Send(env))
	require.NoError(t, s.Send(env))
	assert.ErrorIs(t, s.Send(env), ErrQueueFull)

	assert.True(t, s.Closed())
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, s.Send(env), ErrSessionClosed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, conn := newTestSession(t)

	s.Close()
	s.Close()

	assert.True(t, s.Closed())
	assert.True(t, conn.isClosed())
}

func TestSessionDeliverUsesHandler(t *testing.T) {
	s, _ := newTestSession(t)

	var got []*Envelope
	s.SetDeliveryHandler(func(env *Envelope) { got = append(got, env) })

	env := &Envelope{Subsystem: "chat", Action: "new_message", Data: []byte(`{}`)}
	s.Deliver(env)
	require.Len(t, got, 1)
	assert.Same(t, env, got[0])

	s.Close()
	s.Deliver(env)
	assert.Len(t, got, 1)
}

func TestSessionPumps(t *testing.T) {
	conn := newMockConn()
	s := NewSession(conn, Options{SendQueueSize: 8}, nil)

	go s.WritePump()

	received := make(chan []byte, 1)
	done := make(chan struct{})
	go func() {
		s.ReadPump(context.Background(), func(_ context.Context, data []byte) {
			received <- data
		})
		close(done)
	}()

	conn.inbound <- []byte(`{"subsystem":"chat","data":{}}`)
	select {
	case data := <-received:
		assert.JSONEq(t, `{"subsystem":"chat","data":{}}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("frame was not read")
	}

	env, err := NewEnvelope("chat", "new_message", map[string]string{"content": "hi"})
	require.NoError(t, err)
	require.NoError(t, s.Send(env))

	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.written) == 1
	}, time.Second, 10*time.Millisecond)

	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not stop")
	}
}
