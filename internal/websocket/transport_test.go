package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// mockConn: транспорт в памяти: входящие кадры кладутся в inbound,
// исходящие копятся в written.
type mockConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
	done    chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{inbound: make(chan []byte, 16), done: make(chan struct{})}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return websocket.TextMessage, data, nil
	case <-m.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if messageType == websocket.TextMessage {
		m.written = append(m.written, data)
	}
	return nil
}

func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// drain забирает кадры прямо из очереди сессии, без WritePump
func drain(s *Session) []*Envelope {
	var out []*Envelope
	for {
		select {
		case data := <-s.send:
			env := &Envelope{}
			if err := json.Unmarshal(data, env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func newTestSession(t *testing.T) (*Session, *mockConn) {
	t.Helper()
	conn := newMockConn()
	s := NewSession(conn, Options{SendQueueSize: 8}, nil)
	t.Cleanup(s.Close)
	return s, conn
}

func errorData(t *testing.T, env *Envelope) ErrorData {
	t.Helper()
	require.Equal(t, ActionError, env.Action)
	var data ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}
