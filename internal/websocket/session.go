package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время ожидания записи
	defaultWriteWait = 10 * time.Second

	// Время ожидания pong от клиента
	defaultPongWait = 60 * time.Second

	// Максимальный размер сообщения
	defaultMaxMessageSize = 512 * 1024 // 512KB

	defaultSendQueueSize = 256
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrQueueFull     = errors.New("session send queue is full")
)

// Transport: то, что сессии нужно от сокета. *websocket.Conn подходит как есть.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	SendQueueSize  int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendQueueSize:  defaultSendQueueSize,
		MaxMessageSize: defaultMaxMessageSize,
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = d.SendQueueSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	return o
}

// Session: одно живое соединение. Очередь исходящих ограничена:
// если клиент не успевает читать и очередь переполнилась, сессия закрывается.
type Session struct {
	ID uuid.UUID

	conn   Transport
	send   chan []byte
	opts   Options
	logger *slog.Logger

	mu            sync.RWMutex
	userID        uint
	authenticated bool
	groups        map[string]struct{}
	deliver       func(*Envelope)

	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(conn Transport, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	id := uuid.New()
	return &Session{
		ID:     id,
		conn:   conn,
		send:   make(chan []byte, opts.SendQueueSize),
		opts:   opts,
		logger: logger.With("session_id", id.String()),
		groups: make(map[string]struct{}),
		closed: make(chan struct{}),
	}
}

// UserID возвращает id пользователя; false, если соединение ещё не аутентифицировано
func (s *Session) UserID() (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.authenticated
}

func (s *Session) SetUserID(id uint) {
	s.mu.Lock()
	s.userID = id
	s.authenticated = true
	s.mu.Unlock()
}

// SetDeliveryHandler задаёт, как сессия обрабатывает конверты из групп
func (s *Session) SetDeliveryHandler(h func(*Envelope)) {
	s.mu.Lock()
	s.deliver = h
	s.mu.Unlock()
}

// Deliver вызывается реестром для каждого конверта группы.
// Не блокируется; закрытая сессия конверт молча пропускает.
func (s *Session) Deliver(env *Envelope) {
	if s.Closed() {
		return
	}
	s.mu.RLock()
	h := s.deliver
	s.mu.RUnlock()

	if h != nil {
		h(env)
		return
	}
	_ = s.Send(env)
}

func (s *Session) Send(env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw ставит кадр в очередь, не блокируясь
func (s *Session) SendRaw(data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		s.logger.Warn("send queue overflow, closing session", "queue_size", cap(s.send))
		s.Close()
		return ErrQueueFull
	}
}

// Close идемпотентен; после него WritePump выходит, неотправленные кадры теряются
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("transport close failed", "error", err)
		}
	})
}

func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Groups возвращает группы, на которые подписана сессия
func (s *Session) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]string, 0, len(s.groups))
	for g := range s.groups {
		groups = append(groups, g)
	}
	return groups
}

func (s *Session) addGroup(name string) {
	s.mu.Lock()
	s.groups[name] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeGroup(name string) {
	s.mu.Lock()
	delete(s.groups, name)
	s.mu.Unlock()
}

// ReadPump читает кадры клиента и передаёт их в handle, пока сокет жив
func (s *Session) ReadPump(ctx context.Context, handle func(ctx context.Context, data []byte)) {
	defer s.Close()

	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Info("websocket read error", "error", err)
			}
			return
		}
		if s.Closed() {
			return
		}
		handle(ctx, data)
	}
}

// WritePump отправляет кадры из очереди и пингует клиента
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.closed:
			return

		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
