package websocket

import (
	"context"
	"log/slog"
	"sync"
)

type group struct {
	// mu защищает sessions
	mu       sync.RWMutex
	sessions map[*Session]struct{}

	// pubMu упорядочивает рассылки: порядок доставки в группе
	// совпадает с порядком записи в базу
	pubMu sync.Mutex

	// pending и dead меняются только под Registry.mu
	pending int
	dead    bool
}

// Registry: процессный реестр групп: имя группы -> подписанные сессии.
// Группа создаётся при первой подписке и удаляется, когда из неё ушла последняя сессия.
// Общий mu защищает только карту групп, у каждой группы свои блокировки.
type Registry struct {
	mu     sync.Mutex
	groups map[string]*group
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		groups: make(map[string]*group),
		logger: logger,
	}
}

// getOrCreate вызывается под r.mu
func (r *Registry) getOrCreate(name string) *group {
	g, ok := r.groups[name]
	if !ok {
		g = &group{sessions: make(map[*Session]struct{})}
		r.groups[name] = g
	}
	return g
}

func (r *Registry) lookup(name string) *group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[name]
}

// Subscribe идемпотентен. Закрытые сессии не подписываются.
func (r *Registry) Subscribe(name string, s *Session) {
	if s.Closed() {
		return
	}
	for {
		r.mu.Lock()
		g := r.getOrCreate(name)
		r.mu.Unlock()

		g.mu.Lock()
		if g.dead {
			// группа удалена между поиском и блокировкой, берём новую
			g.mu.Unlock()
			continue
		}
		g.sessions[s] = struct{}{}
		g.mu.Unlock()

		s.addGroup(name)
		return
	}
}

// Unsubscribe идемпотентен
func (r *Registry) Unsubscribe(name string, s *Session) {
	defer s.removeGroup(name)

	g := r.lookup(name)
	if g == nil {
		return
	}

	g.mu.Lock()
	delete(g.sessions, s)
	g.mu.Unlock()

	r.reap(name, g)
}

// UnsubscribeAll убирает сессию из всех групп, куда она входила
func (r *Registry) UnsubscribeAll(s *Session) {
	for _, name := range s.Groups() {
		r.Unsubscribe(name, s)
	}
}

// reap удаляет пустую группу, если по ней не идёт рассылка
func (r *Registry) reap(name string, g *group) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.pending > 0 || r.groups[name] != g {
		return
	}

	g.mu.Lock()
	if len(g.sessions) == 0 {
		g.dead = true
		delete(r.groups, name)
	}
	g.mu.Unlock()
}

// Broadcast доставляет конверт всем сессиям группы на момент вызова.
// Пустая или несуществующая группа не считается ошибкой.
func (r *Registry) Broadcast(name string, env *Envelope) {
	_ = r.Publish(context.Background(), name, func() (*Envelope, error) {
		return env, nil
	})
}

// Publish под блокировкой порядка группы вызывает produce (запись в базу и сборка
// конверта) и рассылает результат. Ошибка produce возвращается как есть,
// рассылки при этом нет.
func (r *Registry) Publish(ctx context.Context, name string, produce func() (*Envelope, error)) error {
	r.mu.Lock()
	g := r.getOrCreate(name)
	g.pending++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		g.pending--
		r.mu.Unlock()
		r.reap(name, g)
	}()

	g.pubMu.Lock()
	defer g.pubMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	env, err := produce()
	if err != nil {
		return err
	}
	if env == nil {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for s := range g.sessions {
		s.Deliver(env)
	}
	r.logger.Debug("broadcast", "group", name, "action", env.Action, "recipients", len(g.sessions))

	return nil
}

// Sessions возвращает сессии группы на текущий момент
func (r *Registry) Sessions(name string) []*Session {
	g := r.lookup(name)
	if g == nil {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// OnlineUsers считает разных аутентифицированных пользователей в группе
func (r *Registry) OnlineUsers(name string) int {
	users := make(map[uint]struct{})
	for _, s := range r.Sessions(name) {
		if s.Closed() {
			continue
		}
		if id, ok := s.UserID(); ok {
			users[id] = struct{}{}
		}
	}
	return len(users)
}

func (r *Registry) GroupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
