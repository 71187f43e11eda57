package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/services"
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// Dispatcher ведёт одно соединение: аутентификация, маршрутизация входящих
// конвертов по подсистемам и вызовы connect/disconnect.
type Dispatcher struct {
	session   *Session
	registry  *Registry
	catalog   *Catalog
	validator services.TokenValidator
	logger    *slog.Logger

	subsystems []Subsystem
	byName     map[SubsystemName]Subsystem

	// mu сериализует переходы состояния и колбэки подсистем
	mu        sync.Mutex
	state     connState
	connected map[SubsystemName]bool
}

func NewDispatcher(session *Session, registry *Registry, catalog *Catalog, validator services.TokenValidator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		session:   session,
		registry:  registry,
		catalog:   catalog,
		validator: validator,
		logger:    logger.With("session_id", session.ID.String()),
		byName:    make(map[SubsystemName]Subsystem),
		connected: make(map[SubsystemName]bool),
	}
	for _, name := range catalog.names {
		sub := catalog.factories[name](d)
		d.subsystems = append(d.subsystems, sub)
		d.byName[name] = sub
	}
	session.SetDeliveryHandler(d.deliver)
	return d
}

func (d *Dispatcher) Session() *Session {
	return d.session
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

func (d *Dispatcher) Logger() *slog.Logger {
	return d.logger
}

func (d *Dispatcher) Authenticated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateAuthenticated
}

// Start вызывается сразу после апгрейда; токен из query/заголовка необязателен
func (d *Dispatcher) Start(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := d.Authenticate(ctx, token); err != nil {
		d.reportError(SystemSubsystem, err)
	}
}

// Authenticate проверяет токен. При ошибке состояние не меняется.
// Первый успех вызывает HandleConnect у всех подсистем. Повторный токен того же
// пользователя ничего не меняет. Смена пользователя переподключает только
// подсистемы с ReconnectOnAuth() == true.
func (d *Dispatcher) Authenticate(ctx context.Context, token string) error {
	userID, err := d.validator.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateClosed:
		return errs.Protocol("connection is closed")

	case stateUnauthenticated:
		d.session.SetUserID(userID)
		d.state = stateAuthenticated
		d.logger.Info("connection authenticated", "user_id", userID)
		for _, sub := range d.subsystems {
			d.connect(ctx, sub)
		}

	case stateAuthenticated:
		prev, _ := d.session.UserID()
		if prev == userID {
			return nil
		}
		d.logger.Info("connection re-authenticated", "user_id", userID, "previous_user_id", prev)

		var reconnect []Subsystem
		for _, sub := range d.subsystems {
			if !sub.ReconnectOnAuth() {
				continue
			}
			if sw, ok := sub.(UserSwitcher); ok && d.connected[sub.Name()] {
				d.switchUser(ctx, sub, sw, userID)
				continue
			}
			if d.connected[sub.Name()] {
				d.disconnect(ctx, sub)
			}
			reconnect = append(reconnect, sub)
		}
		d.session.SetUserID(userID)
		for _, sub := range reconnect {
			d.connect(ctx, sub)
		}
	}

	return nil
}

// switchUser при ошибке отключает подсистему, чтобы не оставить сессию
// в группах прежнего пользователя
func (d *Dispatcher) switchUser(ctx context.Context, sub Subsystem, sw UserSwitcher, userID uint) {
	if err := sw.SwitchUser(ctx, userID); err != nil {
		d.logger.Error("subsystem user switch failed", "subsystem", sub.Name(), "error", err)
		d.disconnect(ctx, sub)
		d.reportError(string(sub.Name()), err)
	}
}

// connect и disconnect вызываются под d.mu
func (d *Dispatcher) connect(ctx context.Context, sub Subsystem) {
	if err := sub.HandleConnect(ctx); err != nil {
		d.logger.Error("subsystem connect failed", "subsystem", sub.Name(), "error", err)
		d.reportError(string(sub.Name()), err)
		return
	}
	d.connected[sub.Name()] = true
}

func (d *Dispatcher) disconnect(ctx context.Context, sub Subsystem) {
	if err := sub.HandleDisconnect(ctx); err != nil {
		d.logger.Error("subsystem disconnect failed", "subsystem", sub.Name(), "error", err)
	}
	delete(d.connected, sub.Name())
}

// HandleFrame разбирает входящий кадр и отдаёт его подсистеме.
// Любая ошибка уходит только отправителю.
func (d *Dispatcher) HandleFrame(ctx context.Context, raw []byte) {
	d.mu.Lock()
	closed := d.state == stateClosed
	d.mu.Unlock()
	if closed {
		return
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		d.reportError(SystemSubsystem, err)
		return
	}

	if token := env.Headers[HeaderJWTAccess]; token != "" {
		if err := d.Authenticate(ctx, token); err != nil {
			d.reportError(env.Subsystem, err)
			return
		}
	}

	name, err := d.catalog.Resolve(env.Subsystem)
	if err != nil {
		d.reportError(env.Subsystem, err)
		return
	}

	if err := d.byName[name].ReceiveMessage(ctx, env); err != nil {
		if kind := errs.KindOf(err); kind == errs.KindInternal || kind == errs.KindTransientIO {
			d.logger.Error("receive message failed", "subsystem", name, "action", env.Action, "error", err)
		}
		d.reportError(env.Subsystem, err)
	}
}

// deliver: обработчик конвертов из групп для сессии
func (d *Dispatcher) deliver(env *Envelope) {
	if sub, ok := d.byName[SubsystemName(env.Subsystem)]; ok {
		if h, ok := sub.(DeliveryHandler); ok {
			h.Deliver(env)
			return
		}
	}
	_ = d.session.Send(env)
}

func (d *Dispatcher) reportError(subsystem string, err error) {
	if sendErr := d.session.Send(ErrorEnvelope(subsystem, err)); sendErr != nil {
		d.logger.Debug("failed to report error", "error", sendErr)
	}
}

// Close отключает подсистемы, отписывает сессию от всех групп и закрывает её.
// Повторные вызовы ничего не делают.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if d.state == stateClosed {
		d.mu.Unlock()
		return
	}
	d.state = stateClosed
	for _, sub := range d.subsystems {
		if d.connected[sub.Name()] {
			d.disconnect(ctx, sub)
		}
	}
	d.mu.Unlock()

	d.registry.UnsubscribeAll(d.session)
	d.session.Close()
	d.logger.Debug("connection closed")
}
