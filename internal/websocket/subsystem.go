package websocket

import (
	"context"
	"fmt"

	"github.com/thereayou/huntart-chat/internal/errs"
)

// SubsystemName: зарегистрированный тег подсистемы
type SubsystemName string

// Subsystem: обработчик одного тега для одного соединения
type Subsystem interface {
	Name() SubsystemName
	// ReconnectOnAuth: нужно ли переподключать подсистему при повторной аутентификации
	ReconnectOnAuth() bool
	HandleConnect(ctx context.Context) error
	HandleDisconnect(ctx context.Context) error
	ReceiveMessage(ctx context.Context, env *Envelope) error
}

// DeliveryHandler: необязательный хук подсистемы для конвертов из групп
type DeliveryHandler interface {
	Deliver(env *Envelope)
}

// UserSwitcher: необязательный хук для смены пользователя на живом соединении.
// Подсистема сначала подписывается на новое, потом отписывается от лишнего,
// так что общие группы не теряют ни одной рассылки. Вызывается до того,
// как сессия получит новый id.
type UserSwitcher interface {
	SwitchUser(ctx context.Context, userID uint) error
}

// Factory создаёт экземпляр подсистемы для соединения
type Factory func(d *Dispatcher) Subsystem

type CatalogEntry struct {
	Name SubsystemName
	New  Factory
}

// Catalog собирается один раз при старте; набор тегов дальше не меняется
type Catalog struct {
	names     []SubsystemName
	factories map[SubsystemName]Factory
}

func NewCatalog(entries ...CatalogEntry) (*Catalog, error) {
	c := &Catalog{factories: make(map[SubsystemName]Factory, len(entries))}
	for _, e := range entries {
		if e.Name == "" || e.New == nil {
			return nil, fmt.Errorf("catalog entry %q is incomplete", e.Name)
		}
		if _, dup := c.factories[e.Name]; dup {
			return nil, fmt.Errorf("subsystem %q registered twice", e.Name)
		}
		c.factories[e.Name] = e.New
		c.names = append(c.names, e.Name)
	}
	return c, nil
}

// Resolve проверяет тег из конверта
func (c *Catalog) Resolve(tag string) (SubsystemName, error) {
	name := SubsystemName(tag)
	if _, ok := c.factories[name]; !ok {
		return "", errs.Protocol("unknown subsystem %q", tag)
	}
	return name, nil
}

func (c *Catalog) Names() []SubsystemName {
	out := make([]SubsystemName, len(c.names))
	copy(out, c.names)
	return out
}
