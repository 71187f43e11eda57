package websocket

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/thereayou/huntart-chat/internal/errs"
)

const (
	ActionError = "error"

	// SystemSubsystem: тег для ошибок, которые нельзя отнести к подсистеме
	SystemSubsystem = "system"

	// HeaderJWTAccess: заголовок конверта с access-токеном
	HeaderJWTAccess = "jwt_access"
)

// Envelope: единица обмена по сокету в обе стороны.
// После отправки в Broadcast конверт только читается.
type Envelope struct {
	Subsystem string            `json:"subsystem"`
	Action    string            `json:"action,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Data      json.RawMessage   `json:"data"`

	once    sync.Once
	encoded []byte
	encErr  error
}

type ErrorData struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

func NewEnvelope(subsystem, action string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Subsystem: subsystem, Action: action, Data: raw}, nil
}

// ErrorEnvelope собирает конверт ошибки для отправителя
func ErrorEnvelope(subsystem string, err error) *Envelope {
	if subsystem == "" {
		subsystem = SystemSubsystem
	}
	raw, _ := json.Marshal(ErrorData{Kind: errs.KindOf(err), Message: errs.PublicMessage(err)})
	return &Envelope{Subsystem: subsystem, Action: ActionError, Data: raw}
}

// ParseEnvelope разбирает входящий кадр. Без subsystem или data кадр невалиден.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, errs.Protocol("malformed envelope")
	}
	if env.Subsystem == "" {
		return nil, errs.Protocol("subsystem is required")
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, errs.Protocol("data is required")
	}
	return env, nil
}

// Encode сериализует конверт один раз, сколько бы сессий его ни получили
func (e *Envelope) Encode() ([]byte, error) {
	e.once.Do(func() {
		e.encoded, e.encErr = json.Marshal(e)
	})
	return e.encoded, e.encErr
}
