package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind классифицирует ошибку для ответа клиенту
type Kind string

const (
	KindProtocol    Kind = "protocol_error"
	KindAuth        Kind = "auth_error"
	KindPermission  Kind = "permission_error"
	KindNotFound    Kind = "not_found"
	KindTransientIO Kind = "transient_io_error"
	KindInternal    Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrProtocol    = &Error{Kind: KindProtocol, Message: "protocol error"}
	ErrAuth        = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrPermission  = &Error{Kind: KindPermission, Message: "permission denied"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrTransientIO = &Error{Kind: KindTransientIO, Message: "temporary failure"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает только Kind, поэтому errors.Is(err, ErrNotFound) срабатывает
// для любой ошибки этого вида.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func Protocol(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func Auth(err error, format string, args ...any) error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...), Err: err}
}

func Permission(format string, args ...any) error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Transient(err error, format string, args ...any) error {
	return &Error{Kind: KindTransientIO, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает вид ошибки; неклассифицированные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage возвращает текст, который можно отдать клиенту.
// Детали транспортных и внутренних ошибок наружу не уходят.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindTransientIO || e.Kind == KindInternal {
		return e.Message
	}
	return e.Error()
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindProtocol:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
