package websocket

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/huntart-chat/internal/errs"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"subsystem":"chat","headers":{"jwt_access":"t"},"data":{"chat_id":42,"content":"hi"}}`))
	require.NoError(t, err)

	assert.Equal(t, "chat", env.Subsystem)
	assert.Empty(t, env.Action)
	assert.Equal(t, "t", env.Headers[HeaderJWTAccess])
	assert.JSONEq(t, `{"chat_id":42,"content":"hi"}`, string(env.Data))
}

func TestErrorEnvelopeHidesInternalDetails(t *testing.T) {
	env := ErrorEnvelope("", errors.New("pq: password authentication failed"))

	assert.Equal(t, SystemSubsystem, env.Subsystem)
	data := errorData(t, env)
	assert.Equal(t, errs.KindInternal, data.Kind)
	assert.Equal(t, "internal error", data.Message)
}

func TestEncodeIsStable(t *testing.T) {
	env, err := NewEnvelope("chat", "new_message", map[string]string{"content": "hi"})
	require.NoError(t, err)

	first, err := env.Encode()
	require.NoError(t, err)
	second, err := env.Encode()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.JSONEq(t, `{"subsystem":"chat","action":"new_message","data":{"content":"hi"}}`, string(first))
}
