package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEncodeDecode(t *testing.T) {
	env := NewEnvelope(TypePublish, "maple.log", "com.example.leaf+++hello")
	data, err := env.Encode()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	data, err := NewEnvelope(TypeSubscribe, "theme", "").Encode()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeSubscribe, got.Type)
	assert.Empty(t, got.Payload)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	_, err := DecodeEnvelope([]byte{0xc1})
	assert.Error(t, err)

	data, err := NewEnvelope(TypePublish, "", "x").Encode()
	require.NoError(t, err)
	_, err = DecodeEnvelope(data)
	assert.ErrorContains(t, err, "missing channel")
}
