package of

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSetGet(t *testing.T) {
	var h header

	require.NoError(t, h.Set(VersionHeaderKey, uint8(4)))
	require.NoError(t, h.Set(TypeHeaderKey, TypeHello))
	require.NoError(t, h.Set(XIDHeaderKey, uint32(42)))

	assert.Equal(t, uint8(4), h.Get(VersionHeaderKey))
	assert.Equal(t, TypeHello, h.Get(TypeHeaderKey))
	assert.Equal(t, uint32(42), h.Get(XIDHeaderKey))
}

func TestHeaderSetRejectsWrongTypes(t *testing.T) {
	var h header

	assert.Error(t, h.Set(VersionHeaderKey, "not a uint8"))
	assert.Error(t, h.Set(TypeHeaderKey, 42))
	assert.Error(t, h.Set(XIDHeaderKey, "nope"))
}

func TestHeaderWriteToReadFromRoundTrip(t *testing.T) {
	h := header{Version: 4, Type: TypeHello, Length: 8, XID: 7}

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	var read header
	_, err = read.ReadFrom(&buf)
	require.NoError(t, err)

	assert.Equal(t, h, read)
	assert.Equal(t, int(h.Length), read.Len())
}
