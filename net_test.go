package of

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnSendReceiveRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	clientConn := NewConn(client)
	serverConn := NewConn(server)

	req, err := NewRequest(TypeHello, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Send(clientConn, req) }()

	received, err := serverConn.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, TypeHello, received.Header.Type)
	assert.Equal(t, int64(0), received.ContentLength)
}

func TestConnHijackRejectsFurtherReceive(t *testing.T) {
	_, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	conn := NewConn(server)

	_, _, err := conn.Hijack()
	require.NoError(t, err)

	_, _, err = conn.Hijack()
	assert.ErrorIs(t, err, ErrHijacked)

	_, err = conn.Receive()
	assert.ErrorIs(t, err, ErrHijacked)
}

func TestSendMultipleRequests(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	serverConn := NewConn(server)

	req1, err := NewRequest(TypeHello, nil)
	require.NoError(t, err)
	req2, err := NewRequest(TypeEchoRequest, nil)
	require.NoError(t, err)

	go func() {
		Send(NewConn(client), req1, req2)
	}()

	first, err := serverConn.Receive()
	require.NoError(t, err)
	assert.Equal(t, TypeHello, first.Header.Type)

	second, err := serverConn.Receive()
	require.NoError(t, err)
	assert.Equal(t, TypeEchoRequest, second.Header.Type)
}
