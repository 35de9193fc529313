package of

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServeDispatchesToHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})

	mux := NewTypeMux()
	mux.HandleFunc(TypeHello, func(rw ResponseWriter, r *Request) {
		rw.Header().Set(VersionHeaderKey, uint8(4))
		rw.Header().Set(TypeHeaderKey, TypeEchoReply)
		rw.WriteHeader()
		close(done)
	})

	srv := &Server{Handler: mux}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	clientConn := NewConn(client)
	req, err := NewRequest(TypeHello, nil)
	require.NoError(t, err)
	require.NoError(t, Send(clientConn, req))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	resp, err := clientConn.Receive()
	require.NoError(t, err)
	assert.Equal(t, TypeEchoReply, resp.Header.Type)
}

func TestResponseWriteHeaderFlushesBufferedWrites(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	conn := NewConn(server)
	resp := &response{conn: conn}

	resp.Header().Set(VersionHeaderKey, uint8(4))
	resp.Header().Set(TypeHeaderKey, TypeFeaturesReply)

	_, err := resp.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- resp.WriteHeader() }()

	clientConn := NewConn(client)
	received, err := clientConn.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, TypeFeaturesReply, received.Header.Type)
	assert.Equal(t, int64(4), received.ContentLength)
}

func TestResponseConnReturnsUnderlyingConn(t *testing.T) {
	_, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	conn := NewConn(server)
	resp := &response{conn: conn}

	assert.Equal(t, Conn(conn), resp.Conn())
}
