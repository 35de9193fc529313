package topo

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	of "github.com/netrack/flowctl"
)

type recordingHeader struct {
	typ interface{}
}

func (h *recordingHeader) Set(k of.HeaderKey, v interface{}) error {
	if k == of.TypeHeaderKey {
		h.typ = v
	}
	return nil
}

func (h *recordingHeader) Get(k of.HeaderKey) interface{} {
	if k == of.TypeHeaderKey {
		return h.typ
	}
	return nil
}

func (h *recordingHeader) Len() int { return 0 }

func (h *recordingHeader) WriteTo(w io.Writer) (n int64, err error) {
	return 0, nil
}

func (h *recordingHeader) ReadFrom(r io.Reader) (n int64, err error) {
	return 0, nil
}

type recordingResponseWriter struct {
	header recordingHeader
	body   bytes.Buffer
	conn   of.Conn
}

func (rw *recordingResponseWriter) Header() of.Header           { return &rw.header }
func (rw *recordingResponseWriter) Write(b []byte) (int, error) { return rw.body.Write(b) }
func (rw *recordingResponseWriter) WriteHeader() error          { return nil }
func (rw *recordingResponseWriter) Close() error                { return nil }

func (rw *recordingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func (rw *recordingResponseWriter) Conn() of.Conn { return rw.conn }

func TestHandshakeHandlerRepliesHelloAndRequestsFeatures(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	conn := of.NewConn(server)
	rw := &recordingResponseWriter{conn: conn}

	req := &of.Request{Body: bytes.NewReader(nil)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h := NewHandshakeHandler()
		h.Serve(rw, req)
	}()

	clientConn := of.NewConn(client)
	featReq, err := clientConn.Receive()
	require.NoError(t, err)
	assert.Equal(t, of.TypeFeaturesRequest, featReq.Header.Type)

	roleReq, err := clientConn.Receive()
	require.NoError(t, err)
	assert.Equal(t, of.TypeRoleRequest, roleReq.Header.Type)

	assert.Equal(t, of.TypeHello, rw.header.typ)
	<-done
}
