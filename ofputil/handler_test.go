package ofputil

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// recordingHeader is a minimal of.Header double that only tracks the
// message type set on it.
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

// recordingResponseWriter is a minimal of.ResponseWriter double for
// exercising handlers without a real connection.
type recordingResponseWriter struct {
	header recordingHeader
	body   bytes.Buffer
}

func (rw *recordingResponseWriter) Header() of.Header          { return &rw.header }
func (rw *recordingResponseWriter) Write(b []byte) (int, error) { return rw.body.Write(b) }
func (rw *recordingResponseWriter) WriteHeader() error          { return nil }
func (rw *recordingResponseWriter) Close() error                { return nil }

func (rw *recordingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func (rw *recordingResponseWriter) Conn() of.Conn { return nil }

func TestEchoHandler(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	echo := &ofp.EchoRequest{Data: []byte("1234567890")}
	body, err := of.NewReader(echo)
	require.NoError(t, err)

	req := &of.Request{Body: body}
	rw := &recordingResponseWriter{}

	h := EchoHandler(log, nil)
	h.Serve(rw, req)

	assert.Equal(t, of.TypeEchoReply, rw.header.typ)
	assert.Equal(t, []byte("1234567890"), rw.body.Bytes())
}
