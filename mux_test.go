package of

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	written []byte
}

func (w *recordingWriter) Header() Header           { return nil }
func (w *recordingWriter) Write(b []byte) (int, error) { w.written = append(w.written, b...); return len(b), nil }
func (w *recordingWriter) WriteHeader() error          { return nil }
func (w *recordingWriter) Close() error                { return nil }
func (w *recordingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) { return nil, nil, nil }
func (w *recordingWriter) Conn() Conn                  { return nil }

func TestTypeMuxDispatchesByType(t *testing.T) {
	mux := NewTypeMux()

	var helloCalled, echoCalled bool
	mux.HandleFunc(TypeHello, func(rw ResponseWriter, r *Request) { helloCalled = true })
	mux.HandleFunc(TypeEchoRequest, func(rw ResponseWriter, r *Request) { echoCalled = true })

	req, err := NewRequest(TypeHello, nil)
	require.NoError(t, err)

	mux.Serve(&recordingWriter{}, req)

	assert.True(t, helloCalled)
	assert.False(t, echoCalled)
}

func TestTypeMuxUnmatchedUsesDiscardHandler(t *testing.T) {
	mux := NewTypeMux()
	mux.HandleFunc(TypeHello, func(rw ResponseWriter, r *Request) {
		t.Fatal("handler for an unregistered type should never be called")
	})

	req, err := NewRequest(TypeEchoRequest, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { mux.Serve(&recordingWriter{}, req) })
}

func TestTypeMuxDuplicateRegistrationPanics(t *testing.T) {
	mux := NewTypeMux()
	mux.Handle(TypeMultipartReply, DiscardHandler)

	assert.Panics(t, func() {
		mux.Handle(TypeMultipartReply, DiscardHandler)
	})
}

func TestTypeMuxHandleOnceFiresOnce(t *testing.T) {
	mux := NewTypeMux()

	calls := 0
	mux.HandleOnce(TypeHello, HandlerFunc(func(rw ResponseWriter, r *Request) { calls++ }))

	req, err := NewRequest(TypeHello, nil)
	require.NoError(t, err)

	mux.Serve(&recordingWriter{}, req)
	mux.Serve(&recordingWriter{}, req)

	assert.Equal(t, 1, calls)
}
