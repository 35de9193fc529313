package measure

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// multipartBody composes a MultipartReply header with its body, mirroring
// how ofp.NewMultipartRequest pairs a header with a typed payload on the
// request side.
type multipartBody struct {
	reply *ofp.MultipartReply
	body  io.WriterTo
}

func (b multipartBody) WriteTo(w io.Writer) (int64, error) {
	n, err := b.reply.WriteTo(w)
	if err != nil {
		return n, err
	}
	nn, err := b.body.WriteTo(w)
	return n + nn, err
}

func TestPortStatsCollectorServeAppliesStats(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry, _ := newTestTracker(t)

	conn := newTestConn(t)
	registry.Enter(1, conn)

	collector := NewPortStatsCollector(log, registry, nil, time.Hour, 5)

	stats := ofp.PortStatsList{{PortNo: 3, RxBytes: 1000, TxBytes: 2000, DurationSec: 1}}

	body, err := of.NewReader(multipartBody{
		reply: &ofp.MultipartReply{Type: ofp.MultipartTypePortStats},
		body:  &stats,
	})
	require.NoError(t, err)

	req := &of.Request{Body: body}
	rw := &recordingResponseWriter{conn: conn}

	collector.Serve(rw, req)

	hist := collector.History(1, 3)
	require.Len(t, hist, 1)
	assert.Equal(t, uint64(1000), hist[0].RxBytes)
}
