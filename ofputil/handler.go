package ofputil

import (
	"go.uber.org/zap"

	"github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// EchoHandler returns a request handler that replies to each echo
// request with an echo reply carrying the same payload.
//
// The method accepts an optional handler, executed after a successful
// reply submission.
func EchoHandler(log *zap.SugaredLogger, h of.Handler) of.Handler {
	fn := func(rw of.ResponseWriter, r *of.Request) {
		var req ofp.EchoRequest

		if _, err := req.ReadFrom(r.Body); err != nil {
			log.Warnw("failed to read echo request", "error", err)
			return
		}

		rw.Header().Set(of.TypeHeaderKey, of.TypeEchoReply)

		reply := &ofp.EchoReply{Data: req.Data}
		n, err := reply.WriteTo(rw)
		if err != nil {
			log.Warnw("failed to write echo reply", "error", err, "bytes", n)
			return
		}

		if err := rw.WriteHeader(); err != nil {
			log.Warnw("failed to flush echo reply", "error", err)
			return
		}

		if h != nil {
			h.Serve(rw, r)
		}
	}

	return of.HandlerFunc(fn)
}
