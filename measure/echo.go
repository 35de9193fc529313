// Package measure fuses controller↔switch echo probes, relayed LLDP
// frames, and periodic port-statistics polling into per-link delay,
// bandwidth, and loss estimates.
package measure

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/topo"
)

// DefaultEchoPeriod is the default interval between echo requests.
const DefaultEchoPeriod = 50 * time.Millisecond

// echoPayloadWidth is the fixed width of the decimal-nanosecond
// timestamp embedded in each echo request payload.
const echoPayloadWidth = 20

// EchoProbe measures controller↔switch round-trip time by embedding the
// send time in the echo request payload and comparing it against the
// local clock on reply. The embedded value is wall-clock time in Unix
// nanoseconds, not a monotonic clock reading.
type EchoProbe struct {
	log      *zap.SugaredLogger
	registry *topo.SwitchRegistry
	period   time.Duration
	runner   of.Runner

	mu    sync.RWMutex
	delay map[topo.DatapathId]time.Duration
}

// NewEchoProbe creates a probe that will query every switch known to
// registry once per period, via runner.
func NewEchoProbe(log *zap.SugaredLogger, registry *topo.SwitchRegistry, period time.Duration, runner of.Runner) *EchoProbe {
	if period <= 0 {
		period = DefaultEchoPeriod
	}
	if runner == nil {
		runner = of.SequentialRunner{}
	}

	return &EchoProbe{
		log:      log,
		registry: registry,
		period:   period,
		runner:   runner,
		delay:    make(map[topo.DatapathId]time.Duration),
	}
}

// Delay returns the most recently measured echo delay for dpid.
func (p *EchoProbe) Delay(dpid topo.DatapathId) (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d, ok := p.delay[dpid]
	return d, ok
}

// Run starts the periodic probing loop; it returns when stop is closed.
func (p *EchoProbe) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

func (p *EchoProbe) probeAll() {
	for _, e := range p.registry.List() {
		e := e
		p.runner.Run(func() { p.probe(e) })
	}
}

func (p *EchoProbe) probe(e *topo.SwitchEntry) {
	payload := []byte(fmt.Sprintf("%0*d", echoPayloadWidth, time.Now().UnixNano()))

	body, err := of.NewReader(&ofp.EchoRequest{Data: payload})
	if err != nil {
		p.log.Warnw("failed to encode echo request", "dpid", e.ID, "error", err)
		return
	}

	req, err := of.NewRequest(of.TypeEchoRequest, body)
	if err != nil {
		p.log.Warnw("failed to build echo request", "dpid", e.ID, "error", err)
		return
	}

	if err := of.Send(e.Conn, req); err != nil {
		p.log.Warnw("failed to send echo request", "dpid", e.ID, "error", err)
	}
}

// Serve implements of.Handler for of.TypeEchoReply messages, computing
// echo_delay[dpid] = now − embedded_send_time.
func (p *EchoProbe) Serve(rw of.ResponseWriter, req *of.Request) {
	id, ok := p.registry.LookupByConn(rw.Conn())
	if !ok {
		return
	}

	var reply ofp.EchoReply
	if _, err := reply.ReadFrom(req.Body); err != nil {
		p.log.Warnw("failed to parse echo reply", "error", err)
		return
	}

	sent, err := strconv.ParseInt(strings.TrimSpace(string(reply.Data)), 10, 64)
	if err != nil {
		// Not one of ours (zero-size liveness probe, or foreign
		// payload) — ignore silently.
		return
	}

	d := time.Since(time.Unix(0, sent))
	if d < 0 {
		d = 0
	}

	p.mu.Lock()
	p.delay[id] = d
	p.mu.Unlock()
}
