package measure

import (
	"time"

	"go.uber.org/zap"

	"github.com/netrack/flowctl/topo"
)

// DelayFuser combines EchoProbe and LLDPDelayProbe measurements into a
// per-link one-way delay and writes it onto the topology graph.
type DelayFuser struct {
	log    *zap.SugaredLogger
	echo   *EchoProbe
	lldp   *LLDPDelayProbe
	tracker *topo.TopologyTracker
}

// NewDelayFuser creates a fuser reading from echo and lldp and writing
// annotations onto tracker.
func NewDelayFuser(log *zap.SugaredLogger, echo *EchoProbe, lldp *LLDPDelayProbe, tracker *topo.TopologyTracker) *DelayFuser {
	return &DelayFuser{log: log, echo: echo, lldp: lldp, tracker: tracker}
}

// Delay returns the fused one-way delay for edge (a,b). If either the
// LLDP or echo component is missing, it reports zero — "unknown /
// best-case" — and the caller must not route purely on it until every
// edge has a real value.
func (f *DelayFuser) Delay(a, b topo.DatapathId) time.Duration {
	lab, okab := f.lldp.Delay(a, b)
	lba, okba := f.lldp.Delay(b, a)
	ea, okea := f.echo.Delay(a)
	eb, okeb := f.echo.Delay(b)

	if !okab || !okba || !okea || !okeb {
		return 0
	}

	fused := (lab + lba - ea - eb) / 2
	if fused < 0 {
		return 0
	}
	return fused
}

// Refresh recomputes and writes the fused delay for every known link.
func (f *DelayFuser) Refresh() {
	for _, l := range f.tracker.Links() {
		d := f.Delay(l.Src, l.Dst)

		prev, _ := f.tracker.Annotation(l.Src, l.Dst)
		prev.Delay = d
		f.tracker.Annotate(l.Src, l.Dst, prev)
	}
}
