// Package topo maintains the live switch-and-link topology: the set of
// connected datapaths, their ports, and the directed graph built from
// discovered links, together with a stability detector gating the
// measurement engine.
package topo

import (
	"sync"

	"go.uber.org/zap"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
	"github.com/netrack/flowctl/ofputil"
)

// DatapathId identifies a single OpenFlow switch instance.
type DatapathId uint64

// PortNo is a switch port number; PortLocal is the switch's local port.
type PortNo = ofp.PortNo

const PortLocal = ofp.PortLocal

// SwitchEntry records a live datapath: its channel handle and the set
// of ports it currently reports.
type SwitchEntry struct {
	ID    DatapathId
	Conn  of.Conn
	Ports map[PortNo]struct{}
}

func newSwitchEntry(id DatapathId, conn of.Conn) *SwitchEntry {
	return &SwitchEntry{ID: id, Conn: conn, Ports: make(map[PortNo]struct{})}
}

// SwitchRegistry tracks connected datapaths and fires enter/leave
// lifecycle events. It also installs the table-miss flow entry on
// handshake, per the feature-reply handler below.
type SwitchRegistry struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	switches map[DatapathId]*SwitchEntry
	byConn   map[of.Conn]DatapathId

	onEnter []func(*SwitchEntry)
	onLeave []func(DatapathId)
}

// NewSwitchRegistry creates an empty registry.
func NewSwitchRegistry(log *zap.SugaredLogger) *SwitchRegistry {
	return &SwitchRegistry{
		log:      log,
		switches: make(map[DatapathId]*SwitchEntry),
		byConn:   make(map[of.Conn]DatapathId),
	}
}

// LookupByConn resolves the datapath owning conn, used by periodic
// collectors that only know the connection a reply arrived on.
func (r *SwitchRegistry) LookupByConn(conn of.Conn) (DatapathId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byConn[conn]
	return id, ok
}

// OnEnter registers a callback invoked whenever a switch enters the
// MAIN dispatch phase.
func (r *SwitchRegistry) OnEnter(fn func(*SwitchEntry)) {
	r.onEnter = append(r.onEnter, fn)
}

// OnLeave registers a callback invoked whenever a switch is marked dead.
func (r *SwitchRegistry) OnLeave(fn func(DatapathId)) {
	r.onLeave = append(r.onLeave, fn)
}

// Get returns the switch entry for id, if connected.
func (r *SwitchRegistry) Get(id DatapathId) (*SwitchEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.switches[id]
	return e, ok
}

// List returns every currently connected switch.
func (r *SwitchRegistry) List() []*SwitchEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*SwitchEntry, 0, len(r.switches))
	for _, e := range r.switches {
		entries = append(entries, e)
	}
	return entries
}

// Enter registers a newly connected datapath and fires the enter
// callbacks.
func (r *SwitchRegistry) Enter(id DatapathId, conn of.Conn) *SwitchEntry {
	r.mu.Lock()
	e := newSwitchEntry(id, conn)
	r.switches[id] = e
	r.byConn[conn] = id
	r.mu.Unlock()

	r.log.Infow("switch entered", "dpid", id)

	for _, fn := range r.onEnter {
		fn(e)
	}

	return e
}

// Leave removes a datapath and fires the leave callbacks.
func (r *SwitchRegistry) Leave(id DatapathId) {
	r.mu.Lock()
	e, ok := r.switches[id]
	delete(r.switches, id)
	if ok {
		delete(r.byConn, e.Conn)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.log.Infow("switch left", "dpid", id)

	for _, fn := range r.onLeave {
		fn(id)
	}
}

// Serve implements of.Handler. Registered against of.TypeFeaturesReply,
// it enters the reporting switch into the registry and installs the
// table-miss flow entry (priority 0, match-any, output CONTROLLER).
func (r *SwitchRegistry) Serve(rw of.ResponseWriter, req *of.Request) {
	var feat ofp.SwitchFeatures
	if _, err := feat.ReadFrom(req.Body); err != nil {
		r.log.Warnw("failed to parse features reply", "error", err)
		return
	}

	id := DatapathId(feat.DatapathID)
	entry := r.Enter(id, rw.Conn())

	if err := installTableMiss(entry); err != nil {
		r.log.Warnw("failed to install table-miss flow", "dpid", id, "error", err)
	}
}

func installTableMiss(e *SwitchEntry) error {
	fmod := &ofp.FlowMod{
		Command:  ofp.FlowAdd,
		Priority: 0,
		Buffer:   ofp.NoBuffer,
		Match:    ofp.Match{Type: ofp.MatchTypeXM},
		Instructions: ofputil.ActionsApply(&ofp.ActionOutput{
			Port:   ofp.PortController,
			MaxLen: ofp.ContentLenNoBuffer,
		}),
	}

	body, err := of.NewReader(fmod)
	if err != nil {
		return err
	}

	req, err := of.NewRequest(of.TypeFlowMod, body)
	if err != nil {
		return err
	}

	return of.Send(e.Conn, req)
}
