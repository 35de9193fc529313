package ofputil

import (
	"github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

func flowModRequest(f *ofp.FlowMod) (*of.Request, error) {
	body, err := of.NewReader(f)
	if err != nil {
		return nil, err
	}

	return of.NewRequest(of.TypeFlowMod, body)
}

// TableFlush builds a request that deletes every flow entry from table.
func TableFlush(table ofp.Table) (*of.Request, error) {
	return flowModRequest(&ofp.FlowMod{
		Table:    table,
		Command:  ofp.FlowDelete,
		Buffer:   ofp.NoBuffer,
		OutPort:  ofp.PortAny,
		OutGroup: ofp.GroupAny,
		Match:    ofp.Match{Type: ofp.MatchTypeXM},
	})
}

// FlowFlush builds a request that deletes flow entries matching match
// from table.
func FlowFlush(table ofp.Table, match ofp.Match) (*of.Request, error) {
	return flowModRequest(&ofp.FlowMod{
		Table:    table,
		Command:  ofp.FlowDelete,
		Buffer:   ofp.NoBuffer,
		OutPort:  ofp.PortAny,
		OutGroup: ofp.GroupAny,
		Match:    match,
	})
}

// FlowDrop builds a request that installs a match-all, action-less flow
// entry in table, effectively dropping every packet that reaches it.
func FlowDrop(table ofp.Table) (*of.Request, error) {
	return flowModRequest(&ofp.FlowMod{
		Table:   table,
		Command: ofp.FlowAdd,
		Buffer:  ofp.NoBuffer,
		Match:   ofp.Match{Type: ofp.MatchTypeXM},
	})
}
