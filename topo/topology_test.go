package topo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestTopologyTrackerAddNodeLink(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	tracker := NewTopologyTracker(log, registry, time.Hour)

	tracker.AddNode(1)
	tracker.AddNode(2)
	tracker.AddLink(Link{Src: 1, SrcPort: 1, Dst: 2, DstPort: 1})

	assert.ElementsMatch(t, []DatapathId{1, 2}, tracker.Nodes())
	assert.Len(t, tracker.Links(), 2) // both directions inserted

	neighbors := tracker.Neighbors(1)
	assert.Len(t, neighbors, 1)
	assert.Equal(t, DatapathId(2), neighbors[0].Dst)
}

func TestTopologyTrackerRemoveNodeDropsLinks(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	tracker := NewTopologyTracker(log, registry, time.Hour)

	tracker.AddNode(1)
	tracker.AddNode(2)
	tracker.AddLink(Link{Src: 1, SrcPort: 1, Dst: 2, DstPort: 1})

	tracker.RemoveNode(2)

	assert.Empty(t, tracker.Links())
	assert.ElementsMatch(t, []DatapathId{1}, tracker.Nodes())
}

func TestTopologyTrackerBecomesStableAfterDwell(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	tracker := NewTopologyTracker(log, registry, 20*time.Millisecond)

	stableCh := make(chan struct{}, 1)
	tracker.OnStable(func() { stableCh <- struct{}{} })

	tracker.AddNode(1)

	select {
	case <-stableCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for graph to stabilize")
	}

	assert.True(t, tracker.Stable())
}

func TestTopologyTrackerRedundantMutationDoesNotResetStabilityClock(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	tracker := NewTopologyTracker(log, registry, time.Hour)

	cur := time.Now()
	tracker.now = func() time.Time { return cur }

	tracker.AddNode(1)
	tracker.AddLink(Link{Src: 1, SrcPort: 1, Dst: 1, DstPort: 1})
	first := tracker.firstUnchanged

	cur = cur.Add(time.Minute)
	tracker.AddNode(1)                                            // already known, no-op membership change
	tracker.AddLink(Link{Src: 1, SrcPort: 1, Dst: 1, DstPort: 1}) // identical link re-added
	assert.Equal(t, first, tracker.firstUnchanged)

	cur = cur.Add(time.Minute)
	tracker.AddNode(2)
	assert.NotEqual(t, first, tracker.firstUnchanged)
}

func TestTopologyTrackerAnnotate(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	tracker := NewTopologyTracker(log, registry, time.Hour)

	tracker.AddNode(1)
	tracker.AddNode(2)
	tracker.AddLink(Link{Src: 1, SrcPort: 1, Dst: 2, DstPort: 1})

	tracker.Annotate(1, 2, EdgeAnnotation{Delay: 5 * time.Millisecond})

	ann, ok := tracker.Annotation(1, 2)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, ann.Delay)

	// Annotating a nonexistent edge is a no-op.
	tracker.Annotate(2, 99, EdgeAnnotation{Delay: time.Second})
	_, ok = tracker.Annotation(2, 99)
	assert.False(t, ok)
}
