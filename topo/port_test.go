package topo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

func TestPortCatalogApplyPortDescription(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	catalog := NewPortCatalog(log, NewSwitchRegistry(log))

	catalog.ApplyPortDescription(1, ofp.Ports{
		{PortNo: 3, Config: 0, State: 0, CurrSpeed: 1000, MaxSpeed: 10000},
	})

	d, ok := catalog.Get(1, 3)
	require.True(t, ok)
	assert.Equal(t, AdminUp, d.AdminState)
	assert.Equal(t, LinkUp, d.LinkState)
	assert.Equal(t, uint32(1000), d.CurrSpeed)

	ports := catalog.Ports(1)
	assert.Len(t, ports, 1)
}

func TestPortCatalogApplyPortStatusZeroesSpeedWhenDown(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	catalog := NewPortCatalog(log, NewSwitchRegistry(log))

	catalog.applyPortStatus(1, &ofp.PortStatus{
		Port: ofp.Port{PortNo: 3, State: ofp.PortStateLinkDown, CurrSpeed: 1000, MaxSpeed: 10000},
	})

	d, ok := catalog.Get(1, 3)
	require.True(t, ok)
	assert.Equal(t, LinkDown, d.LinkState)
	assert.Equal(t, uint32(0), d.CurrSpeed)
}

func TestPortCatalogApplyPortStatusBlockedAlsoZeroesSpeed(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	catalog := NewPortCatalog(log, NewSwitchRegistry(log))

	catalog.applyPortStatus(1, &ofp.PortStatus{
		Port: ofp.Port{PortNo: 3, State: ofp.PortStateBlocked, CurrSpeed: 1000},
	})

	d, ok := catalog.Get(1, 3)
	require.True(t, ok)
	assert.Equal(t, LinkBlocked, d.LinkState)
	assert.Equal(t, uint32(0), d.CurrSpeed)
}

func TestPortCatalogServeResolvesDatapathFromConn(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	registry := NewSwitchRegistry(log)
	catalog := NewPortCatalog(log, registry)

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	conn := of.NewConn(server)
	registry.Enter(7, conn)

	status := &ofp.PortStatus{Port: ofp.Port{PortNo: 2, State: 0, CurrSpeed: 500, MaxSpeed: 1000}}
	body, err := of.NewReader(status)
	require.NoError(t, err)

	req := &of.Request{Body: body}
	rw := &recordingResponseWriter{conn: conn}

	catalog.Serve(rw, req)

	d, ok := catalog.Get(7, 2)
	require.True(t, ok)
	assert.Equal(t, uint32(500), d.CurrSpeed)
}
