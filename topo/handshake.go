package topo

import (
	of "github.com/netrack/flowctl"
	"github.com/netrack/flowctl/ofp"
)

// ofp13VersionBit advertises support for OpenFlow 1.3 only (bit 4, per the
// wire-version-to-bitmap-bit convention of the protocol).
const ofp13VersionBit = 1 << 4

// HandshakeHandler answers the switch's opening of.TypeHello with a Hello
// of its own, then requests SwitchFeatures so SwitchRegistry.Serve can
// enter the datapath into the registry.
type HandshakeHandler struct{}

// NewHandshakeHandler returns a ready-to-register HandshakeHandler.
func NewHandshakeHandler() *HandshakeHandler {
	return &HandshakeHandler{}
}

// Serve implements of.Handler. Registered against of.TypeHello.
func (h *HandshakeHandler) Serve(rw of.ResponseWriter, req *of.Request) {
	hello := &ofp.Hello{
		Elements: ofp.HelloElems{
			&ofp.HelloElemVersionBitmap{Bitmaps: []uint32{ofp13VersionBit}},
		},
	}

	rw.Header().Set(of.TypeHeaderKey, of.TypeHello)

	if _, err := hello.WriteTo(rw); err != nil {
		return
	}

	if err := rw.WriteHeader(); err != nil {
		return
	}

	featReq, err := of.NewRequest(of.TypeFeaturesRequest, nil)
	if err != nil {
		return
	}

	of.Send(rw.Conn(), featReq)

	// This deployment runs a single controller instance, so it always
	// asserts the master role rather than negotiating equal/slave with
	// peers.
	roleBody, err := of.NewReader(&ofp.RoleRequest{Role: ofp.ControllerRoleMaster})
	if err != nil {
		return
	}

	roleReq, err := of.NewRequest(of.TypeRoleRequest, roleBody)
	if err != nil {
		return
	}

	of.Send(rw.Conn(), roleReq)
}
