package device

import (
	"fmt"

	"github.com/ardnew/usbwire/packet"
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// EndpointAddress composes an endpoint address from a number and direction.
func EndpointAddress(number uint8, in bool) uint8 {
	if in {
		return number&0x0F | EndpointDirectionIn
	}
	return number & 0x0F
}

// endpointIndex converts an endpoint address to an array index.
func endpointIndex(addr uint8) int {
	// OUT endpoints: 0x00-0x0F -> 0-15
	// IN endpoints: 0x80-0x8F -> 16-31
	if addr&0x80 != 0 {
		return int(addr&0x0F) + NumEndpoints
	}
	return int(addr & 0x0F)
}

// validAddress reports whether addr names an endpoint (no reserved bits set).
func validAddress(addr uint8) bool {
	return addr&0x70 == 0
}

// Endpoint is the mutable state of one endpoint address. All access is
// serialized by the owning Device.
type Endpoint struct {
	address       uint8
	maxPacketSize uint16

	enabled  bool
	response Response // ACK or NAK policy, never STALL
	halted   bool     // STALL layered over the policy
	toggle   packet.Toggle
	buffer   []byte
	pending  bool
}

func newEndpoint(address uint8, maxPacketSize uint16) *Endpoint {
	ep := &Endpoint{address: address, maxPacketSize: maxPacketSize}
	ep.reset()
	return ep
}

// reset restores the power-on state. Only endpoint 0 starts enabled.
func (e *Endpoint) reset() {
	e.enabled = e.Number() == 0
	e.response = ResponseNAK
	e.halted = false
	e.toggle = packet.Data0
	e.buffer = nil
	e.pending = false
}

// Address returns the endpoint address including direction.
func (e *Endpoint) Address() uint8 { return e.address }

// Number returns the endpoint number (0-15).
func (e *Endpoint) Number() uint8 { return e.address & 0x0F }

// IsIn returns true if this is an IN endpoint (device to host).
func (e *Endpoint) IsIn() bool { return e.address&EndpointDirectionIn != 0 }

// IsControl returns true for endpoint 0.
func (e *Endpoint) IsControl() bool { return e.Number() == 0 }

// MaxPacketSize returns the maximum payload per data packet.
func (e *Endpoint) MaxPacketSize() uint16 { return e.maxPacketSize }

// effectiveResponse is the handshake the next transaction would produce.
func (e *Endpoint) effectiveResponse() Response {
	if e.halted {
		return ResponseStall
	}
	return e.response
}

func (e *Endpoint) setResponse(r Response) {
	if r == ResponseStall {
		e.halted = true
		return
	}
	e.response = r
	e.halted = false
}

func (e *Endpoint) disable() {
	e.enabled = false
	e.buffer = nil
	e.pending = false
}

func (e *Endpoint) setData(payload []byte) {
	e.buffer = append(make([]byte, 0, len(payload)), payload...)
	e.pending = true
}

func (e *Endpoint) clearPending() {
	e.buffer = nil
	e.pending = false
}

// arm queues payload and accepts the next transaction.
func (e *Endpoint) arm(payload []byte) {
	e.setData(payload)
	e.response = ResponseACK
}

// armReceive accepts the next OUT transaction into an empty buffer.
func (e *Endpoint) armReceive() {
	e.clearPending()
	e.response = ResponseACK
}

func (e *Endpoint) snapshot() EndpointState {
	s := EndpointState{
		Address:  e.address,
		Enabled:  e.enabled,
		Response: e.effectiveResponse(),
		Toggle:   e.toggle,
		Pending:  e.pending,
	}
	if e.buffer != nil {
		s.Buffer = append([]byte{}, e.buffer...)
	}
	return s
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("0x%02X", e.address)
}

// EndpointState is a copy of one endpoint's state.
type EndpointState struct {
	Address  uint8
	Enabled  bool
	Response Response      // STALL when halted
	Toggle   packet.Toggle // Toggle of the last completed data packet
	Buffer   []byte
	Pending  bool
}

// DirectionName returns a human-readable direction name.
func DirectionName(addr uint8) string {
	if addr&EndpointDirectionIn != 0 {
		return "IN"
	}
	return "OUT"
}
