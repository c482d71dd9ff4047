package device

import "fmt"

// Endpoint limits.
const (
	// NumEndpoints is the number of endpoint numbers (0-15) per direction.
	NumEndpoints = 16

	// MaxEndpointAddresses is the number of endpoint addresses (0x00-0x0F OUT and 0x80-0x8F IN).
	MaxEndpointAddresses = 2 * NumEndpoints

	// DefaultMaxPacketSize0 is the default maximum packet size of endpoint 0.
	DefaultMaxPacketSize0 = 8

	// DefaultMaxPacketSize is the default maximum packet size of data endpoints.
	DefaultMaxPacketSize = 64

	// MaxAddress is the largest device address.
	MaxAddress = 0x7F
)

// Response is the policy an enabled endpoint applies to the next transaction.
type Response uint8

// Endpoint responses. The values are also the register encoding.
const (
	ResponseACK   Response = 0 // Accept or supply data
	ResponseNAK   Response = 1 // Busy, host retries
	ResponseStall Response = 2 // Halted until cleared
)

// String returns the handshake name of the response.
func (r Response) String() string {
	switch r {
	case ResponseACK:
		return "ACK"
	case ResponseNAK:
		return "NAK"
	case ResponseStall:
		return "STALL"
	default:
		return fmt.Sprintf("Response(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the defined responses.
func (r Response) Valid() bool {
	return r <= ResponseStall
}

// ControlState is the state of the control transfer coordinator.
type ControlState uint8

// Control transfer states.
const (
	ControlAwaitSetup  ControlState = 0 // Idle, waiting for SETUP
	ControlDataStage   ControlState = 1 // Moving wLength bytes in the request direction
	ControlStatusStage ControlState = 2 // Waiting for the zero-length status handshake
)

// String returns a human-readable state description.
func (s ControlState) String() string {
	switch s {
	case ControlAwaitSetup:
		return "AwaitSetup"
	case ControlDataStage:
		return "DataStage"
	case ControlStatusStage:
		return "StatusStage"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
