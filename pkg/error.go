package pkg

import "errors"

// Line and packet decoding errors. The device treats all of these as a
// silently dropped packet.
var (
	// ErrFraming indicates a bad SYNC, stuff bit, or EOP on the line.
	ErrFraming = errors.New("framing error")

	// ErrCRC indicates a CRC5 or CRC16 mismatch.
	ErrCRC = errors.New("CRC error")

	// ErrPID indicates a PID whose check nibble is not the complement of its type nibble.
	ErrPID = errors.New("PID check error")

	// ErrPacketTooShort indicates a packet shorter than its PID requires.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrBabble indicates a data payload longer than permitted.
	ErrBabble = errors.New("babble")

	// ErrUnexpectedPacket indicates a well-formed packet that is not valid here.
	ErrUnexpectedPacket = errors.New("unexpected packet")
)

// Protocol errors.
var (
	// ErrProtocolSequence indicates a token or data packet out of sequence.
	ErrProtocolSequence = errors.New("protocol sequence error")

	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (endpoint busy).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates no response within the turnaround window.
	ErrTimeout = errors.New("bus turnaround timeout")

	// ErrDataMismatch indicates a data packet that differs from the expected one.
	ErrDataMismatch = errors.New("data mismatch")
)

// Device and register interface errors.
var (
	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidRequest indicates an invalid or unsupported control request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotHandled indicates a request handler declined a control request.
	ErrNotHandled = errors.New("request not handled")

	// ErrInvalidRegister indicates an unmapped register address.
	ErrInvalidRegister = errors.New("invalid register")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrDescriptorTooShort indicates descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates descriptor data of an unexpected type.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the stack is not running.
	ErrNotRunning = errors.New("not running")

	// ErrBusy indicates an endpoint buffer that still holds unconsumed data.
	ErrBusy = errors.New("endpoint busy")
)

// Status is the outcome of one transaction as observed by the host.
type Status int

// Transaction status values.
const (
	StatusAck     Status = iota // Handshake ACK (or data received)
	StatusNAK                   // Handshake NAK
	StatusStall                 // Handshake STALL
	StatusTimeout               // No response
	StatusError                 // Undecodable response
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusAck:
		return "ack"
	case StatusNAK:
		return "nak"
	case StatusStall:
		return "stall"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the status.
func (s Status) Error() error {
	switch s {
	case StatusAck:
		return nil
	case StatusNAK:
		return ErrNAK
	case StatusStall:
		return ErrStall
	case StatusTimeout:
		return ErrTimeout
	default:
		return ErrProtocolSequence
	}
}
