package packet

import (
	"encoding/binary"
	"fmt"
)

// Size limits.
const (
	// MaxPayloadSize is the largest full-speed data payload (isochronous).
	MaxPayloadSize = 1023

	// TokenSize is the size of a token or SOF packet in bytes.
	TokenSize = 3

	// HandshakeSize is the size of a handshake packet in bytes.
	HandshakeSize = 1

	// DataOverhead is the PID plus CRC16 bytes around a data payload.
	DataOverhead = 3
)

// Packet is one of *Token, *Data, *Handshake, or *SOF.
type Packet interface {
	// PID returns the packet identifier.
	PID() PID

	// Size returns the encoded size in bytes.
	Size() int

	// MarshalTo writes the packet bytes, including CRC, to buf.
	// Returns the number of bytes written, or 0 if buf is too small.
	MarshalTo(buf []byte) int

	fmt.Stringer
}

// Token addresses an endpoint for the transaction that follows.
type Token struct {
	Type     PID   // PIDOut, PIDIn, or PIDSetup
	Address  uint8 // Device address (0-127)
	Endpoint uint8 // Endpoint number (0-15)
}

// NewToken returns a token of the given type.
func NewToken(pid PID, address, endpoint uint8) *Token {
	return &Token{Type: pid, Address: address & 0x7F, Endpoint: endpoint & 0x0F}
}

// PID returns the token type.
func (t *Token) PID() PID { return t.Type }

// Size returns TokenSize.
func (t *Token) Size() int { return TokenSize }

// field returns the 11-bit address/endpoint field.
func (t *Token) field() uint16 {
	return uint16(t.Address&0x7F) | uint16(t.Endpoint&0x0F)<<7
}

// MarshalTo writes the token to buf.
func (t *Token) MarshalTo(buf []byte) int {
	return marshalField(buf, t.Type, t.field())
}

// String returns a human-readable representation.
func (t *Token) String() string {
	return fmt.Sprintf("%s addr=%d ep=%d", t.Type, t.Address, t.Endpoint)
}

// SOF marks the start of a 1 ms frame.
type SOF struct {
	Frame uint16 // Frame number (0-2047)
}

// PID returns PIDSOF.
func (s *SOF) PID() PID { return PIDSOF }

// Size returns TokenSize.
func (s *SOF) Size() int { return TokenSize }

// MarshalTo writes the SOF packet to buf.
func (s *SOF) MarshalTo(buf []byte) int {
	return marshalField(buf, PIDSOF, s.Frame&0x7FF)
}

// String returns a human-readable representation.
func (s *SOF) String() string {
	return fmt.Sprintf("SOF frame=%d", s.Frame)
}

// Data carries a payload.
type Data struct {
	Type    PID // PIDData0 or PIDData1
	Payload []byte
}

// NewData returns a data packet carrying payload with the given toggle.
func NewData(toggle Toggle, payload []byte) *Data {
	return &Data{Type: toggle.PID(), Payload: payload}
}

// PID returns the data PID.
func (d *Data) PID() PID { return d.Type }

// Toggle returns the toggle carried by the PID.
func (d *Data) Toggle() Toggle {
	t, _ := ToggleOf(d.Type)
	return t
}

// Size returns the encoded size.
func (d *Data) Size() int { return len(d.Payload) + DataOverhead }

// MarshalTo writes the data packet to buf.
func (d *Data) MarshalTo(buf []byte) int {
	n := d.Size()
	if len(buf) < n {
		return 0
	}
	buf[0] = d.Type.Byte()
	copy(buf[1:], d.Payload)
	binary.LittleEndian.PutUint16(buf[1+len(d.Payload):], CRC16(d.Payload))
	return n
}

// String returns a human-readable representation.
func (d *Data) String() string {
	return fmt.Sprintf("%s [% X]", d.Type, d.Payload)
}

// Handshake reports transaction status.
type Handshake struct {
	Type PID // PIDAck, PIDNak, or PIDStall
}

// Handshake packets are immutable, so these are shared.
var (
	Ack   = &Handshake{Type: PIDAck}
	Nak   = &Handshake{Type: PIDNak}
	Stall = &Handshake{Type: PIDStall}
)

// PID returns the handshake type.
func (h *Handshake) PID() PID { return h.Type }

// Size returns HandshakeSize.
func (h *Handshake) Size() int { return HandshakeSize }

// MarshalTo writes the handshake to buf.
func (h *Handshake) MarshalTo(buf []byte) int {
	if len(buf) < HandshakeSize {
		return 0
	}
	buf[0] = h.Type.Byte()
	return HandshakeSize
}

// String returns the handshake mnemonic.
func (h *Handshake) String() string {
	return h.Type.String()
}

// marshalField writes PID, an 11-bit field, and its CRC5.
func marshalField(buf []byte, pid PID, field uint16) int {
	if len(buf) < TokenSize {
		return 0
	}
	crc := CRC5(field, 11)
	buf[0] = pid.Byte()
	buf[1] = byte(field)
	buf[2] = byte(field>>8)&0x07 | crc<<3
	return TokenSize
}

// Bytes allocates and returns the encoded packet.
func Bytes(p Packet) []byte {
	buf := make([]byte, p.Size())
	return buf[:p.MarshalTo(buf)]
}
