package hal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// Link errors.
var (
	// ErrClosed indicates the link was closed.
	ErrClosed = errors.New("link closed")

	// ErrReset indicates the host drove a bus reset.
	ErrReset = errors.New("bus reset")
)

// Link is one end of a bus.
type Link interface {
	// Send transmits one packet.
	Send(ctx context.Context, line wire.Line) error

	// Receive blocks until a packet arrives, the link is closed, or ctx is done.
	Receive(ctx context.Context) (wire.Line, error)

	// Close releases the link. Pending and later calls return ErrClosed.
	Close() error
}

// Resetter is implemented by host-side links that can drive a bus reset.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Frame kinds.
const (
	FrameLine  byte = 0x01 // Payload is a line
	FrameReset byte = 0x12 // Bus reset, no payload
)

// FrameHeaderSize is the size of a frame header: kind and 16-bit length.
const FrameHeaderSize = 3

// MaxFrameSymbols bounds the payload of one frame.
const MaxFrameSymbols = 0xFFFF

// MarshalFrame encodes one frame.
func MarshalFrame(kind byte, line wire.Line) ([]byte, error) {
	if len(line) > MaxFrameSymbols {
		return nil, fmt.Errorf("frame of %d symbols: %w", len(line), pkg.ErrBufferTooSmall)
	}
	buf := make([]byte, FrameHeaderSize+len(line))
	buf[0] = kind
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(line)))
	for i, s := range line {
		buf[FrameHeaderSize+i] = byte(s)
	}
	return buf, nil
}

// ParseFrameHeader returns the kind and payload length of a frame header.
func ParseFrameHeader(header []byte) (kind byte, length int, err error) {
	if len(header) < FrameHeaderSize {
		return 0, 0, fmt.Errorf("frame header: %w", pkg.ErrPacketTooShort)
	}
	kind = header[0]
	switch kind {
	case FrameLine, FrameReset:
	default:
		return 0, 0, fmt.Errorf("frame kind 0x%02X: %w", kind, pkg.ErrFraming)
	}
	return kind, int(binary.LittleEndian.Uint16(header[1:3])), nil
}

// ParseFramePayload converts a frame payload back into a line.
func ParseFramePayload(payload []byte) (wire.Line, error) {
	line := make(wire.Line, len(payload))
	for i, b := range payload {
		s := wire.Symbol(b)
		if s > wire.SE0 {
			return nil, fmt.Errorf("symbol 0x%02X: %w", b, pkg.ErrFraming)
		}
		line[i] = s
	}
	return line, nil
}
