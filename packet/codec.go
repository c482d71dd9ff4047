package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// Parse decodes packet bytes (without SYNC or EOP).
//
// Parse fails with [pkg.ErrPID] when the PID check nibble is wrong, with
// [pkg.ErrCRC] when a CRC does not match, with [pkg.ErrPacketTooShort] or
// [pkg.ErrBabble] on a bad length, and with [pkg.ErrUnexpectedPacket] for
// PIDs a full-speed device never accepts.
func Parse(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, pkg.ErrPacketTooShort
	}
	pid, ok := PIDFromByte(data[0])
	if !ok {
		return nil, fmt.Errorf("PID byte 0x%02X: %w", data[0], pkg.ErrPID)
	}

	switch pid {
	case PIDOut, PIDIn, PIDSetup, PIDSOF:
		field, err := parseField(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pid, err)
		}
		if pid == PIDSOF {
			return &SOF{Frame: field}, nil
		}
		return &Token{
			Type:     pid,
			Address:  uint8(field & 0x7F),
			Endpoint: uint8(field>>7) & 0x0F,
		}, nil

	case PIDData0, PIDData1:
		if len(data) < DataOverhead {
			return nil, fmt.Errorf("%s: %w", pid, pkg.ErrPacketTooShort)
		}
		payload := data[1 : len(data)-2]
		if len(payload) > MaxPayloadSize {
			return nil, fmt.Errorf("%s of %d bytes: %w", pid, len(payload), pkg.ErrBabble)
		}
		want := binary.LittleEndian.Uint16(data[len(data)-2:])
		if got := CRC16(payload); got != want {
			return nil, fmt.Errorf("%s CRC16 0x%04X, computed 0x%04X: %w", pid, want, got, pkg.ErrCRC)
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return &Data{Type: pid, Payload: out}, nil

	case PIDAck, PIDNak, PIDStall:
		if len(data) != HandshakeSize {
			return nil, fmt.Errorf("%s of %d bytes: %w", pid, len(data), pkg.ErrBabble)
		}
		switch pid {
		case PIDAck:
			return Ack, nil
		case PIDNak:
			return Nak, nil
		default:
			return Stall, nil
		}

	default:
		return nil, fmt.Errorf("%s: %w", pid, pkg.ErrUnexpectedPacket)
	}
}

// parseField validates the length and CRC5 of a token or SOF.
func parseField(data []byte) (uint16, error) {
	if len(data) < TokenSize {
		return 0, pkg.ErrPacketTooShort
	}
	if len(data) > TokenSize {
		return 0, pkg.ErrBabble
	}
	field := uint16(data[1]) | uint16(data[2]&0x07)<<8
	want := data[2] >> 3
	if got := CRC5(field, 11); got != want {
		return 0, fmt.Errorf("CRC5 0x%02X, computed 0x%02X: %w", want, got, pkg.ErrCRC)
	}
	return field, nil
}

// Encode frames p for the line.
func Encode(p Packet) wire.Line {
	return wire.Encode(Bytes(p))
}

// Decode recovers a packet from a framed line.
func Decode(line wire.Line) (Packet, error) {
	data, err := wire.Decode(line)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		pkg.LogDebug(pkg.ComponentPacket, "packet rejected",
			"bytes", fmt.Sprintf("% X", data),
			"error", err)
		return nil, err
	}
	return p, nil
}
