package wire

import (
	"fmt"

	"github.com/ardnew/usbwire/pkg"
)

// Encode frames packet bytes for the line: SYNC, stuffed NRZI data, EOP.
func Encode(data []byte) Line {
	body := NRZIEncode(Stuff(BytesToBits(data)), Sync[len(Sync)-1])
	out := make(Line, 0, len(Sync)+len(body)+len(EOP))
	out = append(out, Sync...)
	out = append(out, body...)
	out = append(out, EOP...)
	return out
}

// Decode recovers packet bytes from a framed line.
// Leading idle (J) states before SYNC are skipped.
func Decode(line Line) ([]byte, error) {
	for len(line) > 0 && line[0] == J {
		line = line[1:]
	}
	if len(line) < len(Sync)+len(EOP) {
		return nil, fmt.Errorf("line of %d symbols: %w", len(line), pkg.ErrFraming)
	}
	for i, s := range Sync {
		if line[i] != s {
			return nil, fmt.Errorf("sync symbol %d is %v: %w", i, line[i], pkg.ErrFraming)
		}
	}
	line = line[len(Sync):]

	end := -1
	for i, s := range line {
		if s == SE0 {
			end = i
			break
		}
	}
	if end < 0 || len(line)-end != len(EOP) {
		return nil, fmt.Errorf("missing end of packet: %w", pkg.ErrFraming)
	}
	for i, s := range EOP {
		if line[end+i] != s {
			return nil, fmt.Errorf("end of packet symbol %d is %v: %w", i, line[end+i], pkg.ErrFraming)
		}
	}

	raw, err := NRZIDecode(line[:end], Sync[len(Sync)-1])
	if err != nil {
		return nil, err
	}
	bits, err := Unstuff(raw)
	if err != nil {
		return nil, fmt.Errorf("bit stuffing: %w", err)
	}
	data, err := BitsToBytes(bits)
	if err != nil {
		return nil, fmt.Errorf("%d bits is not whole bytes: %w", len(bits), err)
	}
	pkg.LogDebug(pkg.ComponentWire, "line decoded",
		"symbols", len(line)+len(Sync),
		"bytes", len(data))
	return data, nil
}
