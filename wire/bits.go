package wire

import "github.com/ardnew/usbwire/pkg"

// StuffRun is the number of consecutive ones after which a zero is stuffed.
const StuffRun = 6

// BytesToBits serializes data least-significant bit first.
func BytesToBits(data []byte) []byte {
	bits := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			bits = append(bits, (b>>i)&1)
		}
	}
	return bits
}

// BitsToBytes packs bits least-significant bit first.
// The bit count must be a multiple of eight.
func BitsToBytes(bits []byte) ([]byte, error) {
	if len(bits)%8 != 0 {
		return nil, pkg.ErrFraming
	}
	out := make([]byte, len(bits)/8)
	for i, bit := range bits {
		if bit != 0 {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out, nil
}

// Stuff inserts a zero after every run of six consecutive ones.
// A run that ends the sequence is still followed by a stuffed zero.
func Stuff(bits []byte) []byte {
	out := make([]byte, 0, len(bits)+len(bits)/StuffRun)
	run := 0
	for _, bit := range bits {
		if bit == 0 {
			out = append(out, 0)
			run = 0
			continue
		}
		out = append(out, 1)
		run++
		if run == StuffRun {
			out = append(out, 0)
			run = 0
		}
	}
	return out
}

// Unstuff removes the zero that follows every run of six ones.
// A one in that position, or a sequence ending before it, is a framing error.
func Unstuff(bits []byte) ([]byte, error) {
	out := make([]byte, 0, len(bits))
	run := 0
	for i := 0; i < len(bits); i++ {
		if run == StuffRun {
			if bits[i] != 0 {
				return nil, pkg.ErrFraming
			}
			run = 0
			continue
		}
		if bits[i] != 0 {
			out = append(out, 1)
			run++
		} else {
			out = append(out, 0)
			run = 0
		}
	}
	if run == StuffRun {
		return nil, pkg.ErrFraming
	}
	return out, nil
}

// NRZIEncode encodes bits starting from line state prev.
// A zero toggles between J and K, a one holds the previous state.
func NRZIEncode(bits []byte, prev Symbol) Line {
	out := make(Line, len(bits))
	for i, bit := range bits {
		if bit == 0 {
			prev = toggle(prev)
		}
		out[i] = prev
	}
	return out
}

// NRZIDecode decodes a line of J and K states that followed state prev.
// An SE0 is a framing error.
func NRZIDecode(line Line, prev Symbol) ([]byte, error) {
	out := make([]byte, len(line))
	for i, s := range line {
		if s != J && s != K {
			return nil, pkg.ErrFraming
		}
		if s == prev {
			out[i] = 1
		} else {
			out[i] = 0
		}
		prev = s
	}
	return out, nil
}

func toggle(s Symbol) Symbol {
	if s == J {
		return K
	}
	return J
}
