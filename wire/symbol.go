package wire

import (
	"fmt"
	"strings"

	"github.com/ardnew/usbwire/pkg"
)

// Symbol is one bit period of line state.
type Symbol uint8

// Line states.
const (
	J   Symbol = iota // Differential 1 (idle for full speed)
	K                 // Differential 0
	SE0               // Single-ended zero
)

// String returns the single character used in textual traces.
func (s Symbol) String() string {
	switch s {
	case J:
		return "J"
	case K:
		return "K"
	case SE0:
		return "0"
	default:
		return fmt.Sprintf("?%d", uint8(s))
	}
}

// Line is a sequence of line states.
type Line []Symbol

// String renders the line as a compact J/K/0 string.
func (l Line) String() string {
	var sb strings.Builder
	sb.Grow(len(l))
	for _, s := range l {
		sb.WriteString(s.String())
	}
	return sb.String()
}

// ParseLine parses the textual form produced by [Line.String].
// Whitespace is ignored; '_' is accepted as an alias for SE0.
func ParseLine(s string) (Line, error) {
	out := make(Line, 0, len(s))
	for i, c := range s {
		switch c {
		case 'J', 'j':
			out = append(out, J)
		case 'K', 'k':
			out = append(out, K)
		case '0', '_':
			out = append(out, SE0)
		case ' ', '\t', '\n', '\r':
		default:
			return nil, fmt.Errorf("line symbol %q at %d: %w", c, i, pkg.ErrInvalidParameter)
		}
	}
	return out, nil
}

// Sync is the line pattern of the SYNC field starting from idle.
var Sync = Line{K, J, K, J, K, J, K, K}

// EOP is the end of packet marker.
var EOP = Line{SE0, SE0, J}
