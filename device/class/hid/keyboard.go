package hid

// KeyboardReportSize is the size of a boot keyboard input report.
const KeyboardReportSize = 8

// KeyboardReport is a boot keyboard input report.
type KeyboardReport struct {
	Modifiers uint8
	Keys      [6]uint8
}

// MarshalTo writes the report to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (r *KeyboardReport) MarshalTo(buf []byte) int {
	if len(buf) < KeyboardReportSize {
		return 0
	}
	buf[0] = r.Modifiers
	buf[1] = 0
	copy(buf[2:8], r.Keys[:])
	return KeyboardReportSize
}

// ParseKeyboardReport parses a boot keyboard input report.
func ParseKeyboardReport(data []byte, out *KeyboardReport) bool {
	if len(data) < KeyboardReportSize {
		return false
	}
	out.Modifiers = data[0]
	copy(out.Keys[:], data[2:8])
	return true
}

// SendKeyboardReport queues a boot keyboard input report.
func (h *HID) SendKeyboardReport(dev Endpoints, r *KeyboardReport) error {
	var buf [KeyboardReportSize]byte
	r.MarshalTo(buf[:])
	return h.SendReport(dev, buf[:])
}

// Keycode returns the usage ID and modifiers that type ch on a US layout.
// ok is false for characters without a mapping.
func Keycode(ch byte) (key, mods uint8, ok bool) {
	switch {
	case ch >= 'a' && ch <= 'z':
		return KeyA + (ch - 'a'), 0, true
	case ch >= 'A' && ch <= 'Z':
		return KeyA + (ch - 'A'), ModLeftShift, true
	case ch >= '1' && ch <= '9':
		return Key1 + (ch - '1'), 0, true
	case ch == '0':
		return Key0, 0, true
	case ch == '\n' || ch == '\r':
		return KeyEnter, 0, true
	case ch == '\t':
		return KeyTab, 0, true
	case ch == ' ':
		return KeySpace, 0, true
	case ch == '-':
		return KeyMinus, 0, true
	case ch == '.':
		return KeyDot, 0, true
	}
	return KeyNone, 0, false
}

// Character maps a report back to the character it types, the inverse of
// Keycode for the first pressed key. ok is false for a release report or
// an unmapped key.
func Character(r *KeyboardReport) (ch byte, ok bool) {
	key := r.Keys[0]
	shift := r.Modifiers&(ModLeftShift|ModRightShift) != 0
	switch {
	case key >= KeyA && key < KeyA+26:
		if shift {
			return 'A' + (key - KeyA), true
		}
		return 'a' + (key - KeyA), true
	case key >= Key1 && key < Key0:
		return '1' + (key - Key1), true
	case key == Key0:
		return '0', true
	case key == KeyEnter:
		return '\n', true
	case key == KeyTab:
		return '\t', true
	case key == KeySpace:
		return ' ', true
	case key == KeyMinus:
		return '-', true
	case key == KeyDot:
		return '.', true
	}
	return 0, false
}
