package hid

import "encoding/binary"

// Interface class codes.
const (
	ClassHID = 0x03

	SubclassNone = 0x00
	SubclassBoot = 0x01

	ProtocolNone     = 0x00
	ProtocolKeyboard = 0x01
	ProtocolMouse    = 0x02
)

// Class request codes.
const (
	RequestGetReport   = 0x01
	RequestGetIdle     = 0x02
	RequestGetProtocol = 0x03
	RequestSetReport   = 0x09
	RequestSetIdle     = 0x0A
	RequestSetProtocol = 0x0B
)

// Report types (high byte of wValue in GET_REPORT and SET_REPORT).
const (
	ReportTypeInput   = 0x01
	ReportTypeOutput  = 0x02
	ReportTypeFeature = 0x03
)

// Protocol values for GET_PROTOCOL and SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00
	ProtocolReport = 0x01
)

// Descriptor is the HID class descriptor that follows the interface
// descriptor in the configuration.
type Descriptor struct {
	HIDVersion    uint16 // BCD
	CountryCode   uint8
	ReportDescLen uint16
}

// DescriptorSize is the size of the HID class descriptor.
const DescriptorSize = 9

// MarshalTo writes the descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *Descriptor) MarshalTo(buf []byte) int {
	if len(buf) < DescriptorSize {
		return 0
	}
	buf[0] = DescriptorSize
	buf[1] = 0x21
	binary.LittleEndian.PutUint16(buf[2:4], d.HIDVersion)
	buf[4] = d.CountryCode
	buf[5] = 1 // one class descriptor follows
	buf[6] = 0x22
	binary.LittleEndian.PutUint16(buf[7:9], d.ReportDescLen)
	return DescriptorSize
}

// Keyboard modifier bits.
const (
	ModLeftCtrl   = 1 << 0
	ModLeftShift  = 1 << 1
	ModLeftAlt    = 1 << 2
	ModLeftGUI    = 1 << 3
	ModRightCtrl  = 1 << 4
	ModRightShift = 1 << 5
	ModRightAlt   = 1 << 6
	ModRightGUI   = 1 << 7
)

// Keyboard LED bits of the output report.
const (
	LEDNumLock    = 1 << 0
	LEDCapsLock   = 1 << 1
	LEDScrollLock = 1 << 2
)

// Keyboard usage IDs.
const (
	KeyNone   = 0x00
	KeyA      = 0x04
	Key1      = 0x1E
	Key0      = 0x27
	KeyEnter  = 0x28
	KeyEscape = 0x29
	KeyTab    = 0x2B
	KeySpace  = 0x2C
	KeyMinus  = 0x2D
	KeyDot    = 0x37
)

// BootKeyboardReportDescriptor describes the 8-byte boot keyboard input
// report and its 1-byte LED output report.
var BootKeyboardReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Key Codes)
	0x19, 0xE0, //   Usage Minimum (224)
	0x29, 0xE7, //   Usage Maximum (231)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant)
	0x95, 0x03, //   Report Count (3)
	0x75, 0x01, //   Report Size (1)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (1)
	0x29, 0x03, //   Usage Maximum (3)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x95, 0x05, //   Report Count (5)
	0x91, 0x01, //   Output (Constant)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x65, //   Logical Maximum (101)
	0x05, 0x07, //   Usage Page (Key Codes)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0x65, //   Usage Maximum (101)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}
