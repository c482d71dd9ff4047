package cdc

import "encoding/binary"

// Interface class codes.
const (
	ClassCDC     = 0x02
	ClassCDCData = 0x0A

	SubclassACM = 0x02

	ProtocolNone = 0x00
	ProtocolAT   = 0x01
)

// Class-specific descriptor type and functional descriptor subtypes.
const (
	DescriptorTypeCSInterface = 0x24

	SubtypeHeader         = 0x00
	SubtypeCallManagement = 0x01
	SubtypeACM            = 0x02
	SubtypeUnion          = 0x06
)

// ACM capability bits.
const (
	ACMCapCommFeature = 1 << 0
	ACMCapLineCoding  = 1 << 1 // SET/GET_LINE_CODING and SET_CONTROL_LINE_STATE
	ACMCapSendBreak   = 1 << 2
)

// Class request codes.
const (
	RequestSetLineCoding       = 0x20
	RequestGetLineCoding       = 0x21
	RequestSetControlLineState = 0x22
	RequestSendBreak           = 0x23
)

// NotificationSerialState is the SERIAL_STATE notification code.
const NotificationSerialState = 0x20

// Control line state bits of SET_CONTROL_LINE_STATE.
const (
	ControlLineDTR = 1 << 0
	ControlLineRTS = 1 << 1
)

// Serial state bits of the SERIAL_STATE notification.
const (
	SerialStateRxCarrier = 1 << 0 // DCD
	SerialStateTxCarrier = 1 << 1 // DSR
	SerialStateBreak     = 1 << 2
	SerialStateRing      = 1 << 3
	SerialStateFraming   = 1 << 4
	SerialStateParity    = 1 << 5
	SerialStateOverrun   = 1 << 6
)

// Stop bit values.
const (
	StopBits1   = 0
	StopBits1_5 = 1
	StopBits2   = 2
)

// Parity values.
const (
	ParityNone  = 0
	ParityOdd   = 1
	ParityEven  = 2
	ParityMark  = 3
	ParitySpace = 4
)

// LineCoding is the serial line configuration.
type LineCoding struct {
	DTERate    uint32 // baud
	CharFormat uint8  // stop bits
	ParityType uint8
	DataBits   uint8
}

// LineCodingSize is the wire size of LineCoding.
const LineCodingSize = 7

// DefaultLineCoding is 115200 8N1.
var DefaultLineCoding = LineCoding{
	DTERate:    115200,
	CharFormat: StopBits1,
	ParityType: ParityNone,
	DataBits:   8,
}

// MarshalTo writes the line coding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], lc.DTERate)
	buf[4] = lc.CharFormat
	buf[5] = lc.ParityType
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses a line coding from data.
// Returns false if data is too short.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < LineCodingSize {
		return false
	}
	out.DTERate = binary.LittleEndian.Uint32(data[0:4])
	out.CharFormat = data[4]
	out.ParityType = data[5]
	out.DataBits = data[6]
	return true
}

// Valid reports whether the fields hold defined values.
func (lc *LineCoding) Valid() bool {
	switch lc.DataBits {
	case 5, 6, 7, 8, 16:
	default:
		return false
	}
	return lc.DTERate != 0 && lc.CharFormat <= StopBits2 && lc.ParityType <= ParitySpace
}

// functionalDescriptors returns the header, call management, ACM and union
// functional descriptors for a control interface and its data interface.
func functionalDescriptors(control, data uint8) []byte {
	return []byte{
		5, DescriptorTypeCSInterface, SubtypeHeader, 0x10, 0x01, // CDC 1.10
		5, DescriptorTypeCSInterface, SubtypeCallManagement, 0x00, data,
		4, DescriptorTypeCSInterface, SubtypeACM, ACMCapLineCoding | ACMCapSendBreak,
		5, DescriptorTypeCSInterface, SubtypeUnion, control, data,
	}
}
