package packet

import "fmt"

// PID is the 4-bit packet identifier.
type PID uint8

// Token PIDs.
const (
	PIDOut   PID = 0x1
	PIDIn    PID = 0x9
	PIDSOF   PID = 0x5
	PIDSetup PID = 0xD
)

// Data PIDs. DATA2 and MDATA are high-speed only.
const (
	PIDData0 PID = 0x3
	PIDData1 PID = 0xB
	PIDData2 PID = 0x7
	PIDMData PID = 0xF
)

// Handshake PIDs. NYET is high-speed only.
const (
	PIDAck   PID = 0x2
	PIDNak   PID = 0xA
	PIDStall PID = 0xE
	PIDNyet  PID = 0x6
)

// Special PIDs, none of which a full-speed device accepts.
const (
	PIDPre   PID = 0xC
	PIDSplit PID = 0x8
	PIDPing  PID = 0x4
)

// Byte returns the PID as transmitted, with the complemented check nibble.
func (p PID) Byte() byte {
	v := byte(p) & 0x0F
	return v | (^v << 4)
}

// PIDFromByte validates the check nibble of b and returns the PID.
func PIDFromByte(b byte) (PID, bool) {
	if b>>4 != (^b)&0x0F {
		return 0, false
	}
	return PID(b & 0x0F), true
}

// IsToken returns true for OUT, IN, SETUP, and SOF.
func (p PID) IsToken() bool {
	return p&0x3 == 0x1
}

// IsData returns true for DATA0, DATA1, DATA2, and MDATA.
func (p PID) IsData() bool {
	return p&0x3 == 0x3
}

// IsHandshake returns true for ACK, NAK, STALL, and NYET.
func (p PID) IsHandshake() bool {
	return p&0x3 == 0x2
}

// String returns the PID mnemonic.
func (p PID) String() string {
	switch p {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDSetup:
		return "SETUP"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDData2:
		return "DATA2"
	case PIDMData:
		return "MDATA"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	case PIDNyet:
		return "NYET"
	case PIDPre:
		return "PRE"
	case PIDSplit:
		return "SPLIT"
	case PIDPing:
		return "PING"
	default:
		return fmt.Sprintf("PID(0x%X)", uint8(p))
	}
}

// Toggle is the data toggle sequence bit.
type Toggle bool

// Data toggle values.
const (
	Data0 Toggle = false
	Data1 Toggle = true
)

// PID returns the data PID carrying this toggle.
func (t Toggle) PID() PID {
	if t == Data1 {
		return PIDData1
	}
	return PIDData0
}

// Next returns the opposite toggle.
func (t Toggle) Next() Toggle {
	return !t
}

// String returns "DATA0" or "DATA1".
func (t Toggle) String() string {
	return t.PID().String()
}

// ToggleOf returns the toggle carried by a DATA0 or DATA1 PID.
func ToggleOf(p PID) (Toggle, bool) {
	switch p {
	case PIDData0:
		return Data0, true
	case PIDData1:
		return Data1, true
	default:
		return Data0, false
	}
}
