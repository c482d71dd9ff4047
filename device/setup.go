package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbwire/pkg"
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors.
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
)

// bmRequestType fields.
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
	RequestRecipientOther     = 0x03
)

// Debug bridge request types (vendor, recipient other).
const (
	RequestTypeDebugRead  = RequestDirectionDeviceToHost | RequestTypeVendor | RequestRecipientOther // 0xC3
	RequestTypeDebugWrite = RequestDirectionHostToDevice | RequestTypeVendor | RequestRecipientOther // 0x43
)

// SetupPacketSize is the size of the SETUP data stage payload.
const SetupPacketSize = 8

// SetupPacket is the decoded 8-byte payload of a SETUP transaction.
type SetupPacket struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength
}

// ParseSetupPacket decodes data into out. data must be exactly 8 bytes.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) != SetupPacketSize {
		return fmt.Errorf("%d bytes: %w", len(data), pkg.ErrSetupPacketTooShort)
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo serializes the setup packet to buf and returns the number of
// bytes written, or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// Bytes returns the 8-byte wire form.
func (s SetupPacket) Bytes() []byte {
	buf := make([]byte, SetupPacketSize)
	s.MarshalTo(buf)
	return buf
}

// IsDeviceToHost reports whether the data stage, if any, is IN.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionDeviceToHost
}

// Type returns the request type bits.
func (s *SetupPacket) Type() uint8 { return s.RequestType & RequestTypeTypeMask }

// Recipient returns the recipient bits.
func (s *SetupPacket) Recipient() uint8 { return s.RequestType & RequestTypeRecipientMask }

// IsStandard reports whether this is a standard request.
func (s *SetupPacket) IsStandard() bool { return s.Type() == RequestTypeStandard }

// DescriptorType returns the descriptor type from the wValue high byte.
func (s *SetupPacket) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex returns the descriptor index from the wValue low byte.
func (s *SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }

// EndpointAddress returns the endpoint address from wIndex.
func (s *SetupPacket) EndpointAddress() uint8 { return uint8(s.Index) }

// Register returns the debug bridge register address carried in wValue and wIndex.
func (s *SetupPacket) Register() uint32 {
	return uint32(s.Value) | uint32(s.Index)<<16
}

func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	reqType := "Standard"
	switch s.Type() {
	case RequestTypeClass:
		reqType = "Class"
	case RequestTypeVendor:
		reqType = "Vendor"
	}
	recip := "Device"
	switch s.Recipient() {
	case RequestRecipientInterface:
		recip = "Interface"
	case RequestRecipientEndpoint:
		recip = "Endpoint"
	case RequestRecipientOther:
		recip = "Other"
	}
	return fmt.Sprintf("SETUP[%s %s %s] Request=0x%02X Value=0x%04X Index=0x%04X Length=%d",
		dir, reqType, recip, s.Request, s.Value, s.Index, s.Length)
}

// GetDescriptorSetup returns a GET_DESCRIPTOR request.
func GetDescriptorSetup(descType, descIndex uint8, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(descIndex),
		Length:      length,
	}
}

// SetAddressSetup returns a SET_ADDRESS request.
func SetAddressSetup(address uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetAddress,
		Value:       uint16(address),
	}
}

// SetConfigurationSetup returns a SET_CONFIGURATION request.
func SetConfigurationSetup(config uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(config),
	}
}

// GetConfigurationSetup returns a GET_CONFIGURATION request.
func GetConfigurationSetup() SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetConfiguration,
		Length:      1,
	}
}

// GetStatusSetup returns a GET_STATUS request.
func GetStatusSetup(recipient uint8, index uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | recipient,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// FeatureSetup returns a SET_FEATURE request, or CLEAR_FEATURE when set is false.
func FeatureSetup(set bool, recipient uint8, feature, index uint16) SetupPacket {
	req := uint8(RequestClearFeature)
	if set {
		req = RequestSetFeature
	}
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | recipient,
		Request:     req,
		Value:       feature,
		Index:       index,
	}
}

// DebugReadSetup returns a debug bridge request reading the 32-bit register reg.
func DebugReadSetup(reg uint32) SetupPacket {
	return SetupPacket{
		RequestType: RequestTypeDebugRead,
		Value:       uint16(reg),
		Index:       uint16(reg >> 16),
		Length:      4,
	}
}

// DebugWriteSetup returns a debug bridge request writing the 32-bit register reg.
// The value follows in the OUT data stage.
func DebugWriteSetup(reg uint32) SetupPacket {
	return SetupPacket{
		RequestType: RequestTypeDebugWrite,
		Value:       uint16(reg),
		Index:       uint16(reg >> 16),
		Length:      4,
	}
}
