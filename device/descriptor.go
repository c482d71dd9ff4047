package device

import (
	"encoding/binary"
	"sync"

	"github.com/ardnew/usbwire/pkg"
)

// Descriptor types.
const (
	DescriptorTypeDevice          = 0x01
	DescriptorTypeConfiguration   = 0x02
	DescriptorTypeString          = 0x03
	DescriptorTypeInterface       = 0x04
	DescriptorTypeEndpoint        = 0x05
	DescriptorTypeDeviceQualifier = 0x06
	DescriptorTypeHID             = 0x21
	DescriptorTypeHIDReport       = 0x22
)

// DeviceDescriptor represents a USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	USBVersion        uint16 // BCD
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // BCD
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorSize is the size of a device descriptor in bytes.
const DeviceDescriptorSize = 18

// MarshalTo serializes the device descriptor to buf.
// Returns the number of bytes written (always 18 if buf is large enough).
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(buf[2:4], d.USBVersion)
	buf[4] = d.DeviceClass
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], d.DeviceVersion)
	buf[14] = d.ManufacturerIndex
	buf[15] = d.ProductIndex
	buf[16] = d.SerialNumberIndex
	buf[17] = d.NumConfigurations
	return DeviceDescriptorSize
}

// ParseDeviceDescriptor parses a device descriptor from data into out.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if len(data) < DeviceDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDevice {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return nil
}

// Endpoint descriptor attributes.
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Configuration attribute bits.
const (
	ConfigAttributeBase         = 0x80
	ConfigAttributeSelfPowered  = 0x40
	ConfigAttributeRemoteWakeup = 0x20
)

// Descriptor sizes.
const (
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
)

// InterfaceDescriptor represents a USB interface descriptor (9 bytes).
type InterfaceDescriptor struct {
	Number           uint8
	AlternateSetting uint8
	NumEndpoints     uint8
	Class            uint8
	SubClass         uint8
	Protocol         uint8
	StringIndex      uint8
}

// MarshalTo serializes the interface descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceDescriptorSize {
		return 0
	}
	buf[0] = InterfaceDescriptorSize
	buf[1] = DescriptorTypeInterface
	buf[2] = d.Number
	buf[3] = d.AlternateSetting
	buf[4] = d.NumEndpoints
	buf[5] = d.Class
	buf[6] = d.SubClass
	buf[7] = d.Protocol
	buf[8] = d.StringIndex
	return InterfaceDescriptorSize
}

// EndpointDescriptor represents a USB endpoint descriptor (7 bytes).
type EndpointDescriptor struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

// MarshalTo serializes the endpoint descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointDescriptorSize {
		return 0
	}
	buf[0] = EndpointDescriptorSize
	buf[1] = DescriptorTypeEndpoint
	buf[2] = d.Address
	buf[3] = d.Attributes
	binary.LittleEndian.PutUint16(buf[4:6], d.MaxPacketSize)
	buf[6] = d.Interval
	return EndpointDescriptorSize
}

// BuildConfiguration returns a configuration descriptor followed by the
// interface, class and endpoint descriptors in body. wTotalLength is
// computed from body.
func BuildConfiguration(value, numInterfaces, attributes, maxPower uint8, body ...[]byte) []byte {
	buf := make([]byte, ConfigurationDescriptorSize)
	for _, b := range body {
		buf = append(buf, b...)
	}
	buf[0] = ConfigurationDescriptorSize
	buf[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[4] = numInterfaces
	buf[5] = value
	buf[6] = 0
	buf[7] = attributes | ConfigAttributeBase
	buf[8] = maxPower
	return buf
}

// StringDescriptorTo writes a string descriptor encoding s as UTF-16LE.
// Returns the number of bytes written, or 0 if buf is too small.
func StringDescriptorTo(buf []byte, s string) int {
	runes := []rune(s)
	length := 2 + len(runes)*2
	if length > 255 {
		length = 254
		runes = runes[:(length-2)/2]
	}
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, r := range runes {
		binary.LittleEndian.PutUint16(buf[2+i*2:], uint16(r))
	}
	return length
}

// LanguageDescriptorTo writes the language ID string descriptor (index 0).
// Returns the number of bytes written, or 0 if buf is too small.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	length := 2 + len(langIDs)*2
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, id := range langIDs {
		binary.LittleEndian.PutUint16(buf[2+i*2:], id)
	}
	return length
}

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// Descriptors is the table GET_DESCRIPTOR answers from, keyed by
// descriptor type and index. It is safe for concurrent use.
type Descriptors struct {
	mutex   sync.RWMutex
	entries map[uint16][]byte
}

// NewDescriptors returns an empty descriptor table.
func NewDescriptors() *Descriptors {
	return &Descriptors{entries: make(map[uint16][]byte)}
}

func descriptorKey(descType, index uint8) uint16 {
	return uint16(descType)<<8 | uint16(index)
}

// Set stores a copy of data as the descriptor (descType, index).
func (t *Descriptors) Set(descType, index uint8, data []byte) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.entries[descriptorKey(descType, index)] = append([]byte{}, data...)
}

// Get returns the descriptor (descType, index).
func (t *Descriptors) Get(descType, index uint8) ([]byte, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	data, ok := t.entries[descriptorKey(descType, index)]
	return data, ok
}

// Len returns the number of stored descriptors.
func (t *Descriptors) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.entries)
}

// SetDevice stores the device descriptor.
func (t *Descriptors) SetDevice(d *DeviceDescriptor) {
	var buf [DeviceDescriptorSize]byte
	d.MarshalTo(buf[:])
	t.Set(DescriptorTypeDevice, 0, buf[:])
}

// SetString stores s as string descriptor index.
func (t *Descriptors) SetString(index uint8, s string) {
	var buf [255]byte
	n := StringDescriptorTo(buf[:], s)
	t.Set(DescriptorTypeString, index, buf[:n])
}

// SetLanguages stores the supported language IDs as string descriptor 0.
func (t *Descriptors) SetLanguages(langIDs ...uint16) {
	buf := make([]byte, 2+2*len(langIDs))
	n := LanguageDescriptorTo(buf, langIDs...)
	t.Set(DescriptorTypeString, 0, buf[:n])
}
