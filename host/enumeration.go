package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/pkg"
)

// ErrEnumerationFailed indicates the device answered enumeration with
// malformed descriptors.
var ErrEnumerationFailed = errors.New("enumeration failed")

// configurationHeaderSize is the fixed part of a configuration descriptor.
const configurationHeaderSize = 9

// maxDescriptorSize bounds descriptor reads.
const maxDescriptorSize = 255

// Enumeration is what the host learned about a device.
type Enumeration struct {
	Address       uint8
	Descriptor    device.DeviceDescriptor
	Configuration []byte // Full configuration descriptor set, if any
	Strings       map[uint8]string
}

// Enumerate resets the bus and runs the standard enumeration sequence:
// read the first 8 bytes of the device descriptor at address 0 to learn
// the endpoint 0 packet size, assign address, read the full device
// descriptor, its first configuration and strings, and select that
// configuration.
func (h *Host) Enumerate(ctx context.Context, address uint8) (*Enumeration, error) {
	if address == 0 || address > device.MaxAddress {
		return nil, fmt.Errorf("address %d: %w", address, pkg.ErrInvalidParameter)
	}
	pkg.LogDebug(pkg.ComponentHost, "starting enumeration", "address", address)

	if err := h.Reset(ctx); err != nil && !errors.Is(err, pkg.ErrInvalidParameter) {
		return nil, err
	}

	// Every device supports 8 byte packets on endpoint 0.
	h.SetMaxPacketSize0(DefaultMaxPacketSize0)
	head, err := h.ControlIn(ctx, 0, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 8))
	if err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	if len(head) < 8 {
		return nil, fmt.Errorf("device descriptor of %d bytes: %w", len(head), ErrEnumerationFailed)
	}
	if mps0 := int(head[7]); mps0 > 0 {
		h.SetMaxPacketSize0(mps0)
	}
	pkg.LogDebug(pkg.ComponentHost, "got max packet size", "size", h.MaxPacketSize0())

	if err := h.ControlOut(ctx, 0, device.SetAddressSetup(address), nil); err != nil {
		return nil, fmt.Errorf("set address: %w", err)
	}
	pkg.LogDebug(pkg.ComponentHost, "assigned address", "address", address)

	e := &Enumeration{Address: address, Strings: make(map[uint8]string)}
	raw, err := h.ControlIn(ctx, address,
		device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, device.DeviceDescriptorSize))
	if err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	if err := device.ParseDeviceDescriptor(raw, &e.Descriptor); err != nil {
		return nil, fmt.Errorf("device descriptor: %w: %w", ErrEnumerationFailed, err)
	}
	pkg.LogDebug(pkg.ComponentHost, "device descriptor",
		"vendorID", e.Descriptor.VendorID,
		"productID", e.Descriptor.ProductID,
		"class", e.Descriptor.DeviceClass)

	if e.Descriptor.NumConfigurations > 0 {
		if e.Configuration, err = h.readConfiguration(ctx, address); err != nil {
			return nil, err
		}
	}

	for _, index := range []uint8{
		e.Descriptor.ManufacturerIndex,
		e.Descriptor.ProductIndex,
		e.Descriptor.SerialNumberIndex,
	} {
		if index == 0 {
			continue
		}
		s, err := h.readString(ctx, address, index)
		if err != nil {
			// Strings are optional.
			pkg.LogDebug(pkg.ComponentHost, "string descriptor read failed", "index", index, "error", err)
			continue
		}
		e.Strings[index] = s
	}

	if len(e.Configuration) >= configurationHeaderSize {
		value := e.Configuration[5]
		if err := h.ControlOut(ctx, address, device.SetConfigurationSetup(value), nil); err != nil {
			return nil, fmt.Errorf("set configuration %d: %w", value, err)
		}
	}
	return e, nil
}

// readConfiguration reads the header of configuration 0 and then its full
// descriptor set.
func (h *Host) readConfiguration(ctx context.Context, address uint8) ([]byte, error) {
	header, err := h.ControlIn(ctx, address,
		device.GetDescriptorSetup(device.DescriptorTypeConfiguration, 0, configurationHeaderSize))
	if err != nil {
		return nil, fmt.Errorf("configuration descriptor: %w", err)
	}
	if len(header) < configurationHeaderSize || header[1] != device.DescriptorTypeConfiguration {
		return nil, fmt.Errorf("configuration descriptor: %w", ErrEnumerationFailed)
	}
	total := binary.LittleEndian.Uint16(header[2:4])
	full, err := h.ControlIn(ctx, address,
		device.GetDescriptorSetup(device.DescriptorTypeConfiguration, 0, total))
	if err != nil {
		return nil, fmt.Errorf("configuration descriptor: %w", err)
	}
	return full, nil
}

// readString reads string descriptor index in US English.
func (h *Host) readString(ctx context.Context, address, index uint8) (string, error) {
	setup := device.GetDescriptorSetup(device.DescriptorTypeString, index, maxDescriptorSize)
	setup.Index = device.LangIDUSEnglish
	raw, err := h.ControlIn(ctx, address, setup)
	if err != nil {
		return "", err
	}
	if len(raw) < 2 || raw[1] != device.DescriptorTypeString {
		return "", ErrEnumerationFailed
	}
	length := min(int(raw[0]), len(raw))
	if length < 2 {
		return "", nil
	}
	units := make([]uint16, 0, (length-2)/2)
	for i := 2; i+1 < length; i += 2 {
		units = append(units, binary.LittleEndian.Uint16(raw[i:]))
	}
	return string(utf16.Decode(units)), nil
}
