package device

import (
	"fmt"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

// Registers is the firmware view of the device: 32-bit registers at fixed
// addresses.
type Registers interface {
	Read(reg uint32) (uint32, error)
	Write(reg, value uint32) error
}

// Register map.
const (
	RegAddress uint32 = 0x000 // Device address (7 bits)
	RegScratch uint32 = 0x004 // Free read/write word

	// Each endpoint address owns a block of RegEndpointStride bytes starting
	// at RegEndpointBase. Blocks 0-15 are OUT endpoints, 16-31 IN endpoints.
	RegEndpointBase   uint32 = 0x100
	RegEndpointStride uint32 = 0x10

	RegEndpointControl  uint32 = 0x0 // Bit 0: enable
	RegEndpointResponse uint32 = 0x4 // Response code
	RegEndpointStatus   uint32 = 0x8 // Bit 0: pending (write 1 to clear), bit 1: toggle (write 1 to reset)
	RegEndpointLength   uint32 = 0xC // Buffered length, read-only
)

// Register bits.
const (
	EndpointControlEnable uint32 = 1 << 0
	EndpointStatusPending uint32 = 1 << 0
	EndpointStatusToggle  uint32 = 1 << 1
)

// EndpointRegister returns the address of register offset for endpoint addr.
func EndpointRegister(addr uint8, offset uint32) uint32 {
	return RegEndpointBase + uint32(endpointIndex(addr))*RegEndpointStride + offset
}

var _ Registers = (*Device)(nil)

// Read returns the value of register reg.
func (d *Device) Read(reg uint32) (uint32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.readRegister(reg)
}

// Write stores value into register reg. The write is applied between
// transactions.
func (d *Device) Write(reg, value uint32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.writeRegister(reg, value)
}

// decodeEndpointRegister splits an endpoint register address.
func decodeEndpointRegister(reg uint32) (index int, offset uint32, ok bool) {
	if reg < RegEndpointBase || reg%4 != 0 {
		return 0, 0, false
	}
	rel := reg - RegEndpointBase
	if rel >= MaxEndpointAddresses*RegEndpointStride {
		return 0, 0, false
	}
	return int(rel / RegEndpointStride), rel % RegEndpointStride, true
}

func invalidRegister(reg uint32) error {
	return fmt.Errorf("register 0x%03X: %w", reg, pkg.ErrInvalidRegister)
}

func (d *Device) readRegister(reg uint32) (uint32, error) {
	switch reg {
	case RegAddress:
		return uint32(d.address), nil
	case RegScratch:
		return d.scratch, nil
	}
	index, offset, ok := decodeEndpointRegister(reg)
	if !ok {
		return 0, invalidRegister(reg)
	}
	ep := d.endpointAt(index)
	switch offset {
	case RegEndpointControl:
		if ep.enabled {
			return EndpointControlEnable, nil
		}
		return 0, nil
	case RegEndpointResponse:
		return uint32(ep.effectiveResponse()), nil
	case RegEndpointStatus:
		var v uint32
		if ep.pending {
			v |= EndpointStatusPending
		}
		if ep.toggle == packet.Data1 {
			v |= EndpointStatusToggle
		}
		return v, nil
	default: // RegEndpointLength
		return uint32(len(ep.buffer)), nil
	}
}

func (d *Device) writeRegister(reg, value uint32) error {
	switch reg {
	case RegAddress:
		if value > MaxAddress {
			return fmt.Errorf("address %d: %w", value, pkg.ErrInvalidParameter)
		}
		d.apply(func() { d.address = uint8(value) })
		return nil
	case RegScratch:
		d.apply(func() { d.scratch = value })
		return nil
	}
	index, offset, ok := decodeEndpointRegister(reg)
	if !ok {
		return invalidRegister(reg)
	}
	ep := d.endpointAt(index)
	switch offset {
	case RegEndpointControl:
		if value&EndpointControlEnable != 0 {
			d.apply(func() { ep.enabled = true })
		} else {
			d.apply(func() { d.disable(ep) })
		}
	case RegEndpointResponse:
		r := Response(value)
		if !r.Valid() {
			return fmt.Errorf("response %d: %w", value, pkg.ErrInvalidParameter)
		}
		d.apply(func() { ep.setResponse(r) })
	case RegEndpointStatus:
		d.apply(func() {
			if value&EndpointStatusPending != 0 {
				ep.clearPending()
			}
			if value&EndpointStatusToggle != 0 {
				ep.toggle = packet.Data0
			}
		})
	default:
		return fmt.Errorf("register 0x%03X is read-only: %w", reg, pkg.ErrInvalidRegister)
	}
	pkg.LogDebug(pkg.ComponentRegister, "write", "register", fmt.Sprintf("0x%03X", reg), "value", value)
	return nil
}

func (d *Device) disable(ep *Endpoint) {
	ep.disable()
	if ep.IsControl() {
		d.control.abort()
	}
}

// modify validates addr and applies fn to its endpoint between transactions.
func (d *Device) modify(addr uint8, fn func(ep *Endpoint)) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ep, err := d.endpoint(addr)
	if err != nil {
		return err
	}
	d.apply(func() { fn(ep) })
	return nil
}

// Enable enables the endpoint at addr.
func (d *Device) Enable(addr uint8) error {
	return d.modify(addr, func(ep *Endpoint) { ep.enabled = true })
}

// Disable disables the endpoint at addr and discards its pending data.
// Disabling endpoint 0 abandons any control transfer in progress.
func (d *Device) Disable(addr uint8) error {
	return d.modify(addr, func(ep *Endpoint) { d.disable(ep) })
}

// SetResponse sets the response of the endpoint at addr for the next transaction.
func (d *Device) SetResponse(addr uint8, r Response) error {
	if !r.Valid() {
		return fmt.Errorf("response %d: %w", r, pkg.ErrInvalidParameter)
	}
	return d.modify(addr, func(ep *Endpoint) { ep.setResponse(r) })
}

// SetData queues payload on the IN endpoint at addr.
func (d *Device) SetData(addr uint8, payload []byte) error {
	if addr&EndpointDirectionIn == 0 {
		return fmt.Errorf("endpoint 0x%02X is not IN: %w", addr, pkg.ErrInvalidEndpoint)
	}
	d.mutex.Lock()
	mps := int(d.config.MaxPacketSize)
	if addr&0x0F == 0 {
		mps = int(d.config.MaxPacketSize0)
	}
	d.mutex.Unlock()
	if len(payload) > mps {
		return fmt.Errorf("%d bytes exceeds max packet size %d: %w", len(payload), mps, pkg.ErrInvalidParameter)
	}
	data := append([]byte{}, payload...)
	return d.modify(addr, func(ep *Endpoint) { ep.setData(data) })
}

// Data returns a copy of the data buffered on the endpoint at addr.
func (d *Device) Data(addr uint8) ([]byte, error) {
	st, err := d.Endpoint(addr)
	if err != nil {
		return nil, err
	}
	return st.Buffer, nil
}

// Pending reports whether the endpoint at addr holds data: received and
// not yet cleared for OUT, queued and not yet acknowledged for IN.
func (d *Device) Pending(addr uint8) (bool, error) {
	st, err := d.Endpoint(addr)
	if err != nil {
		return false, err
	}
	return st.Pending, nil
}

// ClearPending releases the buffer of the endpoint at addr.
func (d *Device) ClearPending(addr uint8) error {
	return d.modify(addr, func(ep *Endpoint) { ep.clearPending() })
}

// ClearToggle resets the data toggle of the endpoint at addr to DATA0.
func (d *Device) ClearToggle(addr uint8) error {
	return d.modify(addr, func(ep *Endpoint) { ep.toggle = packet.Data0 })
}

// Address returns the current device address.
func (d *Device) Address() uint8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.address
}

// SetAddress sets the device address directly.
func (d *Device) SetAddress(addr uint8) error {
	return d.Write(RegAddress, uint32(addr))
}
