package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

// standardHandler answers standard requests from a descriptor table and
// the device's endpoint state. It runs with the device lock held.
type standardHandler struct {
	dev   *Device
	table *Descriptors
}

func (h *standardHandler) Accepts(setup *SetupPacket) bool {
	return setup.IsStandard()
}

func (h *standardHandler) HandleSetup(setup *SetupPacket, data []byte) ([]byte, error) {
	switch setup.Recipient() {
	case RequestRecipientDevice:
		return h.handleDeviceRequest(setup)
	case RequestRecipientInterface:
		return h.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return h.handleEndpointRequest(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) handleDeviceRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if h.dev.remoteWakeup {
			status |= 1 << 1
		}
		return binary.LittleEndian.AppendUint16(nil, status), nil
	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureDeviceRemoteWakeup {
			return nil, pkg.ErrInvalidRequest
		}
		h.dev.remoteWakeup = setup.Request == RequestSetFeature
		return nil, nil
	case RequestSetAddress:
		return h.setAddress(setup)
	case RequestGetDescriptor:
		return h.getDescriptor(setup)
	case RequestGetConfiguration:
		return []byte{h.dev.configuration}, nil
	case RequestSetConfiguration:
		return h.setConfiguration(setup)
	default:
		return nil, fmt.Errorf("request 0x%02X: %w", setup.Request, pkg.ErrInvalidRequest)
	}
}

// setAddress records the new address. It takes effect once the status
// stage completes.
func (h *standardHandler) setAddress(setup *SetupPacket) ([]byte, error) {
	if setup.Value > MaxAddress {
		return nil, fmt.Errorf("address %d: %w", setup.Value, pkg.ErrInvalidRequest)
	}
	h.dev.control.newAddress = int(setup.Value)
	return nil, nil
}

func (h *standardHandler) getDescriptor(setup *SetupPacket) ([]byte, error) {
	desc, ok := h.table.Get(setup.DescriptorType(), setup.DescriptorIndex())
	if !ok {
		return nil, fmt.Errorf("descriptor type 0x%02X index %d: %w",
			setup.DescriptorType(), setup.DescriptorIndex(), pkg.ErrInvalidRequest)
	}
	return desc, nil
}

func (h *standardHandler) setConfiguration(setup *SetupPacket) ([]byte, error) {
	value := uint8(setup.Value)
	if value != 0 {
		if _, ok := h.table.Get(DescriptorTypeConfiguration, value-1); !ok {
			return nil, fmt.Errorf("configuration %d: %w", value, pkg.ErrInvalidRequest)
		}
	}
	h.dev.configuration = value
	for n := 1; n < NumEndpoints; n++ {
		h.dev.out[n].toggle = packet.Data0
		h.dev.in[n].toggle = packet.Data0
	}
	if cb := h.dev.onSetConfiguration; cb != nil {
		h.dev.notify(func() { cb(value) })
	}
	return nil, nil
}

func (h *standardHandler) handleInterfaceRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		return []byte{0, 0}, nil
	case RequestGetInterface:
		return []byte{0}, nil
	case RequestGetDescriptor:
		// Class descriptors are keyed by interface number.
		desc, ok := h.table.Get(setup.DescriptorType(), uint8(setup.Index))
		if !ok {
			return nil, fmt.Errorf("interface %d descriptor type 0x%02X: %w",
				setup.Index, setup.DescriptorType(), pkg.ErrInvalidRequest)
		}
		return desc, nil
	case RequestSetInterface:
		if setup.Value != 0 {
			return nil, pkg.ErrInvalidRequest
		}
		return nil, nil
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

func (h *standardHandler) handleEndpointRequest(setup *SetupPacket) ([]byte, error) {
	ep, err := h.dev.endpoint(setup.EndpointAddress())
	if err != nil {
		return nil, err
	}
	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if ep.halted {
			status = 1
		}
		return binary.LittleEndian.AppendUint16(nil, status), nil
	case RequestClearFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, pkg.ErrInvalidRequest
		}
		ep.halted = false
		ep.toggle = packet.Data0
		return nil, nil
	case RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, pkg.ErrInvalidRequest
		}
		if !ep.IsControl() {
			ep.halted = true
		}
		return nil, nil
	case RequestSynchFrame:
		frame, _ := h.dev.frames.Frame()
		return binary.LittleEndian.AppendUint16(nil, frame), nil
	default:
		return nil, pkg.ErrInvalidRequest
	}
}
