package hid

import (
	"fmt"
	"sync"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/pkg"
)

// MaxReportSize is the largest report the function accepts.
const MaxReportSize = 64

// Endpoints is the firmware register view a function moves reports
// through. *device.Device implements it.
type Endpoints interface {
	Enable(addr uint8) error
	SetResponse(addr uint8, r device.Response) error
	SetData(addr uint8, payload []byte) error
	Pending(addr uint8) (bool, error)
}

// HID is a HID function on one interface.
type HID struct {
	iface            uint8
	inEP             uint8
	reportDescriptor []byte

	mutex    sync.Mutex
	protocol uint8
	idleRate uint8 // 4 ms units, 0 = report only on change
	input    []byte
	output   []byte
}

// New creates a HID function for interface iface reporting on the IN
// endpoint address inEP. The report descriptor is stored by reference.
func New(iface, inEP uint8, reportDescriptor []byte) *HID {
	return &HID{
		iface:            iface,
		inEP:             inEP | device.EndpointDirectionIn,
		reportDescriptor: reportDescriptor,
		protocol:         ProtocolReport,
	}
}

// Interface returns the interface number.
func (h *HID) Interface() uint8 { return h.iface }

// InEndpoint returns the interrupt IN endpoint address.
func (h *HID) InEndpoint() uint8 { return h.inEP }

// Register stores the class and report descriptors in t under the
// interface number.
func (h *HID) Register(t *device.Descriptors) {
	var buf [DescriptorSize]byte
	h.classDescriptor().MarshalTo(buf[:])
	t.Set(device.DescriptorTypeHID, h.iface, buf[:])
	t.Set(device.DescriptorTypeHIDReport, h.iface, h.reportDescriptor)
}

func (h *HID) classDescriptor() *Descriptor {
	return &Descriptor{
		HIDVersion:    0x0111,
		ReportDescLen: uint16(len(h.reportDescriptor)),
	}
}

// InterfaceDescriptors returns the interface, class and endpoint
// descriptors for a boot keyboard, polled every interval frames.
func (h *HID) InterfaceDescriptors(interval uint8) []byte {
	buf := make([]byte, device.InterfaceDescriptorSize+DescriptorSize+device.EndpointDescriptorSize)
	n := (&device.InterfaceDescriptor{
		Number:       h.iface,
		NumEndpoints: 1,
		Class:        ClassHID,
		SubClass:     SubclassBoot,
		Protocol:     ProtocolKeyboard,
	}).MarshalTo(buf)
	n += h.classDescriptor().MarshalTo(buf[n:])
	(&device.EndpointDescriptor{
		Address:       h.inEP,
		Attributes:    device.EndpointTypeInterrupt,
		MaxPacketSize: KeyboardReportSize,
		Interval:      interval,
	}).MarshalTo(buf[n:])
	return buf
}

// Protocol returns the current protocol (boot or report).
func (h *HID) Protocol() uint8 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.protocol
}

// IdleRate returns the idle rate set by the host.
func (h *HID) IdleRate() uint8 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.idleRate
}

// OutputReport returns a copy of the last output report from the host.
func (h *HID) OutputReport() []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]byte(nil), h.output...)
}

// Accepts reports whether setup is a class request for this interface.
func (h *HID) Accepts(setup *device.SetupPacket) bool {
	return setup.Type() == device.RequestTypeClass &&
		setup.Recipient() == device.RequestRecipientInterface &&
		uint8(setup.Index) == h.iface
}

// HandleSetup answers a HID class request. It runs with the device lock
// held.
func (h *HID) HandleSetup(setup *device.SetupPacket, data []byte) ([]byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	in := setup.IsDeviceToHost()
	switch {
	case setup.Request == RequestGetReport && in:
		if kind := uint8(setup.Value >> 8); kind != ReportTypeInput {
			return nil, fmt.Errorf("GET_REPORT type %d: %w", kind, pkg.ErrInvalidRequest)
		}
		return append([]byte(nil), h.input...), nil

	case setup.Request == RequestSetReport && !in:
		if kind := uint8(setup.Value >> 8); kind != ReportTypeOutput {
			return nil, fmt.Errorf("SET_REPORT type %d: %w", kind, pkg.ErrInvalidRequest)
		}
		if len(data) > MaxReportSize {
			return nil, fmt.Errorf("SET_REPORT %d bytes: %w", len(data), pkg.ErrInvalidRequest)
		}
		h.output = append(h.output[:0], data...)
		pkg.LogDebug(pkg.ComponentClass, "SET_REPORT", "interface", h.iface, "report", fmt.Sprintf("% X", data))
		return nil, nil

	case setup.Request == RequestGetIdle && in:
		return []byte{h.idleRate}, nil

	case setup.Request == RequestSetIdle && !in:
		h.idleRate = uint8(setup.Value >> 8)
		pkg.LogDebug(pkg.ComponentClass, "SET_IDLE", "interface", h.iface, "rate", h.idleRate)
		return nil, nil

	case setup.Request == RequestGetProtocol && in:
		return []byte{h.protocol}, nil

	case setup.Request == RequestSetProtocol && !in:
		protocol := uint8(setup.Value)
		if protocol != ProtocolBoot && protocol != ProtocolReport {
			return nil, fmt.Errorf("protocol %d: %w", protocol, pkg.ErrInvalidRequest)
		}
		h.protocol = protocol
		pkg.LogDebug(pkg.ComponentClass, "SET_PROTOCOL", "interface", h.iface, "protocol", protocol)
		return nil, nil

	default:
		return nil, fmt.Errorf("HID request 0x%02X: %w", setup.Request, pkg.ErrInvalidRequest)
	}
}

// Start enables the interrupt IN endpoint with nothing queued.
func (h *HID) Start(dev Endpoints) error {
	if err := dev.Enable(h.inEP); err != nil {
		return err
	}
	return dev.SetResponse(h.inEP, device.ResponseNAK)
}

// SendReport queues an input report for the next IN transaction. It
// returns an error wrapping pkg.ErrBusy while the previous report has not
// been acknowledged.
func (h *HID) SendReport(dev Endpoints, report []byte) error {
	if len(report) > MaxReportSize {
		return fmt.Errorf("report %d bytes: %w", len(report), pkg.ErrInvalidParameter)
	}
	pending, err := dev.Pending(h.inEP)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("endpoint 0x%02X: %w", h.inEP, pkg.ErrBusy)
	}
	if err := dev.SetData(h.inEP, report); err != nil {
		return err
	}
	if err := dev.SetResponse(h.inEP, device.ResponseACK); err != nil {
		return err
	}

	h.mutex.Lock()
	h.input = append(h.input[:0], report...)
	h.mutex.Unlock()
	return nil
}
