package cdc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/pkg"
)

// Endpoints is the firmware register view the function moves data
// through. *device.Device implements it.
type Endpoints interface {
	Enable(addr uint8) error
	SetResponse(addr uint8, r device.Response) error
	SetData(addr uint8, payload []byte) error
	Data(addr uint8) ([]byte, error)
	Pending(addr uint8) (bool, error)
	ClearPending(addr uint8) error
}

// notificationSize is the size of a SERIAL_STATE notification.
const notificationSize = 10

// ACM is a CDC-ACM function: a control interface with an interrupt
// notification endpoint, followed by a data interface with a bulk
// endpoint pair.
type ACM struct {
	control  uint8
	notifyEP uint8
	dataIn   uint8
	dataOut  uint8
	mps      int

	mutex        sync.Mutex
	lineCoding   LineCoding
	controlState uint16
	breakMillis  uint16
}

// NewACM creates an ACM function on interfaces control and control+1.
// Notifications go to IN endpoint notifyEP and serial data uses endpoint
// number dataEP in both directions with packets of up to mps bytes.
func NewACM(control, notifyEP, dataEP uint8, mps int) *ACM {
	return &ACM{
		control:    control,
		notifyEP:   notifyEP&0x0F | device.EndpointDirectionIn,
		dataIn:     dataEP&0x0F | device.EndpointDirectionIn,
		dataOut:    dataEP & 0x0F,
		mps:        mps,
		lineCoding: DefaultLineCoding,
	}
}

// InterfaceDescriptors returns the descriptors of both interfaces and
// their endpoints.
func (a *ACM) InterfaceDescriptors() []byte {
	data := a.control + 1
	var buf []byte
	var tmp [device.InterfaceDescriptorSize]byte

	n := (&device.InterfaceDescriptor{
		Number:       a.control,
		NumEndpoints: 1,
		Class:        ClassCDC,
		SubClass:     SubclassACM,
		Protocol:     ProtocolAT,
	}).MarshalTo(tmp[:])
	buf = append(buf, tmp[:n]...)
	buf = append(buf, functionalDescriptors(a.control, data)...)
	buf = a.appendEndpoint(buf, a.notifyEP, device.EndpointTypeInterrupt, notificationSize, 16)

	n = (&device.InterfaceDescriptor{
		Number:       data,
		NumEndpoints: 2,
		Class:        ClassCDCData,
	}).MarshalTo(tmp[:])
	buf = append(buf, tmp[:n]...)
	buf = a.appendEndpoint(buf, a.dataOut, device.EndpointTypeBulk, uint16(a.mps), 0)
	return a.appendEndpoint(buf, a.dataIn, device.EndpointTypeBulk, uint16(a.mps), 0)
}

func (a *ACM) appendEndpoint(buf []byte, addr, attributes uint8, mps uint16, interval uint8) []byte {
	var tmp [device.EndpointDescriptorSize]byte
	n := (&device.EndpointDescriptor{
		Address:       addr,
		Attributes:    attributes,
		MaxPacketSize: mps,
		Interval:      interval,
	}).MarshalTo(tmp[:])
	return append(buf, tmp[:n]...)
}

// LineCoding returns the line coding last set by the host.
func (a *ACM) LineCoding() LineCoding {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.lineCoding
}

// DTR reports whether the host asserts Data Terminal Ready.
func (a *ACM) DTR() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.controlState&ControlLineDTR != 0
}

// RTS reports whether the host asserts Request To Send.
func (a *ACM) RTS() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.controlState&ControlLineRTS != 0
}

// Break returns the duration of the last SEND_BREAK in milliseconds.
func (a *ACM) Break() uint16 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.breakMillis
}

// Accepts reports whether setup is a class request for the control
// interface.
func (a *ACM) Accepts(setup *device.SetupPacket) bool {
	return setup.Type() == device.RequestTypeClass &&
		setup.Recipient() == device.RequestRecipientInterface &&
		uint8(setup.Index) == a.control
}

// HandleSetup answers an ACM class request. It runs with the device lock
// held.
func (a *ACM) HandleSetup(setup *device.SetupPacket, data []byte) ([]byte, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	in := setup.IsDeviceToHost()
	switch {
	case setup.Request == RequestSetLineCoding && !in:
		var lc LineCoding
		if !ParseLineCoding(data, &lc) || !lc.Valid() {
			return nil, fmt.Errorf("line coding % X: %w", data, pkg.ErrInvalidRequest)
		}
		a.lineCoding = lc
		pkg.LogDebug(pkg.ComponentClass, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType,
			"stopBits", lc.CharFormat)
		return nil, nil

	case setup.Request == RequestGetLineCoding && in:
		buf := make([]byte, LineCodingSize)
		a.lineCoding.MarshalTo(buf)
		return buf, nil

	case setup.Request == RequestSetControlLineState && !in:
		a.controlState = setup.Value
		pkg.LogDebug(pkg.ComponentClass, "control line state set",
			"dtr", setup.Value&ControlLineDTR != 0,
			"rts", setup.Value&ControlLineRTS != 0)
		return nil, nil

	case setup.Request == RequestSendBreak && !in:
		a.breakMillis = setup.Value
		pkg.LogDebug(pkg.ComponentClass, "break", "duration_ms", setup.Value)
		return nil, nil

	default:
		return nil, fmt.Errorf("ACM request 0x%02X: %w", setup.Request, pkg.ErrInvalidRequest)
	}
}

// Start enables the function's endpoints: data OUT accepting, data IN and
// notifications idle.
func (a *ACM) Start(dev Endpoints) error {
	for _, ep := range []struct {
		addr uint8
		r    device.Response
	}{
		{a.dataOut, device.ResponseACK},
		{a.dataIn, device.ResponseNAK},
		{a.notifyEP, device.ResponseNAK},
	} {
		if err := dev.Enable(ep.addr); err != nil {
			return err
		}
		if err := dev.SetResponse(ep.addr, ep.r); err != nil {
			return err
		}
	}
	return nil
}

// Read copies received serial data into p and releases the OUT buffer.
// It returns 0 when nothing has arrived. Data that does not fit in p is
// dropped.
func (a *ACM) Read(dev Endpoints, p []byte) (int, error) {
	pending, err := dev.Pending(a.dataOut)
	if err != nil || !pending {
		return 0, err
	}
	data, err := dev.Data(a.dataOut)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(data) {
		pkg.LogWarn(pkg.ComponentClass, "serial data truncated", "received", len(data), "read", n)
	}
	return n, dev.ClearPending(a.dataOut)
}

// Write queues the first packet of p on the data IN endpoint and returns
// the number of bytes queued. It returns an error wrapping pkg.ErrBusy
// while the previous packet has not been acknowledged.
func (a *ACM) Write(dev Endpoints, p []byte) (int, error) {
	if err := a.queue(dev, a.dataIn, p[:min(len(p), a.mps)]); err != nil {
		return 0, err
	}
	return min(len(p), a.mps), nil
}

// SendSerialState queues a SERIAL_STATE notification.
func (a *ACM) SendSerialState(dev Endpoints, state uint16) error {
	var buf [notificationSize]byte
	buf[0] = device.RequestDirectionDeviceToHost | device.RequestTypeClass | device.RequestRecipientInterface
	buf[1] = NotificationSerialState
	binary.LittleEndian.PutUint16(buf[4:6], uint16(a.control))
	binary.LittleEndian.PutUint16(buf[6:8], 2)
	binary.LittleEndian.PutUint16(buf[8:10], state)
	return a.queue(dev, a.notifyEP, buf[:])
}

func (a *ACM) queue(dev Endpoints, addr uint8, payload []byte) error {
	pending, err := dev.Pending(addr)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("endpoint 0x%02X: %w", addr, pkg.ErrBusy)
	}
	if err := dev.SetData(addr, payload); err != nil {
		return err
	}
	return dev.SetResponse(addr, device.ResponseACK)
}
