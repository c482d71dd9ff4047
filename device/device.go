package device

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

// ScratchReset is the reset value of the scratch register.
const ScratchReset uint32 = 0x12345678

// Config configures a Device.
type Config struct {
	// MaxPacketSize0 is the maximum packet size of endpoint 0 (8, 16, 32 or 64).
	MaxPacketSize0 uint16

	// MaxPacketSize is the maximum packet size of endpoints 1-15.
	MaxPacketSize uint16

	// Descriptors enables standard request handling from this table.
	// When nil, standard requests are left to firmware.
	Descriptors *Descriptors

	// DebugBridge enables register access through vendor control requests.
	DebugBridge bool
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		MaxPacketSize0: DefaultMaxPacketSize0,
		MaxPacketSize:  DefaultMaxPacketSize,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.MaxPacketSize0 {
	case 8, 16, 32, 64:
	default:
		result = multierror.Append(result, fmt.Errorf("max packet size 0: %d: %w",
			c.MaxPacketSize0, pkg.ErrInvalidParameter))
	}
	if c.MaxPacketSize == 0 || c.MaxPacketSize > packet.MaxPayloadSize {
		result = multierror.Append(result, fmt.Errorf("max packet size: %d: %w",
			c.MaxPacketSize, pkg.ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

// Device is the device side of a full-speed USB link: it consumes host
// packets, answers with handshakes or data, and keeps per-endpoint state
// that firmware drives through the register interface.
//
// All methods are safe for concurrent use. Register writes issued while a
// transaction is in flight are applied when that transaction ends.
type Device struct {
	mutex  sync.Mutex
	config Config

	address uint8
	scratch uint32
	out     [NumEndpoints]*Endpoint
	in      [NumEndpoints]*Endpoint

	txn      transaction
	deferred []func()

	control  coordinator
	handlers []RequestHandler
	frames   packet.FrameTicker

	setup         SetupPacket
	setupPending  bool
	configuration uint8
	remoteWakeup  bool

	// Callbacks run after the device lock is released.
	events             []func()
	onSetup            func(setup SetupPacket)
	onSetAddress       func(address uint8)
	onSetConfiguration func(config uint8)
	onReset            func()
}

// NewDevice creates a device in its reset state.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.MaxPacketSize0 == 0 {
		cfg.MaxPacketSize0 = DefaultMaxPacketSize0
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{config: cfg}
	for n := range NumEndpoints {
		mps := cfg.MaxPacketSize
		if n == 0 {
			mps = cfg.MaxPacketSize0
		}
		d.out[n] = newEndpoint(EndpointAddress(uint8(n), false), mps)
		d.in[n] = newEndpoint(EndpointAddress(uint8(n), true), mps)
	}
	d.control.dev = d
	if cfg.Descriptors != nil {
		d.handlers = append(d.handlers, &standardHandler{dev: d, table: cfg.Descriptors})
	}
	if cfg.DebugBridge {
		d.handlers = append(d.handlers, &debugHandler{dev: d})
	}
	d.reset()
	return d, nil
}

// Config returns the configuration the device was created with.
func (d *Device) Config() Config {
	return d.config
}

// AddHandler appends a control request handler. Handlers run with the
// device lock held and must not call back into the Device.
func (d *Device) AddHandler(h RequestHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handlers = append(d.handlers, h)
}

// Reset returns the device to its power-on state, as on a bus reset.
func (d *Device) Reset() {
	d.mutex.Lock()
	d.reset()
	cb := d.onReset
	d.mutex.Unlock()
	if cb != nil {
		cb()
	}
}

func (d *Device) reset() {
	d.address = 0
	d.scratch = ScratchReset
	for n := range NumEndpoints {
		d.out[n].reset()
		d.in[n].reset()
	}
	d.txn = transaction{}
	d.deferred = nil
	d.control.reset()
	d.frames.Reset()
	d.setup = SetupPacket{}
	d.setupPending = false
	d.configuration = 0
	d.remoteWakeup = false
	pkg.LogDebug(pkg.ComponentEndpoint, "device reset")
}

// HandlePacket processes one packet from the host and returns the device's
// response, or nil when the device stays silent.
func (d *Device) HandlePacket(p packet.Packet) packet.Packet {
	d.mutex.Lock()
	var resp packet.Packet
	if !d.frames.Filter(p) {
		resp = d.step(p)
	}
	events := d.events
	d.events = nil
	d.mutex.Unlock()

	for _, fn := range events {
		fn()
	}
	return resp
}

// ReceiveLine decodes a line-level packet from the host and returns the
// encoded response, or nil. Undecodable lines are dropped.
func (d *Device) ReceiveLine(line wire.Line) wire.Line {
	p, err := packet.Decode(line)
	if err != nil {
		pkg.LogDebug(pkg.ComponentTransaction, "dropped packet", "error", err)
		return nil
	}
	resp := d.HandlePacket(p)
	if resp == nil {
		return nil
	}
	return packet.Encode(resp)
}

// Frame returns the last SOF frame number seen since reset.
func (d *Device) Frame() (uint16, bool) {
	return d.frames.Frame()
}

// Frames returns the number of SOF packets consumed since reset.
func (d *Device) Frames() uint64 {
	return d.frames.Count()
}

// ControlState returns the state of the control transfer coordinator.
func (d *Device) ControlState() ControlState {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.control.state
}

// Setup returns the most recent SETUP packet not yet cleared by firmware.
func (d *Device) Setup() (SetupPacket, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.setup, d.setupPending
}

// ClearSetup acknowledges the latched SETUP packet.
func (d *Device) ClearSetup() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.setupPending = false
}

// Configuration returns the value of the last SET_CONFIGURATION.
func (d *Device) Configuration() uint8 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.configuration
}

// Endpoint returns a copy of the state of the endpoint at addr.
func (d *Device) Endpoint(addr uint8) (EndpointState, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ep, err := d.endpoint(addr)
	if err != nil {
		return EndpointState{}, err
	}
	return ep.snapshot(), nil
}

// SetOnSetup sets the callback invoked when a SETUP packet is accepted.
func (d *Device) SetOnSetup(cb func(setup SetupPacket)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onSetup = cb
}

// SetOnSetAddress sets the callback invoked when a new address takes effect.
func (d *Device) SetOnSetAddress(cb func(address uint8)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onSetAddress = cb
}

// SetOnSetConfiguration sets the callback invoked on SET_CONFIGURATION.
func (d *Device) SetOnSetConfiguration(cb func(config uint8)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onSetConfiguration = cb
}

// SetOnReset sets the callback invoked after Reset.
func (d *Device) SetOnReset(cb func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onReset = cb
}

func (d *Device) notify(fn func()) {
	d.events = append(d.events, fn)
}

func (d *Device) endpoint(addr uint8) (*Endpoint, error) {
	if !validAddress(addr) {
		return nil, fmt.Errorf("endpoint 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
	}
	return d.endpointAt(endpointIndex(addr)), nil
}

func (d *Device) endpointAt(index int) *Endpoint {
	if index >= NumEndpoints {
		return d.in[index-NumEndpoints]
	}
	return d.out[index]
}

// apply runs fn now, or when the in-flight transaction ends.
func (d *Device) apply(fn func()) {
	if d.txn.active() {
		d.deferred = append(d.deferred, fn)
		return
	}
	fn()
}

func (d *Device) flush() {
	for len(d.deferred) > 0 {
		fn := d.deferred[0]
		d.deferred = d.deferred[1:]
		fn()
	}
	d.deferred = nil
}

// stallControl halts both directions of endpoint 0.
func (d *Device) stallControl() {
	d.out[0].halted = true
	d.in[0].halted = true
}
