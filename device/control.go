package device

import (
	"github.com/ardnew/usbwire/pkg"
)

// RequestHandler answers control requests on endpoint 0.
//
// Accepts reports whether the handler owns the request. HandleSetup is
// called once per transfer: for IN transfers with data nil, returning the
// reply; for OUT transfers after the data stage with the received bytes;
// for transfers without a data stage with data nil. A non-nil error stalls
// the control pipe.
type RequestHandler interface {
	Accepts(setup *SetupPacket) bool
	HandleSetup(setup *SetupPacket, data []byte) ([]byte, error)
}

// coordinator sequences control transfers over endpoint 0. When a handler
// accepts the request the coordinator drives the endpoint 0 buffers itself;
// otherwise it only tracks stages and firmware moves the data.
type coordinator struct {
	dev *Device

	state     ControlState
	setup     SetupPacket
	in        bool // data stage direction
	remaining int
	handler   RequestHandler
	reply     []byte
	data      []byte

	newAddress int // -1 when no SET_ADDRESS is pending
}

func (c *coordinator) reset() {
	c.state = ControlAwaitSetup
	c.setup = SetupPacket{}
	c.in = false
	c.remaining = 0
	c.handler = nil
	c.reply = nil
	c.data = nil
	c.newAddress = -1
}

func (c *coordinator) auto() bool {
	return c.handler != nil
}

func (c *coordinator) mps() int {
	return int(c.dev.config.MaxPacketSize0)
}

// answersTo reports whether addr is the pending SET_ADDRESS target, which
// the device accepts alongside its current address during the status stage.
func (c *coordinator) answersTo(addr uint8) bool {
	return c.state == ControlStatusStage && c.newAddress >= 0 && uint8(c.newAddress) == addr
}

// allows reports whether an endpoint 0 token in direction in is legal now.
func (c *coordinator) allows(in bool) bool {
	switch c.state {
	case ControlDataStage:
		// OUT during an IN data stage is an early status stage.
		return c.in || !in
	case ControlStatusStage:
		return in != c.in
	}
	return true
}

// begin starts a new transfer for a freshly received SETUP packet.
func (c *coordinator) begin(setup *SetupPacket) {
	d := c.dev
	if c.state != ControlAwaitSetup {
		pkg.LogDebug(pkg.ComponentControl, "SETUP aborted transfer", "state", c.state.String())
	}
	c.reset()
	c.setup = *setup
	c.in = setup.IsDeviceToHost()
	c.remaining = int(setup.Length)
	if setup.Length == 0 {
		c.in = false
		c.state = ControlStatusStage
	} else {
		c.state = ControlDataStage
	}
	for _, h := range d.handlers {
		if h.Accepts(setup) {
			c.handler = h
			break
		}
	}
	pkg.LogDebug(pkg.ComponentControl, "SETUP", "request", setup.String(),
		"state", c.state.String(), "auto", c.auto())
	if !c.auto() {
		return
	}

	d.in[0].clearPending()
	d.out[0].clearPending()
	switch {
	case setup.Length == 0:
		if _, err := c.handler.HandleSetup(&c.setup, nil); err != nil {
			c.fail(err)
			return
		}
		d.in[0].arm(nil)
	case c.in:
		reply, err := c.handler.HandleSetup(&c.setup, nil)
		if err != nil {
			c.fail(err)
			return
		}
		if len(reply) > c.remaining {
			reply = reply[:c.remaining]
		}
		c.reply = append([]byte{}, reply...)
		c.queue()
		d.out[0].armReceive()
	default:
		d.out[0].armReceive()
	}
}

// queue arms the next IN data packet, which may be empty.
func (c *coordinator) queue() {
	n := min(len(c.reply), c.mps())
	c.dev.in[0].arm(c.reply[:n])
	c.reply = c.reply[n:]
}

// sent is called when the host ACKs n bytes of IN data on endpoint 0.
func (c *coordinator) sent(n int) {
	switch c.state {
	case ControlDataStage:
		c.remaining -= n
		if n < c.mps() || c.remaining <= 0 {
			c.state = ControlStatusStage
			pkg.LogDebug(pkg.ComponentControl, "IN data stage complete")
			return
		}
		if c.auto() {
			c.queue()
		}
	case ControlStatusStage:
		c.complete()
	}
}

// received is called when endpoint 0 OUT accepts new data.
func (c *coordinator) received(payload []byte) {
	d := c.dev
	switch c.state {
	case ControlDataStage:
		if c.in {
			if len(payload) != 0 {
				c.fail(pkg.ErrProtocolSequence)
				return
			}
			// Early status: the host ends the IN data stage.
			d.in[0].clearPending()
			c.consume()
			c.complete()
			return
		}
		c.data = append(c.data, payload...)
		c.remaining -= len(payload)
		c.consume()
		if len(payload) == c.mps() && c.remaining > 0 {
			return
		}
		c.state = ControlStatusStage
		pkg.LogDebug(pkg.ComponentControl, "OUT data stage complete", "length", len(c.data))
		if !c.auto() {
			return
		}
		if _, err := c.handler.HandleSetup(&c.setup, c.data); err != nil {
			c.fail(err)
			return
		}
		d.in[0].arm(nil)
	case ControlStatusStage:
		c.consume()
		c.complete()
	}
}

// consume drops endpoint 0 OUT data the coordinator has taken.
func (c *coordinator) consume() {
	if c.auto() {
		c.dev.out[0].clearPending()
	}
}

func (c *coordinator) complete() {
	d := c.dev
	if c.newAddress >= 0 {
		d.address = uint8(c.newAddress)
		if cb := d.onSetAddress; cb != nil {
			addr := d.address
			d.notify(func() { cb(addr) })
		}
		pkg.LogDebug(pkg.ComponentControl, "address committed", "address", d.address)
	}
	pkg.LogDebug(pkg.ComponentControl, "transfer complete", "request", c.setup.String())
	c.reset()
}

// fail stalls endpoint 0 until the next SETUP.
func (c *coordinator) fail(err error) {
	pkg.LogDebug(pkg.ComponentControl, "control stall", "request", c.setup.String(), "error", err)
	c.dev.stallControl()
	c.reset()
}

// abort ends the transfer without completing it.
func (c *coordinator) abort() {
	if c.state != ControlAwaitSetup {
		pkg.LogDebug(pkg.ComponentControl, "transfer aborted", "state", c.state.String())
	}
	c.reset()
}
