package device

import (
	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

// phase is the position within a token/data/handshake transaction.
type phase uint8

const (
	phaseIdle        phase = iota
	phaseSetupData         // SETUP token accepted, awaiting DATA0
	phaseOutData           // OUT token accepted, awaiting DATA
	phaseInHandshake       // IN data sent, awaiting host handshake
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseSetupData:
		return "setup-data"
	case phaseOutData:
		return "out-data"
	case phaseInHandshake:
		return "in-handshake"
	default:
		return "unknown"
	}
}

type transaction struct {
	phase phase
	ep    *Endpoint
	sent  int  // IN payload length awaiting ACK
	stall bool // OUT data is answered with STALL
}

func (t *transaction) active() bool {
	return t.phase != phaseIdle
}

// step advances the transaction state machine by one packet.
func (d *Device) step(p packet.Packet) packet.Packet {
	switch p := p.(type) {
	case *packet.Token:
		if d.txn.active() {
			pkg.LogDebug(pkg.ComponentTransaction, "transaction abandoned",
				"endpoint", d.txn.ep.String(), "phase", d.txn.phase.String())
			d.finish()
		}
		resp := d.token(p)
		if !d.txn.active() {
			d.flush()
		}
		return resp
	case *packet.Data:
		resp := d.data(p)
		d.finish()
		return resp
	case *packet.Handshake:
		d.handshake(p)
		d.finish()
	}
	return nil
}

func (d *Device) finish() {
	d.txn = transaction{}
	d.flush()
}

// addressed reports whether the device answers to addr.
func (d *Device) addressed(addr uint8) bool {
	return addr == d.address || d.control.answersTo(addr)
}

func (d *Device) token(t *packet.Token) packet.Packet {
	if !d.addressed(t.Address) {
		return nil
	}
	if t.Type == packet.PIDSetup {
		return d.setupToken(t)
	}

	in := t.Type == packet.PIDIn
	var ep *Endpoint
	if in {
		ep = d.in[t.Endpoint&0x0F]
	} else {
		ep = d.out[t.Endpoint&0x0F]
	}
	if !ep.enabled {
		pkg.LogDebug(pkg.ComponentTransaction, "token for disabled endpoint", "endpoint", ep.String())
		return nil
	}
	stall := ep.halted
	if ep.IsControl() && !d.control.allows(in) {
		d.control.fail(pkg.ErrProtocolSequence)
		stall = true
	}
	if !in {
		// The handshake for an OUT follows its data packet.
		d.txn = transaction{phase: phaseOutData, ep: ep, stall: stall}
		return nil
	}
	if stall {
		return packet.Stall
	}
	if ep.response == ResponseNAK || !ep.pending {
		return packet.Nak
	}
	payload := append([]byte{}, ep.buffer...)
	d.txn = transaction{phase: phaseInHandshake, ep: ep, sent: len(payload)}
	pkg.LogDebug(pkg.ComponentTransaction, "IN data", "endpoint", ep.String(),
		"toggle", ep.toggle.Next().String(), "length", len(payload))
	return packet.NewData(ep.toggle.Next(), payload)
}

func (d *Device) setupToken(t *packet.Token) packet.Packet {
	if t.Endpoint != 0 {
		pkg.LogDebug(pkg.ComponentTransaction, "SETUP to non-control endpoint", "endpoint", t.Endpoint)
		return nil
	}
	ep := d.out[0]
	if !ep.enabled {
		return nil
	}
	// SETUP clears a control pipe stall before its data packet arrives.
	d.out[0].halted = false
	d.in[0].halted = false
	d.txn = transaction{phase: phaseSetupData, ep: ep}
	return nil
}

func (d *Device) data(p *packet.Data) packet.Packet {
	switch d.txn.phase {
	case phaseSetupData:
		return d.setupData(p)
	case phaseOutData:
		return d.outData(d.txn.ep, p, d.txn.stall)
	default:
		pkg.LogDebug(pkg.ComponentTransaction, "stray data packet", "pid", p.Type.String())
		return nil
	}
}

func (d *Device) setupData(p *packet.Data) packet.Packet {
	if _, ok := packet.ToggleOf(p.Type); !ok {
		return nil
	}
	var setup SetupPacket
	if err := ParseSetupPacket(p.Payload, &setup); err != nil {
		pkg.LogDebug(pkg.ComponentTransaction, "dropped SETUP data", "error", err)
		return nil
	}
	d.out[0].toggle = packet.Data0
	d.in[0].toggle = packet.Data0
	d.setup = setup
	d.setupPending = true
	if cb := d.onSetup; cb != nil {
		d.notify(func() { cb(setup) })
	}
	d.control.begin(&setup)
	return packet.Ack
}

func (d *Device) outData(ep *Endpoint, p *packet.Data, stall bool) packet.Packet {
	toggle, ok := packet.ToggleOf(p.Type)
	if !ok {
		return nil
	}
	if len(p.Payload) > int(ep.maxPacketSize) {
		pkg.LogDebug(pkg.ComponentTransaction, "babble", "endpoint", ep.String(), "length", len(p.Payload))
		return nil
	}
	if stall {
		return packet.Stall
	}
	if ep.response == ResponseNAK {
		return packet.Nak
	}
	if toggle == ep.toggle {
		// Host missed our ACK and retried.
		pkg.LogDebug(pkg.ComponentTransaction, "duplicate OUT data", "endpoint", ep.String(), "toggle", toggle.String())
		return packet.Ack
	}
	if ep.pending {
		return packet.Nak
	}
	ep.setData(p.Payload)
	ep.toggle = toggle
	if ep.IsControl() {
		d.control.received(p.Payload)
	}
	return packet.Ack
}

func (d *Device) handshake(h *packet.Handshake) {
	if d.txn.phase != phaseInHandshake {
		return
	}
	if h.Type != packet.PIDAck {
		pkg.LogDebug(pkg.ComponentTransaction, "ignored host handshake", "pid", h.Type.String())
		return
	}
	ep := d.txn.ep
	ep.toggle = ep.toggle.Next()
	ep.clearPending()
	if ep.IsControl() {
		d.control.sent(d.txn.sent)
	}
}
