package device

import (
	"testing"

	"github.com/ardnew/usbwire/packet"
)

// harness plays the host against a Device one packet at a time.
type harness struct {
	t   *testing.T
	dev *Device
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	dev, err := NewDevice(cfg)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return &harness{t: t, dev: dev}
}

func describe(p packet.Packet) string {
	if p == nil {
		return "<none>"
	}
	return p.String()
}

// send delivers p and checks the device's response against want (nil for silence).
func (h *harness) send(p, want packet.Packet) {
	h.t.Helper()
	got := h.dev.HandlePacket(p)
	if describe(got) != describe(want) {
		h.t.Fatalf("%s: response = %s, want %s", describe(p), describe(got), describe(want))
	}
}

func (h *harness) setup(addr uint8, s SetupPacket) {
	h.t.Helper()
	h.send(packet.NewToken(packet.PIDSetup, addr, 0), nil)
	h.send(packet.NewData(packet.Data0, s.Bytes()), packet.Ack)
}

// in sends an IN token and, when the device answers with data, acknowledges it.
func (h *harness) in(addr, ep uint8, want packet.Packet) {
	h.t.Helper()
	h.send(packet.NewToken(packet.PIDIn, addr, ep), want)
	if _, ok := want.(*packet.Data); ok {
		h.send(packet.Ack, nil)
	}
}

func (h *harness) out(addr, ep uint8, toggle packet.Toggle, payload []byte, want packet.Packet) {
	h.t.Helper()
	h.send(packet.NewToken(packet.PIDOut, addr, ep), nil)
	h.send(packet.NewData(toggle, payload), want)
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) state(addr uint8) EndpointState {
	h.t.Helper()
	st, err := h.dev.Endpoint(addr)
	h.must(err)
	return st
}

func (h *harness) expectControl(want ControlState) {
	h.t.Helper()
	if got := h.dev.ControlState(); got != want {
		h.t.Fatalf("ControlState() = %v, want %v", got, want)
	}
}

func data0(b ...byte) packet.Packet { return packet.NewData(packet.Data0, b) }
func data1(b ...byte) packet.Packet { return packet.NewData(packet.Data1, b) }

// controlIn runs a complete IN control transfer and checks the reply.
func (h *harness) controlIn(addr uint8, s SetupPacket, want []byte) {
	h.t.Helper()
	h.setup(addr, s)
	mps := int(h.dev.Config().MaxPacketSize0)
	toggle := packet.Data1
	var got []byte
	for {
		rest := want[len(got):]
		n := min(len(rest), mps)
		h.in(addr, 0, packet.NewData(toggle, rest[:n]))
		got = append(got, rest[:n]...)
		toggle = toggle.Next()
		if n < mps || len(got) >= int(s.Length) {
			break
		}
	}
	h.out(addr, 0, packet.Data1, nil, packet.Ack)
}

// controlOut runs a complete OUT control transfer.
func (h *harness) controlOut(addr uint8, s SetupPacket, data []byte) {
	h.t.Helper()
	h.setup(addr, s)
	mps := int(h.dev.Config().MaxPacketSize0)
	toggle := packet.Data1
	for len(data) > 0 {
		n := min(len(data), mps)
		h.out(addr, 0, toggle, data[:n], packet.Ack)
		data = data[n:]
		toggle = toggle.Next()
	}
	h.in(addr, 0, data1())
}
