package device

import (
	"bytes"
	"testing"

	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
)

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func autoConfig(table *Descriptors) Config {
	cfg := DefaultConfig()
	cfg.Descriptors = table
	cfg.DebugBridge = true
	return cfg
}

func TestControlInTruncated(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeDeviceQualifier, 0, seq(12))
	h := newHarness(t, autoConfig(table))
	h.must(h.dev.SetAddress(20))

	h.setup(20, SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0600, Length: 10})
	h.expectControl(ControlDataStage)
	h.in(20, 0, data1(0, 1, 2, 3, 4, 5, 6, 7))
	h.in(20, 0, data0(8, 9))
	h.expectControl(ControlStatusStage)
	h.out(20, 0, packet.Data1, nil, packet.Ack)
	h.expectControl(ControlAwaitSetup)
}

func TestControlInTermination(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		length uint16
	}{
		{"short packet", 18, 64},
		{"zero length packet", 16, 64},
		{"exact length", 16, 16},
		{"single packet", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewDescriptors()
			table.Set(DescriptorTypeString, 1, seq(tt.size))
			h := newHarness(t, autoConfig(table))
			h.controlIn(0, GetDescriptorSetup(DescriptorTypeString, 1, tt.length), seq(tt.size))
			h.expectControl(ControlAwaitSetup)
		})
	}
}

func TestControlInExtraTokenStalls(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeString, 1, seq(16))
	h := newHarness(t, autoConfig(table))

	h.setup(0, GetDescriptorSetup(DescriptorTypeString, 1, 16))
	h.in(0, 0, data1(seq(8)...))
	h.in(0, 0, data0(seq(16)[8:]...))
	h.expectControl(ControlStatusStage)

	// The data stage is over; another IN is out of sequence.
	h.in(0, 0, packet.Stall)
	h.expectControl(ControlAwaitSetup)
	h.out(0, 0, packet.Data1, nil, packet.Stall)

	// A new SETUP recovers the pipe.
	h.controlIn(0, GetDescriptorSetup(DescriptorTypeString, 1, 2), seq(2))
}

func TestControlEarlyStatus(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeDevice, 0, seq(18))
	h := newHarness(t, autoConfig(table))

	h.setup(0, GetDescriptorSetup(DescriptorTypeDevice, 0, 64))
	h.in(0, 0, data1(seq(8)...))
	h.out(0, 0, packet.Data1, nil, packet.Ack)
	h.expectControl(ControlAwaitSetup)
	if h.state(0x80).Pending {
		t.Error("queued IN data survived early status")
	}
}

func TestControlMissingDescriptorStalls(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeDevice, 0, seq(18))
	h := newHarness(t, autoConfig(table))

	h.setup(0, GetDescriptorSetup(DescriptorTypeString, 5, 255))
	h.in(0, 0, packet.Stall)
	h.in(0, 0, packet.Stall)
	h.controlIn(0, GetDescriptorSetup(DescriptorTypeDevice, 0, 18), seq(18))
}

func TestControlSetAddress(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	var committed []uint8
	h.dev.SetOnSetAddress(func(addr uint8) { committed = append(committed, addr) })

	h.setup(0, SetAddressSetup(11))
	h.expectControl(ControlStatusStage)
	if h.dev.Address() != 0 {
		t.Fatal("address changed before status stage")
	}
	h.in(0, 0, data1())
	if h.dev.Address() != 11 {
		t.Fatalf("Address() = %d, want 11", h.dev.Address())
	}
	if len(committed) != 1 || committed[0] != 11 {
		t.Errorf("callback addresses = %v", committed)
	}

	h.send(packet.NewToken(packet.PIDIn, 0, 0), nil)
	h.in(11, 0, packet.Nak)
}

func TestControlSetAddressStatusAtNewAddress(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	h.must(h.dev.SetAddress(20))
	h.setup(20, SetAddressSetup(11))
	h.in(11, 0, data1())
	if h.dev.Address() != 11 {
		t.Fatalf("Address() = %d, want 11", h.dev.Address())
	}
}

// recorder accepts vendor requests and records OUT data.
type recorder struct {
	reply []byte
	err   error
	got   [][]byte
}

func (r *recorder) Accepts(setup *SetupPacket) bool {
	return setup.Type() == RequestTypeVendor && setup.Recipient() == RequestRecipientDevice
}

func (r *recorder) HandleSetup(setup *SetupPacket, data []byte) ([]byte, error) {
	r.got = append(r.got, append([]byte{}, data...))
	return r.reply, r.err
}

func TestControlOutMultiPacket(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	rec := &recorder{}
	h.dev.AddHandler(rec)

	payload := seq(12)
	h.controlOut(0, SetupPacket{RequestType: 0x40, Request: 0x01, Length: 12}, payload)
	h.expectControl(ControlAwaitSetup)
	if len(rec.got) != 1 || !bytes.Equal(rec.got[0], payload) {
		t.Errorf("handler data = %v, want % X", rec.got, payload)
	}
	if h.state(0x00).Pending {
		t.Error("coordinator left OUT data on endpoint 0")
	}
}

func TestControlOutHandlerErrorStalls(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.dev.AddHandler(&recorder{err: pkg.ErrInvalidRequest})

	h.setup(0, SetupPacket{RequestType: 0x40, Request: 0x01, Length: 2})
	h.out(0, 0, packet.Data1, []byte{1, 2}, packet.Ack)
	h.in(0, 0, packet.Stall)
	h.expectControl(ControlAwaitSetup)
}

func TestControlOutSequenceError(t *testing.T) {
	h := newHarness(t, autoConfig(nil))
	h.setup(0, DebugWriteSetup(RegScratch))
	h.in(0, 0, packet.Stall)
	h.expectControl(ControlAwaitSetup)
	h.out(0, 0, packet.Data1, nil, packet.Stall)

	h.controlOut(0, DebugWriteSetup(RegScratch), []byte{1, 0, 0, 0})
	if v, _ := h.dev.Read(RegScratch); v != 1 {
		t.Errorf("scratch = %d, want 1", v)
	}
}

func TestControlFirmwareManaged(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.must(h.dev.SetAddress(22))

	var seen []SetupPacket
	h.dev.SetOnSetup(func(s SetupPacket) { seen = append(seen, s) })

	h.setup(22, GetDescriptorSetup(DescriptorTypeString, 0, 64))
	h.expectControl(ControlDataStage)
	if len(seen) != 1 || seen[0].Length != 64 {
		t.Fatalf("OnSetup saw %v", seen)
	}

	h.in(22, 0, packet.Nak)
	h.must(h.dev.SetData(0x80, []byte{4, 3, 9, 4}))
	h.must(h.dev.SetResponse(0x80, ResponseACK))
	h.in(22, 0, data1(4, 3, 9, 4))
	h.expectControl(ControlStatusStage)

	h.out(22, 0, packet.Data1, nil, packet.Nak)
	h.must(h.dev.SetResponse(0x00, ResponseACK))
	h.out(22, 0, packet.Data1, nil, packet.Ack)
	h.expectControl(ControlAwaitSetup)
}

func TestControlSetupAbortsTransfer(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeDevice, 0, seq(18))
	h := newHarness(t, autoConfig(table))

	h.setup(0, GetDescriptorSetup(DescriptorTypeDevice, 0, 64))
	h.in(0, 0, data1(seq(8)...))
	h.controlIn(0, GetDescriptorSetup(DescriptorTypeDevice, 0, 18), seq(18))
}

func TestControlDisableAborts(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.setup(0, GetDescriptorSetup(DescriptorTypeDevice, 0, 64))
	h.expectControl(ControlDataStage)

	h.must(h.dev.Disable(0x80))
	h.expectControl(ControlAwaitSetup)
	h.in(0, 0, nil)
}

func TestControlRequestHandlerOrder(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	rec := &recorder{reply: []byte{0xEE}}
	h.dev.AddHandler(rec)

	// Standard requests are claimed before later handlers see them.
	h.controlIn(0, GetConfigurationSetup(), []byte{0})
	if len(rec.got) != 0 {
		t.Fatal("vendor handler saw a standard request")
	}
	h.controlIn(0, SetupPacket{RequestType: 0xC0, Request: 0x10, Length: 1}, []byte{0xEE})
	if len(rec.got) != 1 {
		t.Fatalf("vendor handler calls = %d", len(rec.got))
	}
}

func TestControlStateString(t *testing.T) {
	tests := []struct {
		state ControlState
		want  string
	}{
		{ControlAwaitSetup, "AwaitSetup"},
		{ControlDataStage, "DataStage"},
		{ControlStatusStage, "StatusStage"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
