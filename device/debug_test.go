package device

import (
	"testing"

	"github.com/ardnew/usbwire/packet"
)

func TestDebugRead(t *testing.T) {
	h := newHarness(t, autoConfig(nil))
	h.must(h.dev.SetAddress(28))
	h.controlIn(28, DebugReadSetup(RegScratch), []byte{0x78, 0x56, 0x34, 0x12})
	h.controlIn(28, DebugReadSetup(RegAddress), []byte{28, 0, 0, 0})
	h.controlIn(28, DebugReadSetup(EndpointRegister(0x80, RegEndpointControl)), []byte{1, 0, 0, 0})
}

func TestDebugWrite(t *testing.T) {
	h := newHarness(t, autoConfig(nil))
	h.must(h.dev.SetAddress(28))
	h.must(h.dev.Enable(ep1In))

	h.setup(28, DebugWriteSetup(RegScratch))
	h.out(28, 0, packet.Data1, []byte{0x42, 0, 0, 0}, packet.Ack)
	// The status stage belongs to endpoint 0, not endpoint 1.
	h.in(28, 1, packet.Nak)
	h.in(28, 0, data1())

	if v, err := h.dev.Read(RegScratch); err != nil || v != 0x42 {
		t.Errorf("scratch = 0x%X, %v, want 0x42", v, err)
	}
}

func TestDebugWriteEndpointRegister(t *testing.T) {
	h := newHarness(t, autoConfig(nil))
	h.controlOut(0, DebugWriteSetup(EndpointRegister(ep1In, RegEndpointControl)), []byte{1, 0, 0, 0})
	if !h.state(ep1In).Enabled {
		t.Error("EP1 IN not enabled through the debug bridge")
	}
}

func TestDebugErrorsStall(t *testing.T) {
	tests := []struct {
		name  string
		setup SetupPacket
	}{
		{"unknown register", DebugReadSetup(0x0FFC)},
		{"wrong length", SetupPacket{RequestType: RequestTypeDebugRead, Value: 4, Length: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, autoConfig(nil))
			h.setup(0, tt.setup)
			h.in(0, 0, packet.Stall)
		})
	}
}
