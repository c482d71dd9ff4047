package device

import (
	"testing"

	"github.com/ardnew/usbwire/packet"
)

func TestStandardDeviceStatus(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	h.controlIn(0, GetStatusSetup(RequestRecipientDevice, 0), []byte{0, 0})
	h.controlOut(0, FeatureSetup(true, RequestRecipientDevice, FeatureDeviceRemoteWakeup, 0), nil)
	h.controlIn(0, GetStatusSetup(RequestRecipientDevice, 0), []byte{2, 0})
	h.controlOut(0, FeatureSetup(false, RequestRecipientDevice, FeatureDeviceRemoteWakeup, 0), nil)
	h.controlIn(0, GetStatusSetup(RequestRecipientDevice, 0), []byte{0, 0})
}

func TestStandardEndpointHalt(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	h.must(h.dev.Enable(ep1In))
	h.must(h.dev.SetResponse(ep1In, ResponseACK))
	h.must(h.dev.SetData(ep1In, []byte{7}))
	h.in(0, 1, data1(7))

	h.controlOut(0, FeatureSetup(true, RequestRecipientEndpoint, FeatureEndpointHalt, ep1In), nil)
	h.in(0, 1, packet.Stall)
	h.controlIn(0, GetStatusSetup(RequestRecipientEndpoint, ep1In), []byte{1, 0})

	h.controlOut(0, FeatureSetup(false, RequestRecipientEndpoint, FeatureEndpointHalt, ep1In), nil)
	h.controlIn(0, GetStatusSetup(RequestRecipientEndpoint, ep1In), []byte{0, 0})

	// Clearing the halt restarts the toggle sequence.
	h.must(h.dev.SetData(ep1In, []byte{8}))
	h.in(0, 1, data1(8))
}

func TestStandardConfiguration(t *testing.T) {
	table := NewDescriptors()
	h := newHarness(t, autoConfig(table))
	var got []uint8
	h.dev.SetOnSetConfiguration(func(c uint8) { got = append(got, c) })

	h.controlIn(0, GetConfigurationSetup(), []byte{0})

	// No configuration descriptor yet.
	h.setup(0, SetConfigurationSetup(1))
	h.in(0, 0, packet.Stall)

	table.Set(DescriptorTypeConfiguration, 0, []byte{0x09, 0x02, 0x09, 0x00, 0x00, 0x01, 0x00, 0x80, 0x32})
	h.controlOut(0, SetConfigurationSetup(1), nil)
	h.controlIn(0, GetConfigurationSetup(), []byte{1})
	if h.dev.Configuration() != 1 || len(got) != 1 || got[0] != 1 {
		t.Errorf("Configuration() = %d, callbacks %v", h.dev.Configuration(), got)
	}
}

func TestStandardUnsupportedStalls(t *testing.T) {
	tests := []struct {
		name  string
		setup SetupPacket
	}{
		{"SET_DESCRIPTOR", SetupPacket{RequestType: 0x00, Request: RequestSetDescriptor, Value: 0x0100}},
		{"other recipient", SetupPacket{RequestType: 0x03, Request: RequestSetFeature}},
		{"device halt", FeatureSetup(true, RequestRecipientDevice, FeatureEndpointHalt, 0)},
		{"bad address", SetAddressSetup(0x80)},
		{"bad endpoint", GetStatusSetup(RequestRecipientEndpoint, 0x21)},
		{"alternate setting", SetupPacket{RequestType: 0x01, Request: RequestSetInterface, Value: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, autoConfig(NewDescriptors()))
			h.setup(0, tt.setup)
			h.in(0, 0, packet.Stall)
		})
	}
}

func TestStandardInterfaceRequests(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	h.controlIn(0, GetStatusSetup(RequestRecipientInterface, 0), []byte{0, 0})
	h.controlIn(0, SetupPacket{RequestType: 0x81, Request: RequestGetInterface, Length: 1}, []byte{0})
	h.controlOut(0, SetupPacket{RequestType: 0x01, Request: RequestSetInterface}, nil)
}

func TestStandardInterfaceDescriptor(t *testing.T) {
	table := NewDescriptors()
	table.Set(DescriptorTypeHIDReport, 1, []byte{0x05, 0x01, 0xC0})
	h := newHarness(t, autoConfig(table))
	setup := SetupPacket{RequestType: 0x81, Request: RequestGetDescriptor, Value: 0x2200, Index: 1, Length: 0x40}
	h.controlIn(0, setup, []byte{0x05, 0x01, 0xC0})

	setup.Index = 0
	h.setup(0, setup)
	h.in(0, 0, packet.Stall)
}

func TestStandardSynchFrame(t *testing.T) {
	h := newHarness(t, autoConfig(NewDescriptors()))
	h.send(&packet.SOF{Frame: 0x0512}, nil)
	h.controlIn(0, SetupPacket{RequestType: 0x82, Request: RequestSynchFrame, Index: 0x81, Length: 2}, []byte{0x12, 0x05})
}
