package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/usbwire/pkg"
)

func TestDeviceDescriptorRoundTrip(t *testing.T) {
	want := []byte{0x12, 0x01, 0x10, 0x02, 0x02, 0x00, 0x00, 0x40, 0x09, 0x12, 0xB1, 0x70, 0x01, 0x01, 0x01, 0x02, 0x00, 0x01}
	var d DeviceDescriptor
	if err := ParseDeviceDescriptor(want, &d); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if d.VendorID != 0x1209 || d.ProductID != 0x70B1 || d.MaxPacketSize0 != 64 {
		t.Errorf("parsed %+v", d)
	}
	buf := make([]byte, DeviceDescriptorSize)
	if n := d.MarshalTo(buf); n != DeviceDescriptorSize || !bytes.Equal(buf, want) {
		t.Errorf("MarshalTo() = %d, % X", n, buf)
	}
}

func TestParseDeviceDescriptorErrors(t *testing.T) {
	var d DeviceDescriptor
	if err := ParseDeviceDescriptor(make([]byte, 4), &d); !errors.Is(err, pkg.ErrDescriptorTooShort) {
		t.Errorf("short: error = %v", err)
	}
	if err := ParseDeviceDescriptor(make([]byte, DeviceDescriptorSize), &d); !errors.Is(err, pkg.ErrDescriptorTypeMismatch) {
		t.Errorf("wrong type: error = %v", err)
	}
}

func TestStringDescriptors(t *testing.T) {
	table := NewDescriptors()
	table.SetLanguages(LangIDUSEnglish)
	table.SetString(1, "Fomu")

	tests := []struct {
		index uint8
		want  []byte
	}{
		{0, []byte{0x04, 0x03, 0x09, 0x04}},
		{1, []byte{0x0A, 0x03, 'F', 0, 'o', 0, 'm', 0, 'u', 0}},
	}
	for _, tt := range tests {
		got, ok := table.Get(DescriptorTypeString, tt.index)
		if !ok || !bytes.Equal(got, tt.want) {
			t.Errorf("string %d = % X, %v, want % X", tt.index, got, ok, tt.want)
		}
	}
	if _, ok := table.Get(DescriptorTypeString, 2); ok {
		t.Error("missing descriptor found")
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

func TestDescriptorsCopy(t *testing.T) {
	table := NewDescriptors()
	data := []byte{1, 2, 3}
	table.Set(DescriptorTypeHIDReport, 0, data)
	data[0] = 9
	got, _ := table.Get(DescriptorTypeHIDReport, 0)
	if got[0] != 1 {
		t.Error("table aliases caller's slice")
	}
}

func TestStringDescriptorTruncated(t *testing.T) {
	buf := make([]byte, 255)
	n := StringDescriptorTo(buf, string(bytes.Repeat([]byte{'x'}, 200)))
	if n != 254 || buf[0] != 254 {
		t.Errorf("length = %d, header %d", n, buf[0])
	}
	if StringDescriptorTo(make([]byte, 3), "ab") != 0 {
		t.Error("wrote into a short buffer")
	}
}

func TestBuildConfiguration(t *testing.T) {
	iface := make([]byte, InterfaceDescriptorSize)
	(&InterfaceDescriptor{Number: 0, NumEndpoints: 1, Class: 0x03, SubClass: 0x01, Protocol: 0x01}).MarshalTo(iface)
	ep := make([]byte, EndpointDescriptorSize)
	(&EndpointDescriptor{Address: 0x81, Attributes: EndpointTypeInterrupt, MaxPacketSize: 8, Interval: 10}).MarshalTo(ep)

	got := BuildConfiguration(1, 1, ConfigAttributeRemoteWakeup, 50, iface, ep)
	want := []byte{
		0x09, 0x02, 0x19, 0x00, 0x01, 0x01, 0x00, 0xA0, 0x32,
		0x09, 0x04, 0x00, 0x00, 0x01, 0x03, 0x01, 0x01, 0x00,
		0x07, 0x05, 0x81, 0x03, 0x08, 0x00, 0x0A,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildConfiguration() = % X, want % X", got, want)
	}
	if n := (&EndpointDescriptor{}).MarshalTo(make([]byte, 6)); n != 0 {
		t.Errorf("MarshalTo(short) = %d", n)
	}
}
