package host

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/device/hal/loop"
	"github.com/ardnew/usbwire/packet"
	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/wire"
)

var testDeviceDescriptor = device.DeviceDescriptor{
	USBVersion:        0x0200,
	MaxPacketSize0:    8,
	VendorID:          0x1209,
	ProductID:         0x70B1,
	DeviceVersion:     0x0101,
	ManufacturerIndex: 1,
	ProductIndex:      2,
	NumConfigurations: 1,
}

var testConfiguration = []byte{
	0x09, 0x02, 0x12, 0x00, 0x01, 0x01, 0x00, 0x80, 0x32,
	0x09, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00,
}

func newTestDevice(t *testing.T) *device.Device {
	t.Helper()
	descs := device.NewDescriptors()
	descs.SetDevice(&testDeviceDescriptor)
	descs.Set(device.DescriptorTypeConfiguration, 0, testConfiguration)
	descs.SetLanguages(device.LangIDUSEnglish)
	descs.SetString(1, "usbwire")
	descs.SetString(2, "loop")

	cfg := device.DefaultConfig()
	cfg.Descriptors = descs
	cfg.DebugBridge = true
	dev, err := device.NewDevice(cfg)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return dev
}

func deviceDescriptorBytes() []byte {
	var buf [device.DeviceDescriptorSize]byte
	testDeviceDescriptor.MarshalTo(buf[:])
	return buf[:]
}

func TestDirectSilence(t *testing.T) {
	dev := newTestDevice(t)
	bus := NewDirect(dev)
	ctx := context.Background()

	if _, err := bus.Receive(ctx); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Receive() error = %v, want ErrTimeout", err)
	}
	// EP0 OUT token draws no response.
	if err := bus.Send(ctx, packet.Encode(packet.NewToken(packet.PIDOut, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Receive(ctx); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Receive() error = %v, want ErrTimeout", err)
	}
}

func TestDirectQueuesResponses(t *testing.T) {
	dev := newTestDevice(t)
	bus := NewDirect(dev)
	ctx := context.Background()

	for range 2 {
		if err := bus.Send(ctx, packet.Encode(packet.NewToken(packet.PIDIn, 0, 0))); err != nil {
			t.Fatal(err)
		}
	}
	for i := range 2 {
		line, err := bus.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() #%d error = %v", i, err)
		}
		p, err := packet.Decode(line)
		if err != nil || p.PID() != packet.PIDNak {
			t.Errorf("response #%d = %v, %v, want NAK", i, p, err)
		}
	}
}

func TestControlIn(t *testing.T) {
	tests := []struct {
		name   string
		setup  device.SetupPacket
		want   []byte
		packet int
	}{
		{
			name:  "device descriptor",
			setup: device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 64),
			want:  deviceDescriptorBytes(),
		},
		{
			name:  "truncated",
			setup: device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 10),
			want:  deviceDescriptorBytes()[:10],
		},
		{
			name:  "zero length terminated",
			setup: device.GetDescriptorSetup(device.DescriptorTypeString, 1, 255),
			want: []byte{
				0x10, 0x03, 'u', 0, 's', 0, 'b', 0, 'w', 0, 'i', 0, 'r', 0, 'e', 0,
			},
		},
		{
			name:  "debug read",
			setup: device.DebugReadSetup(device.RegScratch),
			want:  []byte{0x78, 0x56, 0x34, 0x12},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(NewDirect(newTestDevice(t)))
			got, err := h.ControlIn(context.Background(), 0, tt.setup)
			if err != nil {
				t.Fatalf("ControlIn() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ControlIn() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestControlInMissingDescriptor(t *testing.T) {
	h := New(NewDirect(newTestDevice(t)))
	_, err := h.ControlIn(context.Background(), 0, device.GetDescriptorSetup(device.DescriptorTypeHIDReport, 0, 64))
	if !errors.Is(err, pkg.ErrStall) {
		t.Errorf("ControlIn() error = %v, want ErrStall", err)
	}
}

func TestControlOut(t *testing.T) {
	dev := newTestDevice(t)
	h := New(NewDirect(dev))
	ctx := context.Background()

	if err := h.ControlOut(ctx, 0, device.SetAddressSetup(11), nil); err != nil {
		t.Fatalf("ControlOut(SET_ADDRESS) error = %v", err)
	}
	if got := dev.Address(); got != 11 {
		t.Fatalf("Address() = %d, want 11", got)
	}
	if err := h.ControlOut(ctx, 11, device.DebugWriteSetup(device.RegScratch), []byte{0x42, 0, 0, 0}); err != nil {
		t.Fatalf("ControlOut(debug write) error = %v", err)
	}
	if got, err := dev.Read(device.RegScratch); err != nil || got != 0x42 {
		t.Errorf("scratch = 0x%X, %v, want 0x42", got, err)
	}
	err := h.ControlOut(ctx, 11, device.DebugWriteSetup(device.RegScratch), []byte{1})
	if !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("ControlOut() with short data error = %v, want ErrInvalidParameter", err)
	}
}

func TestInOutHandshakes(t *testing.T) {
	dev := newTestDevice(t)
	h := New(NewDirect(dev), WithRetries(0))
	ctx := context.Background()
	ep1in := device.EndpointAddress(1, true)
	ep1out := device.EndpointAddress(1, false)
	for _, addr := range []uint8{ep1in, ep1out} {
		if err := dev.Enable(addr); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := h.In(ctx, 0, 1); !errors.Is(err, pkg.ErrNAK) {
		t.Errorf("In() on NAK endpoint error = %v, want ErrNAK", err)
	}
	if err := dev.SetData(ep1in, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetResponse(ep1in, device.ResponseACK); err != nil {
		t.Fatal(err)
	}
	d, err := h.InRetry(ctx, 0, 1)
	if err != nil {
		t.Fatalf("InRetry() error = %v", err)
	}
	if d.Type != packet.PIDData1 || !bytes.Equal(d.Payload, []byte{1, 2}) {
		t.Errorf("InRetry() = %s, want DATA1 [01 02]", d)
	}

	if err := dev.SetResponse(ep1out, device.ResponseStall); err != nil {
		t.Fatal(err)
	}
	if err := h.Out(ctx, 0, 1, packet.Data1, []byte{3}); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("Out() on stalled endpoint error = %v, want ErrStall", err)
	}
}

func TestExpect(t *testing.T) {
	dev := newTestDevice(t)
	h := New(NewDirect(dev))
	ctx := context.Background()
	ep1in := device.EndpointAddress(1, true)
	if err := dev.Enable(ep1in); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetData(ep1in, []byte{9}); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetResponse(ep1in, device.ResponseACK); err != nil {
		t.Fatal(err)
	}

	if err := h.SendToken(ctx, packet.PIDIn, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := h.ExpectData(ctx, packet.Data0, []byte{9}); !errors.Is(err, pkg.ErrDataMismatch) {
		t.Errorf("ExpectData(DATA0) error = %v, want ErrDataMismatch", err)
	}

	// Device at another address stays silent.
	if err := h.SendToken(ctx, packet.PIDIn, 5, 1); err != nil {
		t.Fatal(err)
	}
	if err := h.ExpectTimeout(ctx); err != nil {
		t.Errorf("ExpectTimeout() error = %v", err)
	}
	if err := h.ExpectAck(ctx); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("ExpectAck() on silence error = %v, want ErrTimeout", err)
	}

	if err := h.SendToken(ctx, packet.PIDIn, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := h.ExpectNak(ctx); !errors.Is(err, pkg.ErrUnexpectedPacket) {
		t.Errorf("ExpectNak() on data error = %v, want ErrUnexpectedPacket", err)
	}
	if got := h.Sent(); got != 3 {
		t.Errorf("Sent() = %d, want 3", got)
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	h := New(NewDirect(newTestDevice(t)), WithTrace(&buf))
	ctx := context.Background()

	if err := h.Setup(ctx, 0, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 18)); err != nil {
		t.Fatal(err)
	}
	if err := h.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("trace has %d lines, want 4:\n%s", len(lines), buf.String())
	}
	wantToken := "H>D SETUP addr=0 ep=0 " + packet.Encode(packet.NewToken(packet.PIDSetup, 0, 0)).String()
	if lines[0] != wantToken {
		t.Errorf("trace[0] = %q, want %q", lines[0], wantToken)
	}
	if !strings.HasPrefix(lines[1], "H>D DATA0 [80 06 00 01 00 00 12 00] ") {
		t.Errorf("trace[1] = %q", lines[1])
	}
	if want := "D>H ACK " + packet.Encode(packet.Ack).String(); lines[2] != want {
		t.Errorf("trace[2] = %q, want %q", lines[2], want)
	}
	if lines[3] != "H>D RESET" {
		t.Errorf("trace[3] = %q, want %q", lines[3], "H>D RESET")
	}
}

type silentBus struct{}

func (silentBus) Send(context.Context, wire.Line) error { return nil }

func (silentBus) Receive(ctx context.Context) (wire.Line, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutAndReset(t *testing.T) {
	h := New(silentBus{}, WithTimeout(10*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	if _, err := h.Receive(ctx); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Receive() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Receive() returned after %v, before the timeout", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := h.Receive(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive() with cancelled context error = %v, want context.Canceled", err)
	}
	if err := h.Reset(ctx); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Reset() on bus without reset error = %v, want ErrInvalidParameter", err)
	}
}

func TestEnumerate(t *testing.T) {
	dev := newTestDevice(t)
	var configured uint8
	dev.SetOnSetConfiguration(func(c uint8) { configured = c })
	h := New(NewDirect(dev))

	e, err := h.Enumerate(context.Background(), 7)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if e.Address != 7 || dev.Address() != 7 {
		t.Errorf("address = %d (device %d), want 7", e.Address, dev.Address())
	}
	if e.Descriptor != testDeviceDescriptor {
		t.Errorf("Descriptor = %+v, want %+v", e.Descriptor, testDeviceDescriptor)
	}
	if !bytes.Equal(e.Configuration, testConfiguration) {
		t.Errorf("Configuration = % X, want % X", e.Configuration, testConfiguration)
	}
	if e.Strings[1] != "usbwire" || e.Strings[2] != "loop" {
		t.Errorf("Strings = %v", e.Strings)
	}
	if configured != 1 || dev.Configuration() != 1 {
		t.Errorf("configuration = %d (callback %d), want 1", dev.Configuration(), configured)
	}
	if _, err := h.Enumerate(context.Background(), 0); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Enumerate(0) error = %v, want ErrInvalidParameter", err)
	}
}

func TestHostOverStack(t *testing.T) {
	dev := newTestDevice(t)
	hostPort, devicePort := loop.New(0)
	stack := device.NewStack(dev, devicePort)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stack.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer stack.Stop()

	h := New(hostPort, WithTimeout(50*time.Millisecond))
	e, err := h.Enumerate(ctx, 42)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if e.Strings[2] != "loop" {
		t.Errorf("Strings = %v", e.Strings)
	}
	got, err := h.ControlIn(ctx, 42, device.DebugReadSetup(device.RegAddress))
	if err != nil {
		t.Fatalf("ControlIn() error = %v", err)
	}
	if !bytes.Equal(got, []byte{42, 0, 0, 0}) {
		t.Errorf("address register = % X, want 2A 00 00 00", got)
	}

	// Old address no longer answers.
	if err := h.SendToken(ctx, packet.PIDIn, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.ExpectTimeout(ctx); err != nil {
		t.Errorf("ExpectTimeout() error = %v", err)
	}
}
