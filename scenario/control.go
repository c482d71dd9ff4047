package scenario

import (
	"context"
	"errors"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/host"
	"github.com/ardnew/usbwire/packet"
)

var (
	ep0out = device.EndpointAddress(0, false)
	ep0in  = device.EndpointAddress(0, true)
	ep1out = device.EndpointAddress(1, false)
	ep1in  = device.EndpointAddress(1, true)
)

// deviceDescriptor is served by the descriptor-backed scenarios.
var deviceDescriptor = []byte{
	0x12, 0x01, 0x10, 0x02, 0x02, 0x00, 0x00, 0x40,
	0x09, 0x12, 0xB1, 0x70, 0x01, 0x01, 0x01, 0x02,
	0x00, 0x01,
}

// withDescriptors returns a configuration whose standard request handler
// serves the table built by fill.
func withDescriptors(fill func(t *device.Descriptors)) func() device.Config {
	return func() device.Config {
		t := device.NewDescriptors()
		fill(t)
		cfg := device.DefaultConfig()
		cfg.Descriptors = t
		return cfg
	}
}

// setAddress is the firmware writing the address register.
func setAddress(s *Script, addr uint8) {
	s.Firmware("set address", func(dev *device.Device) error {
		return dev.SetAddress(addr)
	})
}

// expectSetup checks the last SETUP packet firmware sees and clears it.
func expectSetup(s *Script, want device.SetupPacket) {
	s.Firmware("read setup", func(dev *device.Device) error {
		got, ok := dev.Setup()
		if !ok {
			return equal("setup pending", ok, true)
		}
		dev.ClearSetup()
		return equal("setup", got, want)
	})
}

var controlSetup = Scenario{
	Name:        "control-setup",
	Description: "SETUP transactions are acknowledged and reach firmware",
	Run: func(s *Script) {
		setAddr := device.SetAddressSetup(28)
		s.Setup(0, setAddr)
		expectSetup(s, setAddr)
		setAddress(s, 28)

		getDesc := device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 0x40)
		s.Setup(28, getDesc)
		expectSetup(s, getDesc)
	},
}

var controlTransferIn = Scenario{
	Name:        "control-transfer-in",
	Description: "a 12 byte descriptor is truncated to wLength 10 over 8 byte packets",
	Config: withDescriptors(func(t *device.Descriptors) {
		t.Set(device.DescriptorTypeDeviceQualifier, 0, []byte{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
			0x08, 0x09, 0x0A, 0x0B,
		})
	}),
	Run: func(s *Script) {
		setAddress(s, 20)
		setup := device.GetDescriptorSetup(device.DescriptorTypeDeviceQualifier, 0, 10)

		s.Setup(20, setup)
		s.Token(packet.PIDIn, 20, 0)
		s.ExpectData(packet.Data1, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
		s.Ack()
		s.Token(packet.PIDIn, 20, 0)
		s.ExpectData(packet.Data0, []byte{0x08, 0x09})
		s.Ack()
		s.Token(packet.PIDOut, 20, 0)
		s.Data(packet.Data1, nil)
		s.ExpectAck()

		s.Firmware("control state", func(dev *device.Device) error {
			return equal("control state", dev.ControlState(), device.ControlAwaitSetup)
		})
	},
}

var controlTransferInOut = Scenario{
	Name:        "control-transfer-in-out",
	Description: "GET_DESCRIPTOR for the device descriptor followed by SET_ADDRESS",
	Config: withDescriptors(func(t *device.Descriptors) {
		t.Set(device.DescriptorTypeDevice, 0, deviceDescriptor)
	}),
	Run: func(s *Script) {
		setAddress(s, 20)
		s.ControlIn(20, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 0x40), deviceDescriptor)
		s.ControlOut(20, device.SetAddressSetup(11), nil)
		s.Firmware("address", func(dev *device.Device) error {
			return equal("address", dev.Address(), uint8(11))
		})

		// The old address is gone once the status stage completes.
		s.Token(packet.PIDIn, 20, 0)
		s.ExpectTimeout()
		s.ControlIn(11, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 8), deviceDescriptor[:8])
	},
}

var controlInNakData = Scenario{
	Name:        "control-in-nak-data",
	Description: "firmware NAKs the data stage until it has queued the reply",
	Run: func(s *Script) {
		setAddress(s, 22)
		reply := []byte{0x04, 0x03, 0x09, 0x04}

		s.Setup(22, device.GetDescriptorSetup(device.DescriptorTypeString, 0, 0x40))
		s.Firmware("NAK data stage", func(dev *device.Device) error {
			return dev.SetResponse(ep0in, device.ResponseNAK)
		})
		s.Token(packet.PIDIn, 22, 0)
		s.ExpectNak()

		s.Firmware("queue reply", func(dev *device.Device) error {
			return errors.Join(
				dev.SetData(ep0in, reply),
				dev.SetResponse(ep0in, device.ResponseACK),
			)
		})
		s.Token(packet.PIDIn, 22, 0)
		s.ExpectData(packet.Data1, reply)
		s.Ack()

		s.Firmware("accept status", func(dev *device.Device) error {
			return dev.SetResponse(ep0out, device.ResponseACK)
		})
		s.Token(packet.PIDOut, 22, 0)
		s.Data(packet.Data1, nil)
		s.ExpectAck()
		s.Firmware("control state", func(dev *device.Device) error {
			return errors.Join(
				equal("control state", dev.ControlState(), device.ControlAwaitSetup),
				dev.ClearPending(ep0out),
			)
		})
	},
}

var setupClearsStall = Scenario{
	Name:        "setup-clears-stall",
	Description: "a SETUP transaction clears a stalled control pipe",
	Run: func(s *Script) {
		setAddress(s, 28)
		d := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x00, 0x00}

		s.Firmware("accept OUT", func(dev *device.Device) error {
			return dev.SetResponse(ep0out, device.ResponseACK)
		})
		toggle := packet.Data1
		for range 2 {
			s.Token(packet.PIDOut, 28, 0)
			s.Data(toggle, d)
			s.ExpectAck()
			s.Firmware("consume OUT", func(dev *device.Device) error {
				got, err := dev.Data(ep0out)
				return errors.Join(err, equalBytes("data", got, d), dev.ClearPending(ep0out))
			})
			toggle = toggle.Next()
		}

		s.Firmware("stall", func(dev *device.Device) error {
			return errors.Join(
				dev.SetResponse(ep0out, device.ResponseStall),
				dev.SetResponse(ep0in, device.ResponseStall),
			)
		})
		s.Token(packet.PIDOut, 28, 0)
		s.Data(toggle, d)
		s.ExpectStall()
		s.Token(packet.PIDIn, 28, 0)
		s.ExpectStall()

		setup := device.SetupPacket{RequestType: 0x01, Request: 0x02, Value: 0x0403, Index: 0x0605}
		s.Setup(28, setup)
		expectSetup(s, setup)
		s.Firmware("queue status", func(dev *device.Device) error {
			return errors.Join(
				dev.SetData(ep0in, nil),
				dev.SetResponse(ep0in, device.ResponseACK),
			)
		})
		s.Token(packet.PIDIn, 28, 0)
		s.ExpectData(packet.Data1, nil)
		s.Ack()

		// The ACK policy from before the stall resumes.
		s.Token(packet.PIDOut, 28, 0)
		s.Data(packet.Data1, d)
		s.ExpectAck()
	},
}

var stallThenSetup = Scenario{
	Name:        "stall-then-setup",
	Description: "a request without a handler stalls and the next SETUP recovers",
	Config: withDescriptors(func(t *device.Descriptors) {
		t.Set(device.DescriptorTypeDevice, 0, deviceDescriptor)
	}),
	Run: func(s *Script) {
		s.Setup(0, device.GetDescriptorSetup(device.DescriptorTypeHIDReport, 0, 0x40))
		s.Token(packet.PIDIn, 0, 0)
		s.ExpectStall()
		s.Token(packet.PIDIn, 0, 0)
		s.ExpectStall()
		s.Firmware("control state", func(dev *device.Device) error {
			return equal("control state", dev.ControlState(), device.ControlAwaitSetup)
		})
		s.ControlIn(0, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 0x12), deviceDescriptor)
	},
}

var disableAbortsControl = Scenario{
	Name:        "disable-aborts-control",
	Description: "disabling endpoint 0 abandons a control read in its data stage",
	Config: withDescriptors(func(t *device.Descriptors) {
		t.Set(device.DescriptorTypeDevice, 0, deviceDescriptor)
	}),
	Run: func(s *Script) {
		s.Setup(0, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 0x40))
		s.Token(packet.PIDIn, 0, 0)
		s.ExpectData(packet.Data1, deviceDescriptor[:8])
		s.Ack()

		s.Firmware("disable EP0 IN", func(dev *device.Device) error {
			return errors.Join(
				dev.Disable(ep0in),
				equal("control state", dev.ControlState(), device.ControlAwaitSetup),
			)
		})
		s.Token(packet.PIDIn, 0, 0)
		s.ExpectTimeout()

		s.Firmware("enable EP0 IN", func(dev *device.Device) error {
			return dev.Enable(ep0in)
		})
		s.ControlIn(0, device.GetDescriptorSetup(device.DescriptorTypeDevice, 0, 0x40), deviceDescriptor)
	},
}

var enumerate = Scenario{
	Name:        "enumerate",
	Description: "standard enumeration: descriptors, address, strings, configuration",
	Config: withDescriptors(func(t *device.Descriptors) {
		t.SetDevice(&device.DeviceDescriptor{
			USBVersion:        0x0110,
			MaxPacketSize0:    device.DefaultMaxPacketSize0,
			VendorID:          0x1209,
			ProductID:         0x5BF0,
			DeviceVersion:     0x0100,
			ManufacturerIndex: 1,
			ProductIndex:      2,
			NumConfigurations: 1,
		})
		t.Set(device.DescriptorTypeConfiguration, 0, []byte{
			0x09, 0x02, 0x12, 0x00, 0x01, 0x01, 0x00, 0x80, 0x32,
			0x09, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00,
		})
		t.SetLanguages(device.LangIDUSEnglish)
		t.SetString(1, "usbwire")
		t.SetString(2, "scenario device")
	}),
	Run: func(s *Script) {
		var e *host.Enumeration
		s.Host("enumerate", func(ctx context.Context, h *host.Host) (err error) {
			e, err = h.Enumerate(ctx, 9)
			return err
		})
		s.Firmware("enumerated", func(dev *device.Device) error {
			return errors.Join(
				equal("address", dev.Address(), uint8(9)),
				equal("configuration", dev.Configuration(), uint8(1)),
				equal("product", e.Strings[2], "scenario device"),
				equal("vendor", e.Descriptor.VendorID, uint16(0x1209)),
			)
		})
	},
}
