package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/device/class/cdc"
	"github.com/ardnew/usbwire/device/class/hid"
	"github.com/ardnew/usbwire/host"
	"github.com/ardnew/usbwire/packet"
)

// classRequest builds a class request addressed to interface iface.
func classRequest(in bool, request, iface uint8, value, length uint16) device.SetupPacket {
	rt := uint8(device.RequestTypeClass | device.RequestRecipientInterface)
	if in {
		rt |= device.RequestDirectionDeviceToHost
	}
	return device.SetupPacket{RequestType: rt, Request: request, Value: value, Index: uint16(iface), Length: length}
}

// functionConfig is a descriptor-backed configuration whose device
// descriptor and strings are filled in; the function adds the rest when
// firmware attaches it.
func functionConfig(product string, class uint8) func() device.Config {
	return withDescriptors(func(t *device.Descriptors) {
		t.SetDevice(&device.DeviceDescriptor{
			USBVersion:        0x0200,
			DeviceClass:       class,
			MaxPacketSize0:    device.DefaultMaxPacketSize0,
			VendorID:          0x1209,
			ProductID:         0x5BF0,
			DeviceVersion:     0x0100,
			ManufacturerIndex: 1,
			ProductIndex:      2,
			NumConfigurations: 1,
		})
		t.SetLanguages(device.LangIDUSEnglish)
		t.SetString(1, "usbwire")
		t.SetString(2, product)
	})
}

// attach is firmware installing a function's descriptors and request
// handler. Its endpoints are started once the host configures the device,
// since a bus reset disables them.
func attach(s *Script, name string, handler device.RequestHandler, config []byte, register func(*device.Descriptors)) {
	s.Firmware("attach "+name, func(dev *device.Device) error {
		table := dev.Config().Descriptors
		if register != nil {
			register(table)
		}
		table.Set(device.DescriptorTypeConfiguration, 0, config)
		dev.AddHandler(handler)
		return nil
	})
}

var hidKeyboard = Scenario{
	Name:        "hid-keyboard",
	Description: "a boot keyboard is enumerated, configured and types over its interrupt endpoint",
	Config:      functionConfig("keyboard", 0),
	Run: func(s *Script) {
		const addr = 3
		kbd := hid.New(0, 1, hid.BootKeyboardReportDescriptor)
		attach(s, "keyboard", kbd,
			device.BuildConfiguration(1, 1, 0, 50, kbd.InterfaceDescriptors(10)),
			kbd.Register)

		s.Host("enumerate", func(ctx context.Context, h *host.Host) error {
			e, err := h.Enumerate(ctx, addr)
			if err != nil {
				return err
			}
			cfg := e.Configuration
			return errors.Join(
				equal("interface class", cfg[9+5], uint8(hid.ClassHID)),
				equal("interface protocol", cfg[9+7], uint8(hid.ProtocolKeyboard)),
				equal("product", e.Strings[2], "keyboard"),
			)
		})
		s.Firmware("start keyboard", func(dev *device.Device) error {
			return errors.Join(
				equal("configuration", dev.Configuration(), uint8(1)),
				kbd.Start(dev),
			)
		})

		s.ControlOut(addr, classRequest(false, hid.RequestSetIdle, 0, 0, 0), nil)
		s.ControlOut(addr, classRequest(false, hid.RequestSetProtocol, 0, hid.ProtocolBoot, 0), nil)
		s.ControlIn(addr, device.SetupPacket{
			RequestType: device.RequestDirectionDeviceToHost | device.RequestRecipientInterface,
			Request:     device.RequestGetDescriptor,
			Value:       uint16(device.DescriptorTypeHIDReport) << 8,
			Length:      0xFF,
		}, hid.BootKeyboardReportDescriptor)

		// Nothing typed yet.
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectNak()

		var typed strings.Builder
		for _, ch := range []byte("Hi\n") {
			key, mods, _ := hid.Keycode(ch)
			s.Firmware(fmt.Sprintf("press %q", ch), func(dev *device.Device) error {
				return kbd.SendKeyboardReport(dev, &hid.KeyboardReport{Modifiers: mods, Keys: [6]uint8{key}})
			})
			s.Host("read press", func(ctx context.Context, h *host.Host) error {
				d, err := h.InRetry(ctx, addr, 1)
				if err != nil {
					return err
				}
				var r hid.KeyboardReport
				if !hid.ParseKeyboardReport(d.Payload, &r) {
					return fmt.Errorf("report % X: %w", d.Payload, errShortReport)
				}
				if c, ok := hid.Character(&r); ok {
					typed.WriteByte(c)
				}
				return nil
			})
			s.Firmware("release", func(dev *device.Device) error {
				return kbd.SendKeyboardReport(dev, &hid.KeyboardReport{})
			})
			s.Host("read release", func(ctx context.Context, h *host.Host) error {
				_, err := h.InRetry(ctx, addr, 1)
				return err
			})
		}

		s.ControlOut(addr, classRequest(false, hid.RequestSetReport, 0, hid.ReportTypeOutput<<8, 1), []byte{hid.LEDCapsLock})
		s.Firmware("keyboard state", func(*device.Device) error {
			return errors.Join(
				equal("typed", typed.String(), "Hi\n"),
				equal("protocol", kbd.Protocol(), uint8(hid.ProtocolBoot)),
				equalBytes("LEDs", kbd.OutputReport(), []byte{hid.LEDCapsLock}),
			)
		})
	},
}

var errShortReport = errors.New("short report")

var cdcEcho = Scenario{
	Name:        "cdc-echo",
	Description: "a CDC-ACM serial function takes a line coding and echoes bulk data upper-cased",
	Config:      functionConfig("serial", cdc.ClassCDC),
	Run: func(s *Script) {
		const addr = 4
		acm := cdc.NewACM(0, 2, 1, 16)
		attach(s, "serial", acm,
			device.BuildConfiguration(1, 2, 0, 50, acm.InterfaceDescriptors()),
			nil)

		s.Host("enumerate", func(ctx context.Context, h *host.Host) error {
			_, err := h.Enumerate(ctx, addr)
			return err
		})
		s.Firmware("start serial", func(dev *device.Device) error {
			return acm.Start(dev)
		})

		coding := cdc.LineCoding{DTERate: 57600, DataBits: 8, ParityType: cdc.ParityOdd, CharFormat: cdc.StopBits1}
		buf := make([]byte, cdc.LineCodingSize)
		coding.MarshalTo(buf)
		s.ControlOut(addr, classRequest(false, cdc.RequestSetLineCoding, 0, 0, cdc.LineCodingSize), buf)
		s.ControlIn(addr, classRequest(true, cdc.RequestGetLineCoding, 0, 0, cdc.LineCodingSize), buf)
		s.ControlOut(addr, classRequest(false, cdc.RequestSetControlLineState, 0, cdc.ControlLineDTR, 0), nil)

		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data1, []byte("hello"))
		s.ExpectAck()

		s.Firmware("echo", func(dev *device.Device) error {
			p := make([]byte, 16)
			n, err := acm.Read(dev, p)
			if err != nil {
				return err
			}
			reply := strings.ToUpper(string(p[:n]))
			_, err = acm.Write(dev, []byte(reply))
			return errors.Join(err,
				equal("line coding", acm.LineCoding(), coding),
				equal("DTR", acm.DTR(), true))
		})
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectData(packet.Data1, []byte("HELLO"))
		s.Ack()

		s.Firmware("serial state", func(dev *device.Device) error {
			return acm.SendSerialState(dev, cdc.SerialStateTxCarrier)
		})
		s.Token(packet.PIDIn, addr, 2)
		s.ExpectData(packet.Data1, []byte{0xA1, 0x20, 0, 0, 0, 0, 2, 0, cdc.SerialStateTxCarrier, 0})
		s.Ack()
	},
}
