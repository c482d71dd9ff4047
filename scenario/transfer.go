package scenario

import (
	"errors"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/packet"
)

var sofStuffing = Scenario{
	Name:        "sof-stuffing",
	Description: "SOF frame numbers whose encoding needs stuff bits",
	Run: func(s *Script) {
		frames := []uint16{0x04FF, 0x0512, 0x06E1, 0x0519}
		for _, f := range frames {
			s.SOF(f)
		}
		s.ExpectTimeout()
		s.Firmware("frame count", func(dev *device.Device) error {
			frame, ok := dev.Frame()
			return errors.Join(
				equal("frames", dev.Frames(), uint64(len(frames))),
				equal("frame seen", ok, true),
				equal("frame", frame, frames[len(frames)-1]),
			)
		})
	},
}

var sofIsIgnored = Scenario{
	Name:        "sof-is-ignored",
	Description: "SOF packets between the stages of a transaction do not disturb it",
	Run: func(s *Script) {
		const addr = 0x20
		setAddress(s, addr)
		data := []byte{0x00, 0x01, 0x08, 0x00, 0x04, 0x03, 0x00, 0x00}

		s.SOF(2)
		s.Token(packet.PIDSetup, addr, 0)
		s.SOF(3)
		s.Data(packet.Data1, data)
		s.ExpectAck()
		s.SOF(4)

		var want device.SetupPacket
		s.Firmware("parse setup", func(*device.Device) error {
			return device.ParseSetupPacket(data, &want)
		})
		expectSetup(s, want)
		s.Firmware("queue status", func(dev *device.Device) error {
			frame, _ := dev.Frame()
			return errors.Join(
				equal("frames", dev.Frames(), uint64(3)),
				equal("frame", frame, uint16(4)),
				equal("control state", dev.ControlState(), device.ControlStatusStage),
				dev.SetData(ep0in, nil),
				dev.SetResponse(ep0in, device.ResponseACK),
			)
		})
		s.SOF(5)
		s.Token(packet.PIDIn, addr, 0)
		s.ExpectData(packet.Data1, nil)
		s.Ack()
		s.Firmware("control state", func(dev *device.Device) error {
			return equal("control state", dev.ControlState(), device.ControlAwaitSetup)
		})
	},
}

// armIn is firmware queueing payload on EP1 IN the way a driver does:
// clear, NAK, fill, then ACK.
func armIn(s *Script, payload []byte) {
	s.Firmware("arm EP1 IN", func(dev *device.Device) error {
		return errors.Join(
			dev.Enable(ep1in),
			dev.ClearPending(ep1in),
			dev.SetResponse(ep1in, device.ResponseNAK),
			dev.SetData(ep1in, payload),
			dev.SetResponse(ep1in, device.ResponseACK),
		)
	})
}

var inTransfer = Scenario{
	Name:        "in-transfer",
	Description: "consecutive IN transactions alternate DATA1 and DATA0",
	Run: func(s *Script) {
		const addr = 28
		setAddress(s, addr)
		d := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

		armIn(s, d[:4])
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectData(packet.Data1, d[:4])
		s.Ack()
		s.Firmware("pending cleared", func(dev *device.Device) error {
			pending, err := dev.Pending(ep1in)
			return errors.Join(err, equal("pending", pending, false))
		})

		armIn(s, d[4:])
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectData(packet.Data0, d[4:])
		s.Ack()

		// Nothing queued.
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectNak()
	},
}

var inTransferStuffLast = Scenario{
	Name:        "in-transfer-stuff-last",
	Description: "an IN payload whose final CRC bits end in a stuff bit",
	Run: func(s *Script) {
		const addr = 28
		setAddress(s, addr)
		d := []byte{0x37, 0x75, 0x00, 0xE0}

		armIn(s, d)
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectData(packet.Data1, d)
		s.Ack()
	},
}

var outDuplicate = Scenario{
	Name:        "out-duplicate",
	Description: "a retried OUT with a repeated toggle is acknowledged but not delivered twice",
	Run: func(s *Script) {
		const addr = 5
		setAddress(s, addr)
		s.Firmware("enable EP1 OUT", func(dev *device.Device) error {
			return errors.Join(
				dev.Enable(ep1out),
				dev.SetResponse(ep1out, device.ResponseACK),
			)
		})
		consume := func(want []byte) {
			s.Firmware("consume EP1 OUT", func(dev *device.Device) error {
				got, err := dev.Data(ep1out)
				return errors.Join(err, equalBytes("data", got, want), dev.ClearPending(ep1out))
			})
		}

		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data1, []byte{1, 2, 3})
		s.ExpectAck()
		consume([]byte{1, 2, 3})

		// The host lost the ACK and retries.
		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data1, []byte{1, 2, 3})
		s.ExpectAck()
		s.Firmware("not redelivered", func(dev *device.Device) error {
			pending, err := dev.Pending(ep1out)
			return errors.Join(err, equal("pending", pending, false))
		})

		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data0, []byte{4})
		s.ExpectAck()

		// The buffer is still full.
		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data1, []byte{5})
		s.ExpectNak()
		consume([]byte{4})

		s.Token(packet.PIDOut, addr, 1)
		s.Data(packet.Data1, []byte{5})
		s.ExpectAck()
		consume([]byte{5})
	},
}
