package scenario

import (
	"errors"

	"github.com/ardnew/usbwire/device"
	"github.com/ardnew/usbwire/packet"
)

func debugConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.DebugBridge = true
	return cfg
}

var debugIn = Scenario{
	Name:        "debug-in",
	Description: "a vendor request reads the scratch register over endpoint 0",
	Config:      debugConfig,
	Run: func(s *Script) {
		const addr = 28
		setAddress(s, addr)

		s.Token(packet.PIDSetup, addr, 0)
		s.Data(packet.Data0, device.DebugReadSetup(device.RegScratch).Bytes())
		s.ExpectAck()

		s.Token(packet.PIDIn, addr, 0)
		s.ExpectData(packet.Data1, []byte{0x78, 0x56, 0x34, 0x12})
		s.Ack()

		s.Token(packet.PIDOut, addr, 0)
		s.Data(packet.Data1, nil)
		s.ExpectAck()

		// Reads have no side effects and can repeat.
		s.ControlIn(addr, device.DebugReadSetup(device.RegAddress), []byte{addr, 0, 0, 0})
	},
}

var debugOut = Scenario{
	Name:        "debug-out",
	Description: "a vendor request writes the scratch register over endpoint 0",
	Config:      debugConfig,
	Run: func(s *Script) {
		const addr = 28
		setAddress(s, addr)
		s.Firmware("enable EP1 IN", func(dev *device.Device) error {
			return dev.Enable(ep1in)
		})

		s.Token(packet.PIDSetup, addr, 0)
		s.Data(packet.Data0, device.DebugWriteSetup(device.RegScratch).Bytes())
		s.ExpectAck()

		s.Token(packet.PIDOut, addr, 0)
		s.Data(packet.Data1, []byte{0x42, 0x00, 0x00, 0x00})
		s.ExpectAck()

		// Status stage on the wrong endpoint.
		s.Token(packet.PIDIn, addr, 1)
		s.ExpectNak()

		s.Token(packet.PIDIn, addr, 0)
		s.ExpectData(packet.Data1, nil)
		s.Ack()

		s.Firmware("scratch", func(dev *device.Device) error {
			v, err := dev.Read(device.RegScratch)
			return errors.Join(err, equal("scratch", v, uint32(0x42)))
		})
	},
}
