package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbwire/pkg"
)

// debugHandler exposes the register interface over endpoint 0. A read
// request (0xC3) returns the 32-bit register named by wValue and wIndex in
// little-endian order; a write request (0x43) carries the value in its
// data stage. Reads always return the full register (scratch reads
// 78 56 34 12 after reset), never a single byte lane.
type debugHandler struct {
	dev *Device
}

func (h *debugHandler) Accepts(setup *SetupPacket) bool {
	return setup.RequestType == RequestTypeDebugRead || setup.RequestType == RequestTypeDebugWrite
}

func (h *debugHandler) HandleSetup(setup *SetupPacket, data []byte) ([]byte, error) {
	reg := setup.Register()
	if setup.Length != 4 {
		return nil, fmt.Errorf("debug length %d: %w", setup.Length, pkg.ErrInvalidRequest)
	}
	if setup.IsDeviceToHost() {
		value, err := h.dev.readRegister(reg)
		if err != nil {
			return nil, err
		}
		pkg.LogDebug(pkg.ComponentRegister, "debug read", "register", fmt.Sprintf("0x%03X", reg), "value", value)
		return binary.LittleEndian.AppendUint32(nil, value), nil
	}
	if len(data) != 4 {
		return nil, fmt.Errorf("debug write %d bytes: %w", len(data), pkg.ErrInvalidRequest)
	}
	value := binary.LittleEndian.Uint32(data)
	pkg.LogDebug(pkg.ComponentRegister, "debug write", "register", fmt.Sprintf("0x%03X", reg), "value", value)
	return nil, h.dev.writeRegister(reg, value)
}
