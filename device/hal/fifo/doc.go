// Package fifo exposes a device link through named pipes (FIFOs).
//
// Each device creates a unique subdirectory under a shared bus directory:
//
//	/tmp/usb-bus/                # Bus directory (shared with host)
//	└── device-{uuid}/           # Device subdirectory
//	    ├── connection           # Connection signaling (device → host)
//	    ├── host_to_device       # Frames from host
//	    └── device_to_host       # Frames to host
//
// Frames use the encoding of [hal.MarshalFrame]: every packet travels as
// its line-level symbols, so the receiving side runs the full bit and
// packet decoders.
//
// The device signals connection and disconnection on the connection FIFO
// (0x01 connected, 0x00 disconnecting). The host side lives in
// [github.com/ardnew/usbwire/host/hal/fifo].
//
// # Usage
//
//	link := fifo.New("/tmp/usb-bus")
//	if err := link.Init(ctx); err != nil {
//	    return err
//	}
//	stack := device.NewStack(dev, link)
//	if err := stack.Start(ctx); err != nil {
//	    return err
//	}
//	fmt.Printf("Device directory: %s\n", link.DeviceDir())
package fifo
