// Package device implements the device side of a full-speed USB link.
//
// A [Device] consumes packets sent by a host and answers each one with a
// handshake, a data packet, or silence, exactly as a USB function would on
// the wire. Firmware drives it through the [Registers] interface or the
// typed helpers built on it.
//
// # Architecture
//
//   - [Endpoint] holds per-endpoint state: enable, response, data toggle,
//     and a one-packet buffer.
//   - The transaction engine sequences token, data and handshake packets,
//     suppresses duplicate OUT data, and filters SOF packets.
//   - The control coordinator tracks SETUP, data and status stages on
//     endpoint 0 and answers requests accepted by a [RequestHandler].
//   - [Stack] serves a Device over a [hal.Link].
//
// # Data Toggle
//
// Each endpoint records the toggle of its last completed data packet,
// DATA0 after reset. IN transactions send the opposite toggle; OUT data
// carrying the recorded toggle is a retransmission and is acknowledged
// without being delivered again. SETUP records DATA0 on both directions of
// endpoint 0, so data and status stages begin with DATA1.
//
// # Control Transfers
//
// When [Config.Descriptors] is set, standard requests are answered from
// the descriptor table. When [Config.DebugBridge] is set, vendor requests
// 0xC3 and 0x43 read and write registers. Requests no handler accepts are
// left to firmware: the coordinator tracks stages while firmware moves
// data through the endpoint 0 buffers.
//
// # Example
//
//	table := device.NewDescriptors()
//	table.SetDevice(&device.DeviceDescriptor{
//	    USBVersion:     0x0200,
//	    MaxPacketSize0: 8,
//	    VendorID:       0x1209,
//	    ProductID:      0x0001,
//	})
//	cfg := device.DefaultConfig()
//	cfg.Descriptors = table
//	dev, err := device.NewDevice(cfg)
//	if err != nil {
//	    return err
//	}
//	host, link := loop.New(0)
//	stack := device.NewStack(dev, link)
//	if err := stack.Start(ctx); err != nil {
//	    return err
//	}
//	defer stack.Stop()
package device
