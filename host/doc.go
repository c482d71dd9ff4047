// Package host drives a device from the host side of the bus, one packet at
// a time.
//
// A [Host] encodes tokens, data, and handshakes into line symbols, sends
// them over a [Bus], and checks what the device answers. It is the tool the
// scenario suite and the usbsim command use to exercise a device; it does
// not schedule frames or manage more than one device.
//
// # Buses
//
// Two kinds of bus are supported:
//
//   - [Direct] calls Device.ReceiveLine synchronously. Responses
//     are available as soon as Send returns and silence is detected
//     immediately.
//   - Any hal.Link, such as the host port of
//     [github.com/ardnew/usbwire/device/hal/loop] or a
//     [github.com/ardnew/usbwire/host/hal/fifo] connection, where a
//     device Stack answers concurrently. Silence is detected by a
//     turnaround timeout.
//
// # Transactions
//
// The low-level methods map one-to-one onto packets:
//
//	h.SendToken(ctx, packet.PIDIn, 28, 1)
//	h.ExpectData(ctx, packet.Data1, []byte{1, 2, 3, 4})
//	h.SendAck(ctx)
//
// The transfer helpers ([Host.Setup], [Host.In], [Host.Out],
// [Host.ControlIn], [Host.ControlOut], [Host.Enumerate]) compose them and
// retry NAKed transactions.
//
// # Tracing
//
// With [WithTrace], every packet is written as one line giving the
// direction, the decoded packet, and its line symbols:
//
//	H>D SETUP addr=0 ep=0 KJKJKJKK...00J
//	D>H ACK KJKJKJKK...00J
package host
