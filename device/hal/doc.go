// Package hal defines the link between a device stack and the bus it is
// attached to.
//
// A [Link] carries line-level packets ([wire.Line]) in both directions. The
// device stack reads host packets with Receive and answers with Send; a bus
// reset is reported by Receive returning [ErrReset].
//
// Two implementations are provided:
//
//   - [github.com/ardnew/usbwire/device/hal/loop] connects a host and a
//     device in the same process through channels.
//   - [github.com/ardnew/usbwire/device/hal/fifo] exposes a device through
//     named pipes in a bus directory, for a host in another process.
//
// # Framing
//
// Links that cross a byte stream use [MarshalFrame] and [ParseFrameHeader]:
// a one-byte frame kind, a little-endian 16-bit length, then one byte per
// line symbol.
package hal
