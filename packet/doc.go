// Package packet encodes and decodes the four full-speed USB packet shapes.
//
// Every packet starts with a PID byte whose high nibble is the bitwise
// complement of its low nibble. The remaining layout depends on the PID type:
//
//	Token     PID | ADDR(7) ENDP(4) CRC5(5)        (OUT, IN, SETUP)
//	SOF       PID | FRAME(11) CRC5(5)
//	Data      PID | payload(0-1023) CRC16          (DATA0, DATA1)
//	Handshake PID                                  (ACK, NAK, STALL)
//
// Multi-bit fields are transmitted least-significant bit first. The CRCs are
// always recomputed on parse and never trusted from the input.
//
// [Parse] and [Packet.MarshalTo] operate on packet bytes without SYNC or EOP.
// [Decode] and [Encode] add the line framing of the [github.com/ardnew/usbwire/wire]
// package.
package packet
