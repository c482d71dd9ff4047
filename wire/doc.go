// Package wire implements the full-speed USB bit codec.
//
// A packet travels the bus as a sequence of line states: differential J and
// K, and single-ended zero (SE0). The codec converts between packet bytes and
// that sequence in three steps:
//
//   - bytes are serialized least-significant bit first
//   - a zero is stuffed after every run of six consecutive ones
//   - the result is NRZI encoded: a zero toggles the line, a one holds it
//
// Every packet is preceded by SYNC (KJKJKJKK) and followed by an end of
// packet marker (SE0, SE0, J). The SYNC field does not count toward bit
// stuffing. The idle line state is J.
//
//	line := wire.Encode([]byte{0xD2})  // ACK handshake
//	data, err := wire.Decode(line)
//
// Decode reports [pkg.ErrFraming] for any malformed SYNC, stuff bit, or EOP.
package wire
