package packet

// CRC5 polynomial x^5 + x^2 + 1, bit-reversed.
const crc5Poly = 0x14

// CRC16 polynomial x^16 + x^15 + x^2 + 1, bit-reversed.
const crc16Poly = 0xA001

// CRC5 computes the token CRC over the low n bits of v, least-significant first.
func CRC5(v uint16, n int) uint8 {
	crc := uint8(0x1F)
	for i := 0; i < n; i++ {
		bit := uint8(v>>i) & 1
		if (crc&1)^bit != 0 {
			crc = (crc >> 1) ^ crc5Poly
		} else {
			crc >>= 1
		}
	}
	return ^crc & 0x1F
}

// CRC16 computes the data packet CRC over data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
