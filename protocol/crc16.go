package protocol

// CRC16 computes the frame checksum over CMD, LEN and PAYLOAD.
// Same polynomial and seed as the Klipper serial protocol.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crc16Update(crc, b)
	}
	return crc
}

// crc16Update folds one byte into a running checksum so the decoder can
// verify a frame as it streams in.
func crc16Update(crc uint16, b byte) uint16 {
	b = b ^ uint8(crc&0xFF)
	b = b ^ (b << 4)
	b16 := uint16(b)
	return (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
}
