package link

// CRC16 calculates the CRC16-CCITT checksum (Klipper variant) used to
// protect each block on the serial line
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// appendCRC16 appends the checksum of data, high byte first
func appendCRC16(dst, data []byte) []byte {
	crc := CRC16(data)
	return append(dst, uint8((crc&0xFF00)>>8), uint8(crc&0xFF))
}
