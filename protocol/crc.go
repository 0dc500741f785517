package protocol

// CRC16-CCITT (false): polynomial 0x1021, initial 0xFFFF, MSB first, no
// reflection and no final XOR.
const (
	crcPoly = 0x1021
	crcInit = 0xFFFF
)

var crcTable = func() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// Checksum returns the CRC16-CCITT of data
func Checksum(data []byte) uint16 {
	return UpdateChecksum(crcInit, data)
}

// UpdateChecksum continues a running CRC over more data
func UpdateChecksum(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
