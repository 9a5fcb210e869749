package persistence

import "hash/crc32"

// CRC32 (IEEE) is used for corruption detection only; it is not
// cryptographically secure.

// Checksum returns the CRC32-IEEE checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
