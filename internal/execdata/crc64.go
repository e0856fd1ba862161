package execdata

import "hash/crc64"

// The class id is a CRC64 with the ISO polynomial in reflected form, an
// initial value of zero and no final inversion. hash/crc64 inverts the
// register on entry and exit, so both inversions are undone here.
var crcTable = crc64.MakeTable(crc64.ISO)

func crcUpdate(sum uint64, p []byte) uint64 {
	return ^crc64.Update(^sum, crcTable, p)
}

// Checksum returns the raw CRC64 of b.
func Checksum(b []byte) uint64 {
	return crcUpdate(0, b)
}

// ClassID computes the id of a class from its class file bytes.
//
// Class files with major version 53 are hashed as if they had major version
// 52, so the same class compiled for Java 8 and 9 shares an id.
func ClassID(b []byte) uint64 {
	if len(b) > 7 && b[6] == 0x00 && b[7] == 53 {
		sum := crcUpdate(0, b[:7])
		sum = crcUpdate(sum, []byte{52})
		return crcUpdate(sum, b[8:])
	}
	return Checksum(b)
}
