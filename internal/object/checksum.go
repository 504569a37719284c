package object

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"hash/crc32"
)

// Supported additional checksum algorithms (x-amz-sdk-checksum-algorithm).
const (
	ChecksumCRC32  = "CRC32"
	ChecksumCRC32C = "CRC32C"
	ChecksumSHA1   = "SHA1"
	ChecksumSHA256 = "SHA256"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NewChecksumHash returns the hash implementation for algorithm, or an error
// for unknown algorithms. Algorithm matching is case-insensitive at the
// header layer; callers pass the canonical upper-case name.
func NewChecksumHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumCRC32C:
		return crc32.New(castagnoli), nil
	case ChecksumSHA1:
		return sha1.New(), nil
	case ChecksumSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm %q", ErrInvalidRequest, algorithm)
	}
}
