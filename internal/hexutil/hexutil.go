// Package hexutil encodes and decodes the hex serial numbers stored
// by the CAPF store (spec.md §4.7): standard big-endian
// minimum-width, with a leading all-zero byte trimmed only when the
// following byte's top bit is already clear (a 0x00 ahead of a byte
// whose top bit is set is kept, as in a DER INTEGER).
package hexutil

import (
	"encoding/hex"
	"math/big"
)

// TrimLeadingZero drops a single leading 0x00 byte from b, but only
// when doing so would not flip the sign interpretation of the
// remaining bytes (i.e. the next byte's top bit is clear).
func TrimLeadingZero(b []byte) []byte {
	if len(b) > 1 && b[0] == 0x00 && b[1]&0x80 == 0 {
		return b[1:]
	}

	return b
}

// EncodeSerial returns the lowercase hex encoding of a certificate
// serial number's bytes, trimmed per TrimLeadingZero.
func EncodeSerial(b []byte) string {
	return hex.EncodeToString(TrimLeadingZero(b))
}

// EncodeSerialBigInt encodes a *big.Int serial number the same way as
// EncodeSerial.
func EncodeSerialBigInt(n *big.Int) string {
	if n == nil {
		return ""
	}

	return EncodeSerial(n.Bytes())
}

// DecodeSerial parses a hex serial number back into a *big.Int.
func DecodeSerial(s string) (*big.Int, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(b), nil
}
