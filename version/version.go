// Package version classifies the first bytes of a SCANCO file into one of
// the recognised on-disk variants.
package version

import (
	"github.com/b71729/goscanco/header"
	"github.com/b71729/goscanco/internal/primitive"
)

// isqMagic is the fixed 16-byte tag that opens every ISQ/RSQ file.
const isqMagic = "CTDATA-HEADER_V1"

// aimV030Magic is the fixed 16-byte tag that opens an AIM v030 file: the
// 12-character tag, three trailing spaces, and a trailing NUL (the
// original compares it as a NUL-terminated C string of 16 bytes).
const aimV030Magic = "AIMDATA_V030   \x00"

// Detect classifies the first 16 bytes of a file per §4.2: an exact ISQ or
// AIM v030 magic, or -- failing that -- a v020 pre-header whose first two
// little-endian int32s are exactly 20 and 140.
func Detect(first16 []byte) header.Codec {
	if len(first16) < 16 {
		return header.CodecUnknown
	}
	if string(first16[:16]) == isqMagic {
		return header.CodecISQ
	}
	if string(first16[:16]) == aimV030Magic {
		return header.CodecAIMv030
	}
	a, err1 := primitive.DecodeInt32(first16[0:4])
	b, err2 := primitive.DecodeInt32(first16[4:8])
	if err1 == nil && err2 == nil && a == 20 && b == 140 {
		return header.CodecAIMv020
	}
	return header.CodecUnknown
}
