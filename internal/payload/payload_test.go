package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUncompressed(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	got, err := Decode(ModeNone, src, Dims{X: 3, Y: 2, Z: 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDecodeUncompressedTruncated(t *testing.T) {
	_, err := Decode(ModeNone, []byte{1, 2, 3}, Dims{X: 2, Y: 2, Z: 1}, 1)
	require.Error(t, err)
	var trunc *Truncated
	assert.ErrorAs(t, err, &trunc)
}

func TestDecodePackedBits(t *testing.T) {
	// dims (4,4,4), value byte 0x55, single bit set at voxel (0,0,0).
	dims := Dims{X: 4, Y: 4, Z: 4}
	src := make([]byte, PackedBitsInputSize(dims))
	src[0] = 0x01 // bit 0 (i&1 | (j&1)<<1 | (k&1)<<2 == 0) set
	src[len(src)-1] = 0x55

	got, err := Decode(ModePackedBits, src, dims, 1)
	require.NoError(t, err)
	require.Len(t, got, 64)
	assert.Equal(t, byte(0x55), got[0])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, byte(0x00), got[i], "voxel %d", i)
	}
}

func TestDecodePackedBitsDefaultValue(t *testing.T) {
	dims := Dims{X: 2, Y: 2, Z: 2}
	src := make([]byte, PackedBitsInputSize(dims))
	src[0] = 0xff
	src[len(src)-1] = 0 // defaults to 0x7f

	got, err := Decode(ModePackedBits, src, dims, 1)
	require.NoError(t, err)
	for _, v := range got {
		assert.Equal(t, byte(0x7f), v)
	}
}

func TestDecodePackedBitsTruncated(t *testing.T) {
	dims := Dims{X: 4, Y: 4, Z: 4}
	_, err := Decode(ModePackedBits, []byte{0x01}, dims, 1)
	require.Error(t, err)
	var trunc *Truncated
	assert.ErrorAs(t, err, &trunc)
}

func TestDecodeRunLengthBits(t *testing.T) {
	// v0=0, v1=255, runs [3, 2, 255, 4]. The 255 is a length-cap escape, not
	// a flip: it continues the run of the value that was active before it
	// (here 0), so the run of 0s spans the cap byte and the 4 that follows
	// it (254+4 = 258 total), and no further flip happens until a later
	// normal-length run. Expect [0,0,0, 255,255, 0x258] truncated to the
	// declared length.
	src := []byte{0, 255, 3, 2, 255, 4}
	got, err := Decode(ModeRunLengthBits, src, Dims{X: 263, Y: 1, Z: 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 263)

	expect := make([]byte, 0, 263)
	expect = append(expect, 0, 0, 0)
	expect = append(expect, 255, 255)
	for i := 0; i < 258; i++ {
		expect = append(expect, 0)
	}
	assert.Equal(t, expect, got)
}

func TestDecodeRunLengthBitsTruncated(t *testing.T) {
	_, err := Decode(ModeRunLengthBits, []byte{0}, Dims{X: 4, Y: 1, Z: 1}, 1)
	require.Error(t, err)
	var trunc *Truncated
	assert.ErrorAs(t, err, &trunc)
}

func TestDecodeRunLengthBytes(t *testing.T) {
	src := []byte{3, 0xaa, 2, 0xbb}
	got, err := Decode(ModeRunLengthBytes, src, Dims{X: 5, Y: 1, Z: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xbb, 0xbb}, got)
}

func TestDecodeRunLengthBytesOutputExactSize(t *testing.T) {
	src := []byte{10, 0x01}
	got, err := Decode(ModeRunLengthBytes, src, Dims{X: 2, Y: 2, Z: 1}, 1)
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, []byte{1, 1, 1, 1}, got)
}

func TestUnrecognizedMode(t *testing.T) {
	_, err := Decode(Mode(0x99), []byte{}, Dims{X: 1, Y: 1, Z: 1}, 1)
	require.Error(t, err)
}
