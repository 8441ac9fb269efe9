package rescale

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b71729/goscanco/header"
)

func TestApplyNoOpWhenIdentity(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	orig := append([]byte{}, buf...)
	require.NoError(t, Apply(buf, header.ComponentUint8, 1, 0))
	assert.Equal(t, orig, buf)
}

func TestApplyInt16(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(int16(100)))
	v1raw := int16(-50)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(v1raw))

	slope := 1000.0 / (0.2409 * 8192)
	intercept := -1000.0
	require.NoError(t, Apply(buf, header.ComponentInt16, slope, intercept))

	v0 := int16(binary.LittleEndian.Uint16(buf[0:2]))
	v1 := int16(binary.LittleEndian.Uint16(buf[2:4]))
	assert.InDelta(t, 100*slope+intercept, float64(v0), 1)
	assert.InDelta(t, -50*slope+intercept, float64(v1), 1)
}

func TestApplyInvertRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(int16(1234)))
	orig := append([]byte{}, buf...)

	slope, intercept := 0.5, -1000.0
	require.NoError(t, Apply(buf, header.ComponentInt16, slope, intercept))
	require.NoError(t, Invert(buf, header.ComponentInt16, slope, intercept))
	assert.Equal(t, orig, buf)
}

func TestApplyFloat32(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(10))
	require.NoError(t, Apply(buf, header.ComponentFloat32, 2, 5))
	got := math.Float32frombits(binary.LittleEndian.Uint32(buf))
	assert.InDelta(t, 25.0, got, 1e-6)
}

func TestApplyUnsupportedComponentType(t *testing.T) {
	buf := []byte{1, 2, 3}
	err := Apply(buf, header.ComponentInt8Vec3, 2, 0)
	require.Error(t, err)
	var unsupported *header.UnsupportedComponentType
	assert.ErrorAs(t, err, &unsupported)
}
