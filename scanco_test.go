package goscanco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b71729/goscanco/header"
)

func TestFacadeCanReadUnrecognized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.isq")
	require.NoError(t, writeFile(path, []byte("not a scanco file at all, padded out")))

	f := NewFacade()
	ok, err := f.CanRead(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacadeCanWriteExtensions(t *testing.T) {
	f := NewFacade()
	assert.True(t, f.CanWrite("scan.isq"))
	assert.True(t, f.CanWrite("scan.ISQ"))
	assert.True(t, f.CanWrite("scan.aim"))
	assert.False(t, f.CanWrite("scan.rad"))
	assert.False(t, f.CanWrite("scan.rsq"))
	assert.False(t, f.CanWrite("scan.txt"))
}

func TestFacadeISQWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.isq")

	f := NewFacade()
	f.Header.PatientIndex = 78
	f.Header.ScannerID = 2135
	f.Header.PixelDimensions = [3]int{16, 16, 4}
	f.Header.Spacing = [3]float64{0.082, 0.082, 0.082}
	f.Header.CreationDate = "15-JAN-2020 12:30:45.123"
	f.Header.ScannerType = 10
	f.Header.PatientName = "TEST PATIENT"
	f.Header.DataRange = [2]float64{0, 32767}
	f.Header.ComponentType = header.ComponentInt16

	payload := make([]byte, 16*16*4*2)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, f.Write(path, payload))

	g := NewFacade()
	ok, err := g.CanRead(path)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := g.Read(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, f.Header.PatientIndex, g.Header.PatientIndex)
	assert.Equal(t, f.Header.ScannerID, g.Header.ScannerID)
	assert.Equal(t, f.Header.PixelDimensions, g.Header.PixelDimensions)
	assert.Equal(t, f.Header.PatientName, g.Header.PatientName)
	// writer forces mu_scaling to 1.0, so the re-read sees no HU rescale.
	assert.Equal(t, 1.0, g.Header.MuScaling)
}

func TestFacadeWriteSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.isq")

	f := NewFacade()
	f.Header.PixelDimensions = [3]int{4, 4, 4}
	f.Header.ComponentType = header.ComponentInt16

	err := f.Write(path, make([]byte, 3))
	require.Error(t, err)
	var mismatch *header.SizeMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestFacadeWriteExtensionRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unsupported.rad")

	f := NewFacade()
	err := f.Write(path, []byte{1, 2, 3, 4})
	require.Error(t, err)
	var writeExt *header.WriteExtension
	assert.ErrorAs(t, err, &writeExt)
}

func writeFile(path string, data []byte) error {
	buf := make([]byte, 512)
	copy(buf, data)
	return os.WriteFile(path, buf, 0o644)
}
