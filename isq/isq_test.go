package isq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b71729/goscanco/header"
	"github.com/b71729/goscanco/internal/primitive"
)

// buildPreHeader constructs a 512-byte ISQ pre-header/main block with the
// given field values, leaving bytes not under test at their zero default.
func buildPreHeader(t *testing.T, patientIndex, scannerID int32, pixdim, physdim [3]int32,
	sliceThickness, sliceIncrement, startPosition, muScaling, scannerType,
	energy, intensity int32, dataType int32) []byte {
	t.Helper()
	buf := make([]byte, PreHeaderSize)
	copy(buf[0:16], primitive.PadWithSpaces(VersionTag, 16))
	require.NoError(t, primitive.EncodeInt32(dataType, buf[16:20]))
	require.NoError(t, primitive.EncodeInt32(patientIndex, buf[28:32]))
	require.NoError(t, primitive.EncodeInt32(scannerID, buf[32:36]))
	d, err := primitive.ParseDate("15-JAN-2020 12:30:45.123")
	require.NoError(t, err)
	require.NoError(t, primitive.EncodeVMSDate(d, buf[36:44]))
	for i := 0; i < 3; i++ {
		require.NoError(t, primitive.EncodeInt32(pixdim[i], buf[44+4*i:48+4*i]))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, primitive.EncodeInt32(physdim[i], buf[56+4*i:60+4*i]))
	}
	require.NoError(t, primitive.EncodeInt32(sliceThickness, buf[68:72]))
	require.NoError(t, primitive.EncodeInt32(sliceIncrement, buf[72:76]))
	require.NoError(t, primitive.EncodeInt32(startPosition, buf[76:80]))
	require.NoError(t, primitive.EncodeInt32(muScaling, buf[88:92]))
	require.NoError(t, primitive.EncodeInt32(scannerType, buf[104:108]))
	require.NoError(t, primitive.EncodeInt32(energy, buf[168:172]))
	require.NoError(t, primitive.EncodeInt32(intensity, buf[172:176]))
	return buf
}

func TestReadISQScenario(t *testing.T) {
	buf := buildPreHeader(t, 78, 2135,
		[3]int32{1024, 1024, 168}, [3]int32{112640, 112640, 6048},
		36, 36, 0, 4096, 10, 45000, 177, 3)

	h, n, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, PreHeaderSize, n)
	assert.Equal(t, "CTDATA-HEADER_V1", h.Version)
	assert.Equal(t, 78, h.PatientIndex)
	assert.Equal(t, 2135, h.ScannerID)
	assert.Equal(t, [3]int{1024, 1024, 168}, h.PixelDimensions)
	assert.InDelta(t, 0.036, h.SliceThickness, 1.1e-3)
	assert.Equal(t, h.SliceThickness, h.SliceIncrement)
	assert.Equal(t, h.SliceThickness, h.Spacing[2])
	assert.Equal(t, float64(4096), h.MuScaling)
	assert.Equal(t, 10, h.ScannerType)
	assert.InDelta(t, 45.0, h.Energy, 1e-9)
	assert.InDelta(t, 0.177, h.Intensity, 1e-9)

	expectedSlope := 1000 / (h.MuWater * 4096)
	assert.InDelta(t, expectedSlope, h.RescaleSlope, 1e-9)
	assert.Equal(t, -1000.0, h.RescaleIntercept)
}

func TestReadISQDimensionSanity(t *testing.T) {
	buf := buildPreHeader(t, 1, 1,
		[3]int32{0, -5, 10}, [3]int32{0, 1000, 1000},
		0, 0, 0, 1, 0, 0, 0, 3)
	h, _, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, h.PixelDimensions[0]) // pixdim<1 -> 1
	assert.Equal(t, 1, h.PixelDimensions[1])
	assert.Equal(t, float64(1)*1e-3, h.Spacing[0]) // physdim==0 -> 1
}

func TestReadISQRadDetection(t *testing.T) {
	buf := buildPreHeader(t, 1, 1,
		[3]int32{256, 256, 1}, [3]int32{50000, 50000, 0},
		0, 0, 0, 1, 0, 0, 0, 9)
	h, _, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1.0, h.Spacing[2])
}

// buildRadHeader constructs a 512-byte RAD pre-header/main block using the
// RADEncodedHeaderBlock field layout, which is distinct from ISQ's.
func buildRadHeader(t *testing.T, patientIndex, scannerID int32, pixdim, physdim [3]int32,
	measIndex, dataMin, dataMax, muScaling, zPosition, sampleTime,
	energy, intensity, referenceLine, startPosition, endPosition int32) []byte {
	t.Helper()
	buf := make([]byte, PreHeaderSize)
	copy(buf[0:16], primitive.PadWithSpaces(VersionTag, 16))
	require.NoError(t, primitive.EncodeInt32(9, buf[16:20])) // data_type=9 marks RAD
	require.NoError(t, primitive.EncodeInt32(patientIndex, buf[28:32]))
	require.NoError(t, primitive.EncodeInt32(scannerID, buf[32:36]))
	d, err := primitive.ParseDate("15-JAN-2020 12:30:45.123")
	require.NoError(t, err)
	require.NoError(t, primitive.EncodeVMSDate(d, buf[36:44]))
	for i := 0; i < 3; i++ {
		require.NoError(t, primitive.EncodeInt32(pixdim[i], buf[44+4*i:48+4*i]))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, primitive.EncodeInt32(physdim[i], buf[56+4*i:60+4*i]))
	}
	require.NoError(t, primitive.EncodeInt32(measIndex, buf[offRadMeasIndex:offRadMeasIndex+4]))
	require.NoError(t, primitive.EncodeInt32(dataMin, buf[offRadDataMin:offRadDataMin+4]))
	require.NoError(t, primitive.EncodeInt32(dataMax, buf[offRadDataMax:offRadDataMax+4]))
	require.NoError(t, primitive.EncodeInt32(muScaling, buf[offRadMuScaling:offRadMuScaling+4]))
	copy(buf[offRadPatientName:offRadPatientName+40], primitive.PadWithSpaces("RAD PATIENT", 40))
	require.NoError(t, primitive.EncodeInt32(zPosition, buf[offRadZPosition:offRadZPosition+4]))
	require.NoError(t, primitive.EncodeInt32(sampleTime, buf[offRadSampleTime:offRadSampleTime+4]))
	require.NoError(t, primitive.EncodeInt32(energy, buf[offRadEnergy:offRadEnergy+4]))
	require.NoError(t, primitive.EncodeInt32(intensity, buf[offRadIntensity:offRadIntensity+4]))
	require.NoError(t, primitive.EncodeInt32(referenceLine, buf[offRadReferenceLine:offRadReferenceLine+4]))
	require.NoError(t, primitive.EncodeInt32(startPosition, buf[offRadStartPosition:offRadStartPosition+4]))
	require.NoError(t, primitive.EncodeInt32(endPosition, buf[offRadEndPosition:offRadEndPosition+4]))
	return buf
}

func TestReadRADBody(t *testing.T) {
	buf := buildRadHeader(t, 1, 1,
		[3]int32{256, 256, 1}, [3]int32{50000, 50000, 0},
		42, 0, 32767, 4096, 12000, 500,
		45000, 177, 8000, 10000, 18000)

	h, _, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1.0, h.Spacing[2])
	assert.Equal(t, 42, h.MeasurementIndex)
	assert.Equal(t, [2]float64{0, 32767}, h.DataRange)
	assert.Equal(t, float64(4096), h.MuScaling)
	assert.Equal(t, "RAD PATIENT", h.PatientName)
	assert.InDelta(t, 12.0, h.ZPosition, 1e-9)
	assert.InDelta(t, 0.5, h.SampleTime, 1e-9)
	assert.InDelta(t, 45.0, h.Energy, 1e-9)
	assert.InDelta(t, 0.177, h.Intensity, 1e-9)
	assert.InDelta(t, 8.0, h.ReferenceLine, 1e-9)
	assert.InDelta(t, 10.0, h.StartPosition, 1e-9)
	assert.InDelta(t, 18.0, h.EndPosition, 1e-9)
}

func TestReadISQTruncated(t *testing.T) {
	_, _, err := Read(make([]byte, 100))
	require.Error(t, err)
	var trunc *primitive.Truncated
	assert.ErrorAs(t, err, &trunc)
}

func TestHeaderSizeNoExtendedHeader(t *testing.T) {
	buf := make([]byte, PreHeaderSize)
	require.NoError(t, primitive.EncodeInt32(0, buf[508:512]))
	n, err := HeaderSize(buf)
	require.NoError(t, err)
	assert.Equal(t, PreHeaderSize, n)
}

func TestHeaderSizeWithExtendedHeader(t *testing.T) {
	buf := make([]byte, PreHeaderSize)
	require.NoError(t, primitive.EncodeInt32(3, buf[508:512])) // 3 extra blocks
	n, err := HeaderSize(buf)
	require.NoError(t, err)
	assert.Equal(t, 4*PreHeaderSize, n)
}

func TestWriteReadRoundTrip(t *testing.T) {
	h := header.NewHeaderData()
	h.PatientIndex = 78
	h.ScannerID = 2135
	h.PixelDimensions = [3]int{512, 512, 100}
	h.Spacing = [3]float64{0.082, 0.082, 0.082}
	h.CreationDate = "15-JAN-2020 12:30:45.123"
	h.ScannerType = 10
	h.Energy = 45.0
	h.Intensity = 0.177
	h.NumberOfSamples = 750
	h.NumberOfProjections = 900
	h.PatientName = "TEST PATIENT"
	h.DataRange = [2]float64{0, 32767}

	raw, err := Write(&h, 1000)
	require.NoError(t, err)
	require.Len(t, raw, PreHeaderSize)

	got, n, err := Read(raw)
	require.NoError(t, err)
	assert.Equal(t, PreHeaderSize, n)
	assert.Equal(t, VersionTag, got.Version)
	assert.Equal(t, h.PatientIndex, got.PatientIndex)
	assert.Equal(t, h.ScannerID, got.ScannerID)
	assert.Equal(t, h.PixelDimensions, got.PixelDimensions)
	assert.InDelta(t, h.Spacing[2], got.Spacing[2], 1.1e-3)
	assert.Equal(t, h.CreationDate, got.CreationDate)
	assert.Equal(t, h.ScannerType, got.ScannerType)
	assert.InDelta(t, h.Energy, got.Energy, 1e-3)
	assert.InDelta(t, h.Intensity, got.Intensity, 1e-3)
	assert.Equal(t, h.PatientName, got.PatientName)
	// Writer forces mu_scaling to 1.0 so the reader performs no rescaling.
	assert.Equal(t, float64(1), got.MuScaling)
}
