// Package header defines HeaderData, the single in-memory record shared by
// the ISQ and AIM codecs, and the small vocabulary of types (component
// type, codec variant) that travel alongside it.
package header

import "github.com/b71729/goscanco/internal/payload"

// Codec identifies which on-disk variant produced or will consume a
// HeaderData.
type Codec int

// The codec variants recognised by the version detector.
const (
	CodecUnknown Codec = iota
	CodecISQ
	CodecAIMv020
	CodecAIMv030
)

func (c Codec) String() string {
	switch c {
	case CodecISQ:
		return "ISQ"
	case CodecAIMv020:
		return "AIM_V020"
	case CodecAIMv030:
		return "AIM_V030"
	default:
		return "Unknown"
	}
}

// ComponentType identifies the scalar or small-vector pixel type a payload
// is made of, as resolved from an AIM image-struct `type` word or assumed
// for ISQ/RSQ (always int16).
type ComponentType int

// The component types the payload decoder and rescale engine understand.
const (
	ComponentUnknown ComponentType = iota
	ComponentInt8
	ComponentUint8
	ComponentInt8Vec3
	ComponentUint8Vec3
	ComponentInt16
	ComponentUint16
	ComponentInt32
	ComponentFloat32
)

// Size returns the size in bytes of a single voxel of t, or 0 if t is not a
// scalar/vector component this library understands.
func (t ComponentType) Size() int {
	switch t {
	case ComponentInt8, ComponentUint8:
		return 1
	case ComponentInt8Vec3, ComponentUint8Vec3:
		return 3
	case ComponentInt16, ComponentUint16:
		return 2
	case ComponentInt32, ComponentFloat32:
		return 4
	default:
		return 0
	}
}

// HeaderData is the shared in-memory record populated by exactly one codec
// per file. It owns RawHeader; callers must not alias it beyond the
// HeaderData's own lifetime.
type HeaderData struct {
	// Identity
	Version          string
	PatientName      string
	PatientIndex     int
	ScannerID        int
	MeasurementIndex int
	Site             int
	ScannerType      int

	// Dates, formatted "DD-MMM-YYYY HH:MM:SS.mmm"
	CreationDate     string
	ModificationDate string

	// Geometry
	PixelDimensions        [3]int
	Spacing                [3]float64
	Origin                 [3]float32
	ScanDimensionsPixels   [3]int
	ScanDimensionsPhysical [3]float64
	SliceThickness         float64
	SliceIncrement         float64
	StartPosition          float64
	EndPosition            float64
	ZPosition              float64

	// Acquisition
	NumberOfSamples     int
	NumberOfProjections int
	ScanDistance         float64
	SampleTime           float64
	ReferenceLine        float64
	ReconstructionAlg    int
	Energy               float64
	Intensity            float64

	// Calibration
	MuScaling          float64
	MuWater            float64
	DataRange          [2]float64
	RescaleType        int
	RescaleUnits       string
	CalibrationData    string
	RescaleSlope       float64
	RescaleIntercept   float64

	// Payload descriptor
	ComponentType    ComponentType
	CompressionMode  payload.Mode

	// Diagnostics
	ImageSizeBytes  int
	ImageSizeBlocks int

	// Extra holds processing-log keys the AIM codec does not recognise,
	// preserved verbatim (key -> raw value string) in encounter order so
	// a round-tripped file does not silently drop operator annotations.
	Extra []KeyValue

	// RawHeader is the exact byte image of the header as read from (or
	// about to be written to) disk. Owned exclusively by this HeaderData.
	RawHeader []byte

	// Codec records which variant populated this HeaderData.
	Codec Codec
}

// KeyValue is one unrecognized AIM processing-log entry.
type KeyValue struct {
	Key   string
	Value string
}

// NewHeaderData returns a HeaderData populated with the façade's documented
// defaults (§4.7): MuScaling=1.0, RescaleSlope=1.0, MuWater=0.70329999923706055.
func NewHeaderData() HeaderData {
	return HeaderData{
		MuScaling:    1.0,
		RescaleSlope: 1.0,
		MuWater:      0.70329999923706055,
	}
}

// Dictionary builds the §6 metadata-dictionary view of h for the host
// collaborator, keyed by the documented stable names.
func (h *HeaderData) Dictionary() map[string]interface{} {
	return map[string]interface{}{
		"Version":             h.Version,
		"PatientName":         h.PatientName,
		"CreationDate":        h.CreationDate,
		"ModificationDate":    h.ModificationDate,
		"RescaleUnits":        h.RescaleUnits,
		"CalibrationData":     h.CalibrationData,
		"PatientIndex":        h.PatientIndex,
		"ScannerID":           h.ScannerID,
		"NumberOfSamples":     h.NumberOfSamples,
		"NumberOfProjections": h.NumberOfProjections,
		"ScannerType":         h.ScannerType,
		"MeasurementIndex":    h.MeasurementIndex,
		"Site":                h.Site,
		"ReconstructionAlg":   h.ReconstructionAlg,
		"RescaleType":         h.RescaleType,
		"SliceThickness":      h.SliceThickness,
		"SliceIncrement":      h.SliceIncrement,
		"StartPosition":       h.StartPosition,
		"MuScaling":           h.MuScaling,
		"MuWater":             h.MuWater,
		"ScanDistance":        h.ScanDistance,
		"SampleTime":          h.SampleTime,
		"ReferenceLine":       h.ReferenceLine,
		"Energy":              h.Energy,
		"Intensity":           h.Intensity,
		"RescaleSlope":        h.RescaleSlope,
		"RescaleIntercept":    h.RescaleIntercept,
		"DataRange":           h.DataRange,
		"PixelDimensions":     h.PixelDimensions,
		"PhysicalDimensions":  h.ScanDimensionsPhysical,
	}
}

// ApplyMuScalingOverride implements the shared §3 rule: when MuScaling>1
// and MuWater>0 the reader overrides RescaleSlope/RescaleIntercept so that
// HU = raw*slope + intercept.
func (h *HeaderData) ApplyMuScalingOverride() {
	if h.MuScaling > 1 && h.MuWater > 0 {
		h.RescaleSlope = 1000 / (h.MuWater * h.MuScaling)
		h.RescaleIntercept = -1000
	}
}
