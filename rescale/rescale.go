// Package rescale implements the Hounsfield-unit conversion applied to a
// decoded payload buffer, in both directions.
package rescale

import (
	"encoding/binary"
	"math"

	"github.com/b71729/goscanco/header"
)

// Apply converts buf in place from raw scanner units to Hounsfield units
// using out = raw*slope + intercept, applied per native component. It is a
// no-op when slope==1 and intercept==0 (§4.6).
func Apply(buf []byte, componentType header.ComponentType, slope, intercept float64) error {
	if slope == 1 && intercept == 0 {
		return nil
	}
	return transform(buf, componentType, func(raw float64) float64 {
		return raw*slope + intercept
	})
}

// Invert converts buf in place from Hounsfield units back to raw scanner
// units using raw = (out-intercept)/slope, the write-path inverse of Apply.
func Invert(buf []byte, componentType header.ComponentType, slope, intercept float64) error {
	if slope == 1 && intercept == 0 {
		return nil
	}
	return transform(buf, componentType, func(out float64) float64 {
		return (out - intercept) / slope
	})
}

func transform(buf []byte, componentType header.ComponentType, f func(float64) float64) error {
	switch componentType {
	case header.ComponentInt8:
		for i := 0; i < len(buf); i++ {
			buf[i] = byte(int8(math.Round(f(float64(int8(buf[i])))))) //nolint:gosec // intentional narrowing, matches native component width
		}
	case header.ComponentUint8:
		for i := 0; i < len(buf); i++ {
			buf[i] = byte(math.Round(f(float64(buf[i]))))
		}
	case header.ComponentInt16:
		for i := 0; i+1 < len(buf); i += 2 {
			v := int16(binary.LittleEndian.Uint16(buf[i : i+2]))
			binary.LittleEndian.PutUint16(buf[i:i+2], uint16(int16(math.Round(f(float64(v))))))
		}
	case header.ComponentUint16:
		for i := 0; i+1 < len(buf); i += 2 {
			v := binary.LittleEndian.Uint16(buf[i : i+2])
			binary.LittleEndian.PutUint16(buf[i:i+2], uint16(math.Round(f(float64(v)))))
		}
	case header.ComponentInt32:
		for i := 0; i+3 < len(buf); i += 4 {
			v := int32(binary.LittleEndian.Uint32(buf[i : i+4]))
			binary.LittleEndian.PutUint32(buf[i:i+4], uint32(int32(math.Round(f(float64(v))))))
		}
	case header.ComponentFloat32:
		for i := 0; i+3 < len(buf); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(buf[i : i+4]))
			binary.LittleEndian.PutUint32(buf[i:i+4], math.Float32bits(float32(f(float64(v)))))
		}
	// uint32 is a native type per §4.6 but has no case here: no AIM "type"
	// word maps a component to uint32, so no caller can reach it today.
	default:
		return header.UnsupportedComponentTypeError("rescale: unsupported component type %v", componentType)
	}
	return nil
}
