// Package isq implements the ISQ/RSQ/RAD header codec: the 512-byte
// pre-header and main block, the optional extended header (MultiHeader
// marker + calibration directory + calibration block), and the write path
// that emits a single uncompressed 512-byte block.
package isq

import (
	"math"

	"github.com/b71729/goscanco/header"
	"github.com/b71729/goscanco/internal/primitive"
)

// PreHeaderSize is the fixed size, in bytes, of the ISQ pre-header and
// main block.
const PreHeaderSize = 512

// VersionTag is the fixed 16-byte magic every ISQ/RSQ file opens with.
const VersionTag = "CTDATA-HEADER_V1"

// multiHeaderMagic is the stripped text of the optional extended-header
// MultiHeader marker (§4.3; reverse-engineered per Open Question 4).
const multiHeaderMagic = "MultiHeader"

// calibrationEntryName is the stripped directory-entry name identifying
// the calibration block.
const calibrationEntryName = "Calibration"

const (
	offVersion      = 0
	offDataType     = 16
	offImageBytes   = 20
	offImageBlocks  = 24
	offPatientIdx   = 28
	offScannerID    = 32
	offCreationDate = 36
	offPixDim       = 44
	offPhysDim      = 56
	offMain         = 68
)

const (
	offSliceThickness = offMain + 0
	offSliceIncrement = offMain + 4
	offStartPosition  = offMain + 8
	offDataMin        = offMain + 12
	offDataMax        = offMain + 16
	offMuScaling      = offMain + 20
	offNumSamples     = offMain + 24
	offNumProj        = offMain + 28
	offScanDistance   = offMain + 32
	offScannerType    = offMain + 36
	offSampleTime     = offMain + 40
	offMeasIndex      = offMain + 44
	offSite           = offMain + 48
	offReferenceLine  = offMain + 52
	offReconAlg       = offMain + 56
	offPatientName    = offMain + 60 // 40 bytes
	offEnergy         = offPatientName + 40
	offIntensity      = offEnergy + 4
	offDataOffset     = 508
)

// RAD main-block field offsets (RADEncodedHeaderBlock in
// itkISQHeaderIO.cxx), a layout distinct from the ISQ one above: fields are
// ordered differently and a RAD file has no scanner/reconstruction fields.
// Only offMain (the pre-header size) is shared with the ISQ layout.
const (
	offRadMeasIndex     = offMain + 0
	offRadDataMin       = offMain + 4
	offRadDataMax       = offMain + 8
	offRadMuScaling     = offMain + 12
	offRadPatientName   = offMain + 16 // 40 bytes
	offRadZPosition     = offRadPatientName + 40
	offRadSampleTime    = offRadZPosition + 8 // 4 bytes of unused fill follow ZPosition
	offRadEnergy        = offRadSampleTime + 4
	offRadIntensity     = offRadEnergy + 4
	offRadReferenceLine = offRadIntensity + 4
	offRadStartPosition = offRadReferenceLine + 4
	offRadEndPosition   = offRadStartPosition + 4
)

// calibration block field offsets, relative to the block's own start.
const (
	calOffData      = 28
	calOffType      = 632
	calOffUnits     = 648
	calOffSlope     = 664
	calOffIntercept = 672
	calOffMuWater   = 688
	calBlockMinLen  = calOffMuWater + 8
)

const milli = 1e-3
const micro = 1e-6

// HeaderSize reads the 512-byte pre-header/main block's data_offset field
// (offset 508) from first512 and returns the total header size in bytes:
// (data_offset + 1) * 512.
func HeaderSize(first512 []byte) (int, error) {
	if len(first512) < PreHeaderSize {
		return 0, primitive.TruncatedError("isq: HeaderSize: need %d bytes, got %d", PreHeaderSize, len(first512))
	}
	dataOffset, err := primitive.DecodeInt32(first512[offDataOffset : offDataOffset+4])
	if err != nil {
		return 0, err
	}
	return int(dataOffset+1) * PreHeaderSize, nil
}

// Read decodes raw (the complete header, as sized by HeaderSize) into a
// HeaderData. raw becomes the HeaderData's owned RawHeader.
func Read(raw []byte) (header.HeaderData, int, error) {
	if len(raw) < PreHeaderSize {
		return header.HeaderData{}, 0, primitive.TruncatedError("isq: Read: need %d bytes, got %d", PreHeaderSize, len(raw))
	}
	h := header.NewHeaderData()
	h.Codec = header.CodecISQ
	h.RawHeader = raw
	h.Version = primitive.StripTrailingSpaces(raw[offVersion:offVersion+16], 16)

	dataType, err := primitive.DecodeInt32(raw[offDataType : offDataType+4])
	if err != nil {
		return header.HeaderData{}, 0, err
	}
	imageSizeBytes, _ := primitive.DecodeInt32(raw[offImageBytes : offImageBytes+4])
	imageSizeBlocks, _ := primitive.DecodeInt32(raw[offImageBlocks : offImageBlocks+4])
	patientIndex, _ := primitive.DecodeInt32(raw[offPatientIdx : offPatientIdx+4])
	scannerID, _ := primitive.DecodeInt32(raw[offScannerID : offScannerID+4])

	vmsDate, err := primitive.DecodeVMSDate(raw[offCreationDate : offCreationDate+8])
	if err != nil {
		return header.HeaderData{}, 0, err
	}
	h.CreationDate = primitive.FormatDate(vmsDate)

	var pixdim, physdim [3]int32
	for i := 0; i < 3; i++ {
		v, err := primitive.DecodeInt32(raw[offPixDim+4*i : offPixDim+4*i+4])
		if err != nil {
			return header.HeaderData{}, 0, err
		}
		pixdim[i] = v
	}
	for i := 0; i < 3; i++ {
		v, err := primitive.DecodeInt32(raw[offPhysDim+4*i : offPhysDim+4*i+4])
		if err != nil {
			return header.HeaderData{}, 0, err
		}
		physdim[i] = v
	}
	isRad := dataType == 9 || physdim[2] == 0

	// RAD files use RADEncodedHeaderBlock, a distinct field layout from
	// ISQ's ISQEncodedHeaderBlock (itkISQHeaderIO.cxx); only the 68-byte
	// pre-header (offMain) is shared between the two.
	var sliceThicknessRaw, sliceIncrementRaw, startPositionRaw, dataMin, dataMax int32
	var muScalingRaw, numSamples, numProj, scanDistanceRaw, scannerType int32
	var sampleTimeRaw, measIndex, site, referenceLineRaw, reconAlg int32
	var patientName string
	var energyRaw, intensityRaw int32
	var zPositionRaw, endPositionRaw int32
	var haveRadPositions bool

	if isRad {
		measIndex, _ = primitive.DecodeInt32(raw[offRadMeasIndex : offRadMeasIndex+4])
		dataMin, _ = primitive.DecodeInt32(raw[offRadDataMin : offRadDataMin+4])
		dataMax, _ = primitive.DecodeInt32(raw[offRadDataMax : offRadDataMax+4])
		muScalingRaw, _ = primitive.DecodeInt32(raw[offRadMuScaling : offRadMuScaling+4])
		patientName = primitive.DecodeFixedText(raw[offRadPatientName:offRadPatientName+40], 40)
		zPositionRaw, _ = primitive.DecodeInt32(raw[offRadZPosition : offRadZPosition+4])
		sampleTimeRaw, _ = primitive.DecodeInt32(raw[offRadSampleTime : offRadSampleTime+4])
		energyRaw, _ = primitive.DecodeInt32(raw[offRadEnergy : offRadEnergy+4])
		intensityRaw, _ = primitive.DecodeInt32(raw[offRadIntensity : offRadIntensity+4])
		referenceLineRaw, _ = primitive.DecodeInt32(raw[offRadReferenceLine : offRadReferenceLine+4])
		startPositionRaw, _ = primitive.DecodeInt32(raw[offRadStartPosition : offRadStartPosition+4])
		endPositionRaw, _ = primitive.DecodeInt32(raw[offRadEndPosition : offRadEndPosition+4])
		haveRadPositions = true
	} else {
		sliceThicknessRaw, _ = primitive.DecodeInt32(raw[offSliceThickness : offSliceThickness+4])
		sliceIncrementRaw, _ = primitive.DecodeInt32(raw[offSliceIncrement : offSliceIncrement+4])
		startPositionRaw, _ = primitive.DecodeInt32(raw[offStartPosition : offStartPosition+4])
		dataMin, _ = primitive.DecodeInt32(raw[offDataMin : offDataMin+4])
		dataMax, _ = primitive.DecodeInt32(raw[offDataMax : offDataMax+4])
		muScalingRaw, _ = primitive.DecodeInt32(raw[offMuScaling : offMuScaling+4])
		numSamples, _ = primitive.DecodeInt32(raw[offNumSamples : offNumSamples+4])
		numProj, _ = primitive.DecodeInt32(raw[offNumProj : offNumProj+4])
		scanDistanceRaw, _ = primitive.DecodeInt32(raw[offScanDistance : offScanDistance+4])
		scannerType, _ = primitive.DecodeInt32(raw[offScannerType : offScannerType+4])
		sampleTimeRaw, _ = primitive.DecodeInt32(raw[offSampleTime : offSampleTime+4])
		measIndex, _ = primitive.DecodeInt32(raw[offMeasIndex : offMeasIndex+4])
		site, _ = primitive.DecodeInt32(raw[offSite : offSite+4])
		referenceLineRaw, _ = primitive.DecodeInt32(raw[offReferenceLine : offReferenceLine+4])
		reconAlg, _ = primitive.DecodeInt32(raw[offReconAlg : offReconAlg+4])
		patientName = primitive.DecodeFixedText(raw[offPatientName:offPatientName+40], 40)
		energyRaw, _ = primitive.DecodeInt32(raw[offEnergy : offEnergy+4])
		intensityRaw, _ = primitive.DecodeInt32(raw[offIntensity : offIntensity+4])
	}

	// dimension sanity (§4.3)
	for i := 0; i < 3; i++ {
		if pixdim[i] < 1 {
			pixdim[i] = 1
		}
		if physdim[i] == 0 {
			physdim[i] = 1
		}
	}

	scaleFactor := milli
	if isRad {
		scaleFactor = micro
	}
	var spacing [3]float64
	for i := 0; i < 3; i++ {
		spacing[i] = float64(physdim[i]) / float64(pixdim[i]) * scaleFactor
	}
	if isRad {
		spacing[2] = 1.0
	}

	h.PixelDimensions = [3]int{int(pixdim[0]), int(pixdim[1]), int(pixdim[2])}
	h.ScanDimensionsPixels = h.PixelDimensions
	for i := 0; i < 3; i++ {
		h.ScanDimensionsPhysical[i] = float64(physdim[i]) * scaleFactor
	}
	h.Spacing = spacing

	sliceThickness := float64(sliceThicknessRaw) * milli
	sliceIncrement := float64(sliceIncrementRaw) * milli
	if !isRad {
		if math.Abs(sliceThickness-spacing[2]) < 1.1e-3 {
			sliceThickness = spacing[2]
		}
		if math.Abs(sliceIncrement-spacing[2]) < 1.1e-3 {
			sliceIncrement = spacing[2]
		}
	}
	h.SliceThickness = sliceThickness
	h.SliceIncrement = sliceIncrement
	h.StartPosition = float64(startPositionRaw) * milli
	if haveRadPositions {
		// RAD carries ZPosition and EndPosition as distinct fields rather
		// than aliasing/deriving them from StartPosition and spacing.
		h.ZPosition = float64(zPositionRaw) * milli
		h.EndPosition = float64(endPositionRaw) * milli
	} else {
		h.ZPosition = h.StartPosition
		h.EndPosition = h.StartPosition + spacing[2]*float64(h.PixelDimensions[2]-1)
	}

	h.DataRange = [2]float64{float64(dataMin), float64(dataMax)}
	h.MuScaling = float64(muScalingRaw)
	h.NumberOfSamples = int(numSamples)
	h.NumberOfProjections = int(numProj)
	h.ScanDistance = float64(scanDistanceRaw) * milli
	h.ScannerType = int(scannerType)
	h.SampleTime = float64(sampleTimeRaw) * milli
	h.MeasurementIndex = int(measIndex)
	h.Site = int(site)
	h.ReferenceLine = float64(referenceLineRaw) * milli
	h.ReconstructionAlg = int(reconAlg)
	h.PatientName = patientName
	h.Energy = float64(energyRaw) * milli
	h.Intensity = float64(intensityRaw) * milli
	h.ImageSizeBytes = int(imageSizeBytes)
	h.ImageSizeBlocks = int(imageSizeBlocks)
	h.PatientIndex = int(patientIndex)
	h.ScannerID = int(scannerID)
	h.ComponentType = header.ComponentInt16
	h.CompressionMode = 0

	if calBlock, ok := findCalibrationBlock(raw); ok {
		h.CalibrationData = primitive.DecodeFixedText(calBlock[calOffData:calOffData+64], 64)
		rescaleType, _ := primitive.DecodeInt32(calBlock[calOffType : calOffType+4])
		h.RescaleType = int(rescaleType)
		h.RescaleUnits = primitive.DecodeFixedText(calBlock[calOffUnits:calOffUnits+16], 16)
		slope, _ := primitive.DecodeScancoDouble(calBlock[calOffSlope : calOffSlope+8])
		intercept, _ := primitive.DecodeScancoDouble(calBlock[calOffIntercept : calOffIntercept+8])
		muWater, _ := primitive.DecodeScancoDouble(calBlock[calOffMuWater : calOffMuWater+8])
		h.RescaleSlope = slope
		h.RescaleIntercept = intercept
		if muWater > 0 {
			h.MuWater = muWater
		}
	}

	// Rescale-slope normalization (§4.3): always divide by mu_scaling when
	// it exceeds 1, whether or not a calibration block supplied the slope.
	if h.MuScaling > 1 {
		h.RescaleSlope /= h.MuScaling
	}
	h.ApplyMuScalingOverride()

	return h, PreHeaderSize, nil
}

// findCalibrationBlock walks the optional extended header (§4.3) looking
// for a directory entry named "Calibration". It returns false rather than
// an error when the extended header is absent, too short, or malformed --
// the extended header layout is explicitly best-effort (Open Question 4).
func findCalibrationBlock(raw []byte) ([]byte, bool) {
	if len(raw) < 2*PreHeaderSize {
		return nil, false
	}
	pos := PreHeaderSize
	if len(raw) >= pos+16+16 {
		marker := primitive.StripTrailingSpaces(raw[pos+8:pos+8+16], 16)
		if marker == multiHeaderMagic {
			pos += PreHeaderSize
		}
	}
	dirBase := pos
	dataBase := dirBase + PreHeaderSize
	if dataBase > len(raw) {
		return nil, false
	}

	offset := 0
	for i := 0; i < 4; i++ {
		entryStart := dirBase + i*128
		if entryStart+128 > len(raw) {
			break
		}
		entry := raw[entryStart : entryStart+128]
		name := primitive.StripTrailingSpaces(entry[8:24], 16)
		blockCount, err := primitive.DecodeInt32(entry[28:32])
		if err != nil {
			break
		}
		if name == calibrationEntryName {
			calStart := dataBase + offset
			calEnd := calStart + int(blockCount)*PreHeaderSize
			if blockCount <= 0 || calEnd > len(raw) || calEnd-calStart < calBlockMinLen {
				return nil, false
			}
			return raw[calStart:calEnd], true
		}
		if blockCount > 0 {
			offset += int(blockCount) * PreHeaderSize
		}
	}
	return nil, false
}

// Write emits the single uncompressed 512-byte ISQ main block for h,
// per §4.3's write path: data_type=3, data_offset=0 (no extended header),
// mu_scaling forced to 1.0, version tag always VersionTag.
func Write(h *header.HeaderData, payloadBytes int) ([]byte, error) {
	buf := make([]byte, PreHeaderSize)
	copy(buf[offVersion:offVersion+16], primitive.PadWithSpaces(VersionTag, 16))
	_ = primitive.EncodeInt32(3, buf[offDataType:offDataType+4])
	imageSizeBlocks := (payloadBytes + PreHeaderSize - 1) / PreHeaderSize
	_ = primitive.EncodeInt32(int32(payloadBytes), buf[offImageBytes:offImageBytes+4])
	_ = primitive.EncodeInt32(int32(imageSizeBlocks), buf[offImageBlocks:offImageBlocks+4])
	_ = primitive.EncodeInt32(int32(h.PatientIndex), buf[offPatientIdx:offPatientIdx+4])
	_ = primitive.EncodeInt32(int32(h.ScannerID), buf[offScannerID:offScannerID+4])

	d, err := primitive.ParseDate(h.CreationDate)
	if err != nil {
		return nil, err
	}
	if err := primitive.EncodeVMSDate(d, buf[offCreationDate:offCreationDate+8]); err != nil {
		return nil, err
	}

	for i := 0; i < 3; i++ {
		_ = primitive.EncodeInt32(int32(h.PixelDimensions[i]), buf[offPixDim+4*i:offPixDim+4*i+4])
	}
	for i := 0; i < 3; i++ {
		physdim := int32(math.Round(h.Spacing[i] * float64(h.PixelDimensions[i]) / milli))
		_ = primitive.EncodeInt32(physdim, buf[offPhysDim+4*i:offPhysDim+4*i+4])
	}

	_ = primitive.EncodeInt32(int32(math.Round(h.SliceThickness/milli)), buf[offSliceThickness:offSliceThickness+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.SliceIncrement/milli)), buf[offSliceIncrement:offSliceIncrement+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.StartPosition/milli)), buf[offStartPosition:offStartPosition+4])
	_ = primitive.EncodeInt32(int32(h.DataRange[0]), buf[offDataMin:offDataMin+4])
	_ = primitive.EncodeInt32(int32(h.DataRange[1]), buf[offDataMax:offDataMax+4])
	_ = primitive.EncodeInt32(1, buf[offMuScaling:offMuScaling+4]) // forced to 1.0 on write
	_ = primitive.EncodeInt32(int32(h.NumberOfSamples), buf[offNumSamples:offNumSamples+4])
	_ = primitive.EncodeInt32(int32(h.NumberOfProjections), buf[offNumProj:offNumProj+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.ScanDistance/milli)), buf[offScanDistance:offScanDistance+4])
	_ = primitive.EncodeInt32(int32(h.ScannerType), buf[offScannerType:offScannerType+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.SampleTime/milli)), buf[offSampleTime:offSampleTime+4])
	_ = primitive.EncodeInt32(int32(h.MeasurementIndex), buf[offMeasIndex:offMeasIndex+4])
	_ = primitive.EncodeInt32(int32(h.Site), buf[offSite:offSite+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.ReferenceLine/milli)), buf[offReferenceLine:offReferenceLine+4])
	_ = primitive.EncodeInt32(int32(h.ReconstructionAlg), buf[offReconAlg:offReconAlg+4])
	copy(buf[offPatientName:offPatientName+40], primitive.PadWithSpaces(h.PatientName, 40))
	_ = primitive.EncodeInt32(int32(math.Round(h.Energy/milli)), buf[offEnergy:offEnergy+4])
	_ = primitive.EncodeInt32(int32(math.Round(h.Intensity/milli)), buf[offIntensity:offIntensity+4])
	_ = primitive.EncodeInt32(0, buf[offDataOffset:offDataOffset+4]) // no extended header

	return buf, nil
}
