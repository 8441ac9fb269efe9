// Package goscanco is a byte-exact reader/writer for the SCANCO ISQ/RSQ/RAD
// and AIM v020/v030 HR-pQCT file formats. Facade is the dispatch façade
// described in spec §4.7: it classifies a file by content, decodes its
// header and payload, and (for .isq/.aim) can write a header and payload
// back out.
package goscanco

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/b71729/bin"
	"go.uber.org/zap"

	"github.com/b71729/goscanco/aim"
	"github.com/b71729/goscanco/header"
	"github.com/b71729/goscanco/internal/payload"
	"github.com/b71729/goscanco/isq"
	"github.com/b71729/goscanco/rescale"
	"github.com/b71729/goscanco/version"
)

// Facade is a single file session: Closed -> HeaderRead -> PayloadRead ->
// Closed on the read path, Closed -> HeaderWritten -> PayloadWritten ->
// Closed on the write path (§4.8). A Facade owns exactly one HeaderData;
// callers wanting concurrent reads construct independent Facades.
type Facade struct {
	Header      header.HeaderData
	Codec       header.Codec
	PayloadSize int

	Logger *zap.SugaredLogger
	Config Config
}

// NewFacade returns a Facade with the §4.7 documented defaults
// (MuScaling=1.0, RescaleSlope=1.0, MuWater=0.70329999923706055) and the
// package default logger/config.
func NewFacade() *Facade {
	return &Facade{
		Header: header.NewHeaderData(),
		Logger: defaultLogger,
		Config: GetConfig(),
	}
}

// CanRead opens path, reads its first bytes, and reports whether the
// version detector recognizes the format.
func (f *Facade) CanRead(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, header.IoError("goscanco: open %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, isq.PreHeaderSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, header.IoError("goscanco: read %s: %w", path, err)
	}
	return version.Detect(buf[:n]) != header.CodecUnknown, nil
}

// ReadImageInformation opens path and populates f.Header without decoding
// the payload. It dispatches by content (version tag), per §4.2/§4.7.
func (f *Facade) ReadImageInformation(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return header.IoError("goscanco: open %s: %w", path, err)
	}
	defer file.Close()
	return f.readImageInformation(file)
}

func (f *Facade) readImageInformation(r io.ReadSeeker) error {
	first := make([]byte, isq.PreHeaderSize)
	n, err := io.ReadFull(r, first)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return header.IoError("goscanco: read header: %w", err)
	}
	first = first[:n]

	codec := version.Detect(first)
	if codec == header.CodecUnknown {
		return header.UnrecognizedFormatError("goscanco: unrecognized format")
	}

	var total int
	switch codec {
	case header.CodecISQ:
		total, err = isq.HeaderSize(first)
	case header.CodecAIMv020, header.CodecAIMv030:
		total, _, _, err = aim.PreHeaderFields(first, codec)
	}
	if err != nil {
		return err
	}

	raw := make([]byte, total)
	if total <= len(first) {
		copy(raw, first[:total])
	} else {
		copy(raw, first)
		if _, err := r.Seek(int64(len(first)), io.SeekStart); err != nil {
			return header.IoError("goscanco: seek: %w", err)
		}
		// The remainder is a fixed, known size (unlike the payload that
		// follows the header), so it is read through bin.Reader rather
		// than a second io.ReadFull.
		br := bin.NewReader(r, binary.LittleEndian)
		if err := br.ReadBytes(raw[len(first):]); err != nil {
			return header.IoError("goscanco: read header tail: %w", err)
		}
	}

	var h header.HeaderData
	switch codec {
	case header.CodecISQ:
		h, _, err = isq.Read(raw)
	case header.CodecAIMv020, header.CodecAIMv030:
		h, _, err = aim.Read(raw, codec)
	}
	if err != nil {
		f.Logger.Debugw("goscanco: header decode failed", "codec", codec.String(), "error", err)
		return err
	}

	f.Header = h
	f.Codec = codec
	return nil
}

// Read opens path, decodes its header and payload, applies the rescale
// engine, and returns the decoded (and, where applicable, HU-converted)
// pixel buffer. f.Header is populated as a side effect.
func (f *Facade) Read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, header.IoError("goscanco: open %s: %w", path, err)
	}
	defer file.Close()

	if err := f.readImageInformation(file); err != nil {
		return nil, err
	}

	headerEnd := int64(len(f.Header.RawHeader))
	if _, err := file.Seek(headerEnd, io.SeekStart); err != nil {
		return nil, header.IoError("goscanco: seek past header: %w", err)
	}
	rest, err := io.ReadAll(file)
	if err != nil {
		return nil, header.IoError("goscanco: read payload: %w", err)
	}

	dims := payload.Dims{
		X: f.Header.PixelDimensions[0],
		Y: f.Header.PixelDimensions[1],
		Z: f.Header.PixelDimensions[2],
	}
	componentSize := f.Header.ComponentType.Size()
	if componentSize == 0 {
		return nil, header.UnsupportedComponentTypeError("goscanco: unsupported payload component type")
	}

	buf, err := payload.Decode(f.Header.CompressionMode, rest, dims, componentSize)
	if err != nil {
		return nil, err
	}

	if err := rescale.Apply(buf, f.Header.ComponentType, f.Header.RescaleSlope, f.Header.RescaleIntercept); err != nil {
		return nil, err
	}

	f.PayloadSize = len(buf)
	f.Logger.Debugw("goscanco: read complete", "codec", f.Codec.String(), "bytes", len(buf))
	return buf, nil
}

// CanWrite reports whether path's extension is one the writer supports:
// .isq or .aim, case-insensitively (§6; writing .rad/.rsq/AIM-v030 is out
// of scope per spec.md §1 Non-goals).
func (f *Facade) CanWrite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".isq", ".aim":
		return true
	default:
		return false
	}
}

// WriteImageInformation serializes f.Header via the codec selected by
// path's extension and writes it to path, truncating any existing file.
func (f *Facade) WriteImageInformation(path string) error {
	raw, err := f.encodeHeader(path)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return header.IoError("goscanco: open %s: %w", path, err)
	}
	defer file.Close()
	bw := bin.NewWriter(file, binary.LittleEndian)
	if err := bw.WriteBytes(raw); err != nil {
		return header.IoError("goscanco: write header: %w", err)
	}
	f.Header.RawHeader = raw
	return nil
}

// Write writes f.Header (via the codec selected by path's extension) then
// buf as the uncompressed payload. The writer never compresses (§1
// Non-goals); the payload written is a copy of buf passed through
// rescale.Invert, so it equals buf byte-for-byte only when the header's
// rescale slope is 1 and its intercept 0.
func (f *Facade) Write(path string, buf []byte) error {
	if componentSize := f.Header.ComponentType.Size(); componentSize > 0 {
		want := f.Header.PixelDimensions[0] * f.Header.PixelDimensions[1] * f.Header.PixelDimensions[2] * componentSize
		if want > 0 && len(buf) != want {
			return header.SizeMismatchError("goscanco: payload is %d bytes, header dimensions imply %d", len(buf), want)
		}
	}

	f.PayloadSize = len(buf)
	raw, err := f.encodeHeader(path)
	if err != nil {
		return err
	}

	// §4.6 requires the write path to invert the rescale engine (raw =
	// (out-intercept)/slope) before the payload is byte-normalized; buf is
	// copied first so the caller's slice is never mutated under it.
	out := append([]byte(nil), buf...)
	if err := rescale.Invert(out, f.Header.ComponentType, f.Header.RescaleSlope, f.Header.RescaleIntercept); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return header.IoError("goscanco: open %s: %w", path, err)
	}
	defer file.Close()

	bw := bin.NewWriter(file, binary.LittleEndian)
	if err := bw.WriteBytes(raw); err != nil {
		return header.IoError("goscanco: write header: %w", err)
	}
	if err := bw.WriteBytes(out); err != nil {
		return header.IoError("goscanco: write payload: %w", err)
	}

	f.Header.RawHeader = raw
	f.Logger.Debugw("goscanco: write complete", "path", path, "headerBytes", len(raw), "payloadBytes", len(buf))
	return nil
}

func (f *Facade) encodeHeader(path string) ([]byte, error) {
	if !f.CanWrite(path) {
		return nil, header.WriteExtensionError("goscanco: unsupported write extension %q", filepath.Ext(path))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".isq":
		return isq.Write(&f.Header, f.PayloadSize)
	case ".aim":
		return aim.Write(&f.Header, f.Header.ComponentType, f.PayloadSize)
	default:
		return nil, header.WriteExtensionError("goscanco: unsupported write extension %q", filepath.Ext(path))
	}
}
