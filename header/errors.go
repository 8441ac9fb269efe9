package header

import "fmt"

/*
===============================================================================
    Error Types
===============================================================================
*/

// Io is an error indicating that an underlying stream operation (open,
// read, write, seek) failed.
type Io struct{ error }

// UnrecognizedFormat is an error indicating that the first bytes of a file
// do not match any known SCANCO variant.
type UnrecognizedFormat struct{ error }

// UnsupportedComponentType is an error indicating an AIM `type` word outside
// the fixed table, or an unsupported writer component type.
type UnsupportedComponentType struct{ error }

// WriteExtension is an error indicating the writer was invoked against a
// file extension it does not support.
type WriteExtension struct{ error }

// SizeMismatch is an error indicating that a payload's length does not match
// the byte count implied by the header's pixel dimensions and component
// type. It is raised before anything is written; the bytes actually written
// are not cross-checked afterwards.
type SizeMismatch struct{ error }

// IoError raises an Io error.
func IoError(format string, a ...interface{}) *Io {
	return &Io{fmt.Errorf(format, a...)}
}

// UnrecognizedFormatError raises an UnrecognizedFormat error.
func UnrecognizedFormatError(format string, a ...interface{}) *UnrecognizedFormat {
	return &UnrecognizedFormat{fmt.Errorf(format, a...)}
}

// UnsupportedComponentTypeError raises an UnsupportedComponentType error.
func UnsupportedComponentTypeError(format string, a ...interface{}) *UnsupportedComponentType {
	return &UnsupportedComponentType{fmt.Errorf(format, a...)}
}

// WriteExtensionError raises a WriteExtension error.
func WriteExtensionError(format string, a ...interface{}) *WriteExtension {
	return &WriteExtension{fmt.Errorf(format, a...)}
}

// SizeMismatchError raises a SizeMismatch error.
func SizeMismatchError(format string, a ...interface{}) *SizeMismatch {
	return &SizeMismatch{fmt.Errorf(format, a...)}
}
