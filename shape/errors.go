package shape

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrTruncatedInput     = errors.New("truncated input")
	ErrMalformedEncoding  = errors.New("malformed encoding")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrIO                 = errors.New("i/o failure")
	ErrSerialization      = errors.New("serialization failure")
)

// TruncatedInputError is returned when the buffer ends before a value is complete.
type TruncatedInputError struct {
	// Needed is the number of bytes still missing at the failing read.
	Needed int
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input: %d more byte(s) needed", e.Needed)
}

func (e *TruncatedInputError) Is(target error) bool { return target == ErrTruncatedInput }

// MalformedEncodingError is returned for structurally inconsistent input.
type MalformedEncodingError struct {
	Detail string
}

// Malformed creates a MalformedEncodingError with a formatted detail message.
func Malformed(format string, args ...any) error {
	return &MalformedEncodingError{Detail: fmt.Sprintf(format, args...)}
}

func (e *MalformedEncodingError) Error() string {
	return "malformed encoding: " + e.Detail
}

func (e *MalformedEncodingError) Is(target error) bool { return target == ErrMalformedEncoding }

// UnsupportedVersionError is returned when a stream declares an unknown format version.
type UnsupportedVersionError struct {
	Found int64
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version: %d", e.Found)
}

func (e *UnsupportedVersionError) Is(target error) bool { return target == ErrUnsupportedVersion }

// IOError wraps a failure of the underlying file system or stream.
//
// The original error can be accessed via errors.Unwrap.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// SerializationError wraps a failure while producing the cache encoding.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failure: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }
