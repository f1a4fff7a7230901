package edgedecode

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode is the result code returned across the decode pipeline.  It
// implements the error interface so codes can be returned directly or
// wrapped with additional context.
type ErrorCode int

// error code values used by engines, converters and decoders
const (
	OK ErrorCode = iota
	ErrInvalidArgument
	ErrIO
	ErrNotSupported
	ErrOutOfMemory
	ErrTimeout
)

// String returns a readable description of the error code
func (e ErrorCode) String() string {
	switch e {
	case OK:
		return "ok"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIO:
		return "input/output failure"
	case ErrNotSupported:
		return "not supported"
	case ErrOutOfMemory:
		return "out of memory"
	case ErrTimeout:
		return "timed out"
	default:
		return fmt.Sprintf("unknown error code %d", int(e))
	}
}

// Error returns the error code description
func (e ErrorCode) Error() string {
	return e.String()
}

// CodeOf returns the ErrorCode carried by err.  A nil error is OK, an error
// that does not wrap an ErrorCode is reported as ErrIO.
func CodeOf(err error) ErrorCode {

	if err == nil {
		return OK
	}

	var code ErrorCode

	if errors.As(err, &code) {
		return code
	}

	return ErrIO
}
