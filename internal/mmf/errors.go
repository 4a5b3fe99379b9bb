package mmf

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code is the closed error taxonomy of the decoder.
type Code uint32

const (
	CodeStrErr Code = iota

	CodeInvalidExeSignature
	CodeInvalidPESignature
	CodeInvalidGameSignature

	CodeInvalidState
	CodeInvalidMode
	CodeInvalidChunk

	CodeNoMode0
	CodeNoMode1
	CodeNoMode2
	CodeNoMode3

	CodeOutOfData

	CodeInflateFailed
	CodeDecryptFailed

	CodeNoMode0Decoder
	CodeNoMode1Decoder
	CodeNoMode2Decoder
	CodeNoMode3Decoder

	CodeCancelled
)

func (c Code) String() string {
	switch c {
	case CodeStrErr:
		return "error"
	case CodeInvalidExeSignature:
		return "invalid EXE signature"
	case CodeInvalidPESignature:
		return "invalid PE signature"
	case CodeInvalidGameSignature:
		return "invalid game signature"
	case CodeInvalidState:
		return "invalid state"
	case CodeInvalidMode:
		return "invalid mode"
	case CodeInvalidChunk:
		return "invalid chunk"
	case CodeNoMode0:
		return "no MODE0"
	case CodeNoMode1:
		return "no MODE1"
	case CodeNoMode2:
		return "no MODE2"
	case CodeNoMode3:
		return "no MODE3"
	case CodeOutOfData:
		return "out of data"
	case CodeInflateFailed:
		return "inflate failed"
	case CodeDecryptFailed:
		return "decrypt failed"
	case CodeNoMode0Decoder:
		return "no MODE0 decoder"
	case CodeNoMode1Decoder:
		return "no MODE1 decoder"
	case CodeNoMode2Decoder:
		return "no MODE2 decoder"
	case CodeNoMode3Decoder:
		return "no MODE3 decoder"
	case CodeCancelled:
		return "cancelled"
	default:
		return "invalid error code"
	}
}

// TracePoint is one hop of an error's unwind path.
type TracePoint struct {
	Site    string // "file.go:123"
	Context string
}

// Error carries a taxonomy code and the trace accumulated while the
// error unwound through the decoder.
type Error struct {
	Code  Code
	Trace []TracePoint
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.String())
	for i := len(e.Trace) - 1; i >= 0; i-- {
		tp := e.Trace[i]
		sb.WriteString("\n  at ")
		sb.WriteString(tp.Site)
		if tp.Context != "" {
			sb.WriteString(": ")
			sb.WriteString(tp.Context)
		}
	}
	return sb.String()
}

// Is matches against sentinel *Error values by code, so callers can use
// errors.Is(err, &mmf.Error{Code: mmf.CodeOutOfData}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// NewError creates an error of the given code with the call site as the
// first trace point.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:  code,
		Trace: []TracePoint{{Site: callSite(1), Context: fmt.Sprintf(format, args...)}},
	}
}

// Errorf creates a generic string-carrier error.
func Errorf(format string, args ...any) *Error {
	return &Error{
		Code:  CodeStrErr,
		Trace: []TracePoint{{Site: callSite(1), Context: fmt.Sprintf(format, args...)}},
	}
}

// TraceErr appends a trace point to err and returns it. Non-*Error
// values are wrapped as string carriers first so foreign errors still
// accumulate context.
func TraceErr(err error, format string, args ...any) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Code:  CodeStrErr,
			Trace: []TracePoint{{Site: callSite(1), Context: err.Error()}},
		}
	}
	e.Trace = append(e.Trace, TracePoint{Site: callSite(1), Context: fmt.Sprintf(format, args...)})
	return e
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
