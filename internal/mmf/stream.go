package mmf

import (
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Stream is a position-tracked cursor over an in-memory buffer. Reads
// never mutate the buffer; the position advances on every read. All
// reads fail with an out-of-data error when fewer bytes remain than
// requested.
type Stream struct {
	buf []byte
	pos int
}

// NewStream wraps buf without copying it.
func NewStream(buf []byte) *Stream {
	return &Stream{buf: buf}
}

func (s *Stream) Size() int      { return len(s.buf) }
func (s *Stream) Position() int  { return s.pos }
func (s *Stream) Remaining() int { return len(s.buf) - s.pos }

// Bytes returns the underlying buffer. Callers must not mutate it.
func (s *Stream) Bytes() []byte { return s.buf }

// Seek moves the cursor to an absolute position.
func (s *Stream) Seek(pos int) error {
	if pos < 0 || pos > len(s.buf) {
		return NewError(CodeOutOfData, "seek to %d outside buffer of %d bytes", pos, len(s.buf))
	}
	s.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (s *Stream) Skip(n int) error {
	if n < 0 || s.Remaining() < n {
		return NewError(CodeOutOfData, "%d bytes remaining, expected %d", s.Remaining(), n)
	}
	s.pos += n
	return nil
}

// ReadSpan returns a view of the next n bytes of the buffer. The view
// aliases the buffer and must not outlive it.
func (s *Stream) ReadSpan(n int) ([]byte, error) {
	if n < 0 || s.Remaining() < n {
		return nil, NewError(CodeOutOfData, "%d bytes remaining, expected %d", s.Remaining(), n)
	}
	span := s.buf[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	return span, nil
}

func (s *Stream) ReadU8() (uint8, error) {
	if s.Remaining() < 1 {
		return 0, NewError(CodeOutOfData, "0 bytes remaining, expected 1")
	}
	v := s.buf[s.pos]
	s.pos++
	return v, nil
}

func (s *Stream) ReadU16() (uint16, error) {
	if s.Remaining() < 2 {
		return 0, NewError(CodeOutOfData, "%d bytes remaining, expected 2", s.Remaining())
	}
	v := binary.LittleEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v, nil
}

func (s *Stream) ReadU32() (uint32, error) {
	if s.Remaining() < 4 {
		return 0, NewError(CodeOutOfData, "%d bytes remaining, expected 4", s.Remaining())
	}
	v := binary.LittleEndian.Uint32(s.buf[s.pos:])
	s.pos += 4
	return v, nil
}

func (s *Stream) ReadU64() (uint64, error) {
	if s.Remaining() < 8 {
		return 0, NewError(CodeOutOfData, "%d bytes remaining, expected 8", s.Remaining())
	}
	v := binary.LittleEndian.Uint64(s.buf[s.pos:])
	s.pos += 8
	return v, nil
}

func (s *Stream) ReadI16() (int16, error) {
	v, err := s.ReadU16()
	return int16(v), err
}

func (s *Stream) ReadI32() (int32, error) {
	v, err := s.ReadU32()
	return int32(v), err
}

// ReadCStringNarrow reads a NUL-terminated Windows-1252 string.
func (s *Stream) ReadCStringNarrow() (string, error) {
	start := s.pos
	for i := s.pos; i < len(s.buf); i++ {
		if s.buf[i] == 0 {
			s.pos = i + 1
			return DecodeNarrow(s.buf[start:i])
		}
	}
	return "", NewError(CodeOutOfData, "no NUL terminator within %d bytes", len(s.buf)-start)
}

// ReadCStringWide reads a NUL-terminated UTF-16LE string.
func (s *Stream) ReadCStringWide() (string, error) {
	start := s.pos
	for i := s.pos; i+1 < len(s.buf); i += 2 {
		if s.buf[i] == 0 && s.buf[i+1] == 0 {
			s.pos = i + 2
			return DecodeWide(s.buf[start:i])
		}
	}
	return "", NewError(CodeOutOfData, "no wide NUL terminator within %d bytes", len(s.buf)-start)
}

// ReadLengthPrefixed reads a string whose character count is stored as
// a little-endian integer of the given byte width (1, 2 or 4). wide
// selects UTF-16LE code units over narrow bytes.
func (s *Stream) ReadLengthPrefixed(width int, wide bool) (string, error) {
	var n int
	switch width {
	case 1:
		v, err := s.ReadU8()
		if err != nil {
			return "", err
		}
		n = int(v)
	case 2:
		v, err := s.ReadU16()
		if err != nil {
			return "", err
		}
		n = int(v)
	case 4:
		v, err := s.ReadU32()
		if err != nil {
			return "", err
		}
		n = int(v)
	default:
		return "", Errorf("invalid length prefix width %d", width)
	}

	if wide {
		span, err := s.ReadSpan(n * 2)
		if err != nil {
			return "", err
		}
		return DecodeWide(span)
	}
	span, err := s.ReadSpan(n)
	if err != nil {
		return "", err
	}
	return DecodeNarrow(span)
}

var (
	narrowDecoder = charmap.Windows1252
	wideDecoder   = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// DecodeNarrow decodes Windows-1252 bytes to a string.
func DecodeNarrow(b []byte) (string, error) {
	out, err := narrowDecoder.NewDecoder().Bytes(b)
	if err != nil {
		return "", Errorf("narrow decode: %v", err)
	}
	return string(out), nil
}

// DecodeWide decodes UTF-16LE bytes to a string.
func DecodeWide(b []byte) (string, error) {
	out, err := wideDecoder.NewDecoder().Bytes(b)
	if err != nil {
		return "", Errorf("wide decode: %v", err)
	}
	return string(out), nil
}

// EncodeNarrow encodes a string to Windows-1252 bytes. Unmappable runes
// are substituted by the encoder.
func EncodeNarrow(s string) []byte {
	out, err := narrowDecoder.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// EncodeWide encodes a string to UTF-16LE bytes.
func EncodeWide(s string) []byte {
	out, err := wideDecoder.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}

// TrimNul removes a trailing NUL and anything after it.
func TrimNul(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
