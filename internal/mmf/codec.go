package mmf

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// NoMaxSize disables the output bound on inflation.
const NoMaxSize = int(^uint(0) >> 1)

// Inflate decompresses a standard zlib-wrapped DEFLATE stream. The
// output is bounded by maxSize; exceeding it fails.
func Inflate(data []byte, maxSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewError(CodeInflateFailed, "bad zlib header: %v", err)
	}
	defer r.Close()
	return readInflated(r, maxSize)
}

// InflateAnaconda decompresses the runtime's raw DEFLATE dialect: a
// 4-byte wrapper word (decompressed-size hint) precedes the stream and
// carries no zlib framing.
func InflateAnaconda(data []byte, maxSize int) ([]byte, error) {
	if len(data) < 4 {
		return nil, NewError(CodeInflateFailed, "%d bytes, expected at least the 4-byte wrapper", len(data))
	}
	hint := int(binary.LittleEndian.Uint32(data))
	if hint < maxSize {
		maxSize = hint
	}
	r := flate.NewReader(bytes.NewReader(data[4:]))
	defer r.Close()
	out, err := readInflated(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(out) != hint {
		return nil, NewError(CodeInflateFailed, "inflated %d bytes, wrapper claimed %d", len(out), hint)
	}
	return out, nil
}

func readInflated(r io.Reader, maxSize int) ([]byte, error) {
	var out bytes.Buffer
	// Read one byte past the bound to detect overflow; NoMaxSize has no
	// room for that extra byte.
	n := int64(maxSize)
	if n < math.MaxInt64 {
		n++
	}
	limit := io.LimitReader(r, n)
	if _, err := out.ReadFrom(limit); err != nil {
		return nil, NewError(CodeInflateFailed, "%v", err)
	}
	if out.Len() > maxSize {
		return nil, NewError(CodeInflateFailed, "output exceeds %d bytes", maxSize)
	}
	return out.Bytes(), nil
}

// InflateOrRaw inflates data if it is a valid zlib stream, otherwise
// returns the input unchanged. Some authoring-tool builds leave bank
// payloads uncompressed without flagging it.
func InflateOrRaw(data []byte) []byte {
	out, err := Inflate(data, NoMaxSize)
	if err != nil {
		return data
	}
	return out
}

// Decode applies the codec steps for a chunk's encoding mode and
// returns a fresh buffer the caller owns.
//
//	mode 0: identity
//	mode 1: decrypt
//	mode 2: inflate (standard)
//	mode 3: decrypt, then inflate (runtime dialect)
//
// Encrypted modes require the game key; encountering them before key
// derivation is a format violation. For the metadata and string chunks
// enumerated by StripsSizePrefix, a leading 4-byte decoded-size word is
// validated and removed after decryption.
func Decode(data []byte, id ChunkID, mode Encoding, key *Key) ([]byte, error) {
	switch mode {
	case EncodingPlain:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case EncodingEncrypted:
		plain, err := decrypt(data, id, key)
		if err != nil {
			return nil, TraceErr(err, "chunk %s (0x%04X)", id, uint16(id))
		}
		return plain, nil

	case EncodingCompressed:
		out, err := Inflate(data, NoMaxSize)
		if err != nil {
			return nil, TraceErr(err, "chunk %s (0x%04X)", id, uint16(id))
		}
		return out, nil

	case EncodingEncryptedCompressed:
		if key == nil {
			return nil, NewError(CodeInvalidState, "mode 3 chunk %s before key derivation", id)
		}
		plain := key.XOR(data)
		out, err := InflateAnaconda(plain, NoMaxSize)
		if err != nil {
			return nil, TraceErr(err, "chunk %s (0x%04X)", id, uint16(id))
		}
		return out, nil

	default:
		return nil, NewError(CodeInvalidMode, "chunk %s mode %d", id, uint16(mode))
	}
}

// decrypt runs the keystream over data and strips the decoded-size
// prefix for the chunks that carry one. The prefix doubles as a
// validity check on the key.
func decrypt(data []byte, id ChunkID, key *Key) ([]byte, error) {
	if key == nil {
		return nil, NewError(CodeInvalidState, "encrypted chunk before key derivation")
	}
	if len(data) < 4 {
		return nil, NewError(CodeDecryptFailed, "%d bytes, expected at least the 4-byte size prefix", len(data))
	}
	plain := key.XOR(data)
	if !StripsSizePrefix(id) {
		return plain, nil
	}
	decoded := int(binary.LittleEndian.Uint32(plain))
	if decoded > len(plain)-4 {
		return nil, NewError(CodeDecryptFailed, "size prefix %d exceeds %d payload bytes", decoded, len(plain)-4)
	}
	return plain[4 : 4+decoded], nil
}
