package mmf_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochside/mmfparse/internal/mmf"
)

// deflate compresses data as a standard zlib stream.
func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// deflateAnaconda compresses data in the runtime dialect: 4-byte
// decompressed-size word, then a raw DEFLATE stream.
func deflateAnaconda(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	buf.Write(size[:])
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestInflate_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("abc"),
		{},
		bytes.Repeat([]byte("mmfparse"), 1000),
	}
	for _, plain := range payloads {
		got, err := mmf.Inflate(deflate(t, plain), mmf.NoMaxSize)
		require.NoError(t, err)
		assert.Equal(t, plain, got)

		got, err = mmf.InflateAnaconda(deflateAnaconda(t, plain), mmf.NoMaxSize)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestInflate_MaxSize(t *testing.T) {
	big := bytes.Repeat([]byte{0x42}, 4096)
	_, err := mmf.Inflate(deflate(t, big), 16)
	assert.True(t, mmf.IsCode(err, mmf.CodeInflateFailed), "bounded inflate must fail, got %v", err)
}

func TestInflate_Garbage(t *testing.T) {
	_, err := mmf.Inflate([]byte{0xDE, 0xAD, 0xBE, 0xEF}, mmf.NoMaxSize)
	assert.True(t, mmf.IsCode(err, mmf.CodeInflateFailed))

	_, err = mmf.InflateAnaconda([]byte{0x01}, mmf.NoMaxSize)
	assert.True(t, mmf.IsCode(err, mmf.CodeInflateFailed), "short wrapper must fail, got %v", err)
}

func TestInflateOrRaw(t *testing.T) {
	plain := []byte("not compressed at all")
	assert.Equal(t, plain, mmf.InflateOrRaw(plain))
	assert.Equal(t, plain, mmf.InflateOrRaw(deflate(t, plain)))
}

func TestDecode_Modes(t *testing.T) {
	key := mmf.DeriveKey("A", "C", "", mmf.ProductMMF2, false, mmf.Dialect288)
	plain := []byte("payload bytes")

	t.Run("mode 0 identity", func(t *testing.T) {
		got, err := mmf.Decode(plain, mmf.ChunkHeader, mmf.EncodingPlain, nil)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("mode 1 decrypt", func(t *testing.T) {
		enc := key.XOR(plain)
		got, err := mmf.Decode(enc, mmf.ChunkProtection, mmf.EncodingEncrypted, key)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("mode 1 strips size prefix", func(t *testing.T) {
		body := append([]byte{5, 0, 0, 0}, []byte("world")...)
		enc := key.XOR(body)
		got, err := mmf.Decode(enc, mmf.ChunkAuthor, mmf.EncodingEncrypted, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("world"), got)
	})

	t.Run("mode 2 inflate", func(t *testing.T) {
		got, err := mmf.Decode(deflate(t, plain), mmf.ChunkMenu, mmf.EncodingCompressed, nil)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("mode 3 decrypt then inflate", func(t *testing.T) {
		enc := key.XOR(deflateAnaconda(t, plain))
		got, err := mmf.Decode(enc, mmf.ChunkFrameEvents, mmf.EncodingEncryptedCompressed, key)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("deterministic", func(t *testing.T) {
		enc := key.XOR(deflateAnaconda(t, plain))
		a, err := mmf.Decode(enc, mmf.ChunkFrameEvents, mmf.EncodingEncryptedCompressed, key)
		require.NoError(t, err)
		b, err := mmf.Decode(enc, mmf.ChunkFrameEvents, mmf.EncodingEncryptedCompressed, key)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestDecode_Failures(t *testing.T) {
	key := mmf.DeriveKey("A", "C", "", mmf.ProductMMF2, false, mmf.Dialect288)

	t.Run("mode 1 before key derivation", func(t *testing.T) {
		_, err := mmf.Decode([]byte{1, 2, 3, 4}, mmf.ChunkAuthor, mmf.EncodingEncrypted, nil)
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidState), "got %v", err)
	})

	t.Run("mode 3 before key derivation", func(t *testing.T) {
		_, err := mmf.Decode([]byte{1, 2, 3, 4}, mmf.ChunkFrameEvents, mmf.EncodingEncryptedCompressed, nil)
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidState), "got %v", err)
	})

	t.Run("encrypted buffer shorter than prefix", func(t *testing.T) {
		_, err := mmf.Decode([]byte{1, 2}, mmf.ChunkAuthor, mmf.EncodingEncrypted, key)
		assert.True(t, mmf.IsCode(err, mmf.CodeDecryptFailed), "got %v", err)
	})

	t.Run("prefix exceeds buffer", func(t *testing.T) {
		body := append([]byte{0xFF, 0xFF, 0, 0}, []byte("tiny")...)
		enc := key.XOR(body)
		_, err := mmf.Decode(enc, mmf.ChunkAuthor, mmf.EncodingEncrypted, key)
		assert.True(t, mmf.IsCode(err, mmf.CodeDecryptFailed), "got %v", err)
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := mmf.Decode(nil, mmf.ChunkHeader, mmf.Encoding(7), key)
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidMode), "got %v", err)
	})
}

func TestErrorTrace(t *testing.T) {
	err := mmf.NewError(mmf.CodeOutOfData, "2 bytes remaining, expected 4")
	traced := mmf.TraceErr(err, "while reading the header")

	require.Len(t, traced.Trace, 2)
	assert.Contains(t, traced.Error(), "out of data")
	assert.Contains(t, traced.Error(), "while reading the header")
	assert.True(t, mmf.IsCode(traced, mmf.CodeOutOfData))
}
