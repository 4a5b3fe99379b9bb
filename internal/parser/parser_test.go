package parser_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochside/mmfparse/internal/mmf"
	"github.com/lochside/mmfparse/internal/parser"
)

func u16(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// chunk serialises one {id, mode, size, payload} record.
func chunk(id mmf.ChunkID, mode mmf.Encoding, data []byte) []byte {
	var buf bytes.Buffer
	buf.Write(u16(uint16(id)))
	buf.Write(u16(uint16(mode)))
	buf.Write(u32(uint32(len(data))))
	buf.Write(data)
	return buf.Bytes()
}

// item serialises one new-dialect bank item record.
func item(id mmf.ChunkID, handle uint32, mode mmf.Encoding, data []byte) []byte {
	var buf bytes.Buffer
	buf.Write(u16(uint16(id)))
	buf.Write(u32(handle))
	buf.Write(u16(uint16(mode)))
	buf.Write(u32(uint32(len(data))))
	buf.Write(data)
	return buf.Bytes()
}

// buildExe wraps a chunk stream in a minimal PE container with the
// given signature and product identity.
func buildExe(sig [4]byte, product uint16, build uint32, chunks ...[]byte) []byte {
	var buf bytes.Buffer

	// DOS header: MZ magic, e_lfanew at 0x3C.
	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3C:], 0x40)
	buf.Write(dos)

	// PE signature + COFF header with no sections and no optional
	// header, so the payload starts right after.
	buf.Write([]byte{'P', 'E', 0, 0})
	coff := make([]byte, 20)
	binary.LittleEndian.PutUint16(coff[0:], 0x014C) // machine
	buf.Write(coff)

	buf.Write(sig[:])
	buf.Write(u16(product))    // runtime version
	buf.Write(u16(0))          // runtime subversion
	buf.Write(u32(1))          // product version
	buf.Write(u32(build))      // product build
	buf.Write(u32(0))          // pack file count

	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// imagePayload builds a 1x1 24-bit image item payload.
func imagePayload(b, g, r byte) []byte {
	var buf bytes.Buffer
	buf.Write(u32(0))                      // checksum
	buf.Write(u32(0))                      // reference
	buf.Write(u32(3))                      // data size
	buf.Write(u16(1))                      // width
	buf.Write(u16(1))                      // height
	buf.WriteByte(byte(mmf.GfxRGB24))      // graphics mode
	buf.WriteByte(0)                       // flags
	buf.Write(u16(0))                      // reserved
	buf.Write(u16(0))                      // hotspot x
	buf.Write(u16(0))                      // hotspot y
	buf.Write(u16(0))                      // action x
	buf.Write(u16(0))                      // action y
	buf.Write([]byte{0, 0, 0, 0})          // transparent color
	buf.Write([]byte{b, g, r})             // one BGR pixel
	return buf.Bytes()
}

func parse(t *testing.T, exe []byte) (*parser.Game, error) {
	t.Helper()
	return parser.Parse(context.Background(), "test.exe", exe, parser.Options{})
}

func TestParse_TrivialHeader(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkTitle, mmf.EncodingPlain, []byte("Hello")),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	assert.Equal(t, "Hello", g.Title)
	assert.False(t, g.Unicode)
	assert.Equal(t, mmf.Dialect288, g.Dialect)
	assert.Nil(t, g.Header.FrameBank)
	assert.Nil(t, g.Header.ImageBank)
	assert.Empty(t, g.Header.UnknownChunks)
	assert.Empty(t, g.Header.UnknownStrings)
	assert.Empty(t, g.Header.UnknownCompressed)
	assert.Equal(t, 1.0, g.Completed.Value())
}

func TestParse_UnknownChunkPreserved(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkID(0xDEAD), mmf.EncodingCompressed, deflate(t, []byte("abc"))),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	require.Len(t, g.Header.UnknownCompressed, 1)
	decoded, err := g.Header.UnknownCompressed[0].Entry.Decode(g.Key())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), decoded)
}

func TestParse_EncryptedString(t *testing.T) {
	// The parser derives its key from title "A", copyright "C" and an
	// empty project path; mirror that here to encrypt the author.
	key := mmf.DeriveKey("A", "C", "", mmf.ProductMMF2, false, mmf.Dialect288)
	body := append(u32(5), []byte("world")...)

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkTitle, mmf.EncodingPlain, []byte("A")),
		chunk(mmf.ChunkCopyright, mmf.EncodingPlain, []byte("C")),
		chunk(mmf.ChunkProjectPath, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkAuthor, mmf.EncodingEncrypted, key.XOR(body)),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)
	assert.Equal(t, "world", g.Author)
	require.NotNil(t, g.Key())
	assert.Equal(t, key.Salt(), g.Key().Salt())
}

func TestParse_EncryptedBeforeKeyFails(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkAuthor, mmf.EncodingEncrypted, []byte{1, 2, 3, 4, 5}),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	_, err := parse(t, exe)
	assert.True(t, mmf.IsCode(err, mmf.CodeInvalidState), "got %v", err)
}

func TestParse_TruncatedChunk(t *testing.T) {
	truncated := bytes.Join([][]byte{
		u16(uint16(mmf.ChunkTitle)), u16(0), u32(100), bytes.Repeat([]byte{0}, 10),
	}, nil)
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		truncated,
	)

	_, err := parse(t, exe)
	assert.True(t, mmf.IsCode(err, mmf.CodeOutOfData), "got %v", err)
}

func TestParse_ImageBank(t *testing.T) {
	var bank bytes.Buffer
	bank.Write(u32(2))
	bank.Write(item(mmf.ChunkImageItem, 7, mmf.EncodingPlain, imagePayload(255, 0, 0)))
	bank.Write(item(mmf.ChunkImageItem, 9, mmf.EncodingPlain, imagePayload(0, 0, 255)))
	bank.Write(chunk(mmf.ChunkImageEnd, mmf.EncodingPlain, nil))

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkImageBank, mmf.EncodingPlain, bank.Bytes()),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	require.NotNil(t, g.Header.ImageBank)
	require.Len(t, g.Header.ImageBank.Items, 2)
	require.NotNil(t, g.Header.ImageBank.End)
	assert.Len(t, g.ImageHandles, 2)

	first, ok := g.GetImage(7)
	require.True(t, ok)
	assert.Equal(t, uint16(1), first.Width)
	assert.Equal(t, mmf.GfxRGB24, first.GraphicsMode)
	assert.False(t, first.NeedPalette())

	img, err := first.Image(g.Key(), nil, false)
	require.NoError(t, err)
	c := img.NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), c.B)
	assert.Equal(t, uint8(0), c.R)

	second, ok := g.GetImage(9)
	require.True(t, ok)
	img, err = second.Image(g.Key(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), img.NRGBAAt(0, 0).R)
}

func TestParse_ImageBank_HandleMapRoundTrip(t *testing.T) {
	// Duplicate handles: the later index wins.
	var bank bytes.Buffer
	bank.Write(u32(2))
	bank.Write(item(mmf.ChunkImageItem, 7, mmf.EncodingPlain, imagePayload(1, 2, 3)))
	bank.Write(item(mmf.ChunkImageItem, 7, mmf.EncodingPlain, imagePayload(4, 5, 6)))
	bank.Write(chunk(mmf.ChunkImageEnd, mmf.EncodingPlain, nil))

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkImageBank, mmf.EncodingPlain, bank.Bytes()),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	require.Len(t, g.Header.ImageBank.Items, 2)
	assert.Equal(t, map[uint32]int{7: 1}, g.ImageHandles)

	// The mapped item carries the handle it is indexed by.
	idx := g.ImageHandles[7]
	assert.Equal(t, uint32(7), g.Header.ImageBank.Items[idx].Entry.Handle)
}

func TestParse_DialectSelection(t *testing.T) {
	build := func(sig [4]byte, title []byte) []byte {
		return buildExe(sig, uint16(mmf.ProductMMF2), 290,
			chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
			chunk(mmf.ChunkTitle, mmf.EncodingPlain, title),
			chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
		)
	}

	narrow, err := parse(t, build([4]byte{'P', 'A', 'M', 'E'}, []byte("Hi")))
	require.NoError(t, err)
	wide, err := parse(t, build([4]byte{'P', 'A', 'M', 'U'}, []byte{'H', 0, 'i', 0}))
	require.NoError(t, err)

	assert.False(t, narrow.Unicode)
	assert.True(t, wide.Unicode)
	assert.Equal(t, "Hi", narrow.Title)
	assert.Equal(t, "Hi", wide.Title)
}

func TestParse_FrameBank(t *testing.T) {
	frameHeader := bytes.Join([][]byte{
		u32(640), u32(480), u32(0x00FF00FF), u32(0),
	}, nil)

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkFrameBank, mmf.EncodingPlain, u32(1)),
		chunk(mmf.ChunkFrame, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkFrameName, mmf.EncodingPlain, []byte("Level 1")),
		chunk(mmf.ChunkFrameHeader, mmf.EncodingPlain, frameHeader),
		chunk(mmf.ChunkRandomSeed, mmf.EncodingPlain, u16(1234)),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the frame
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the bank
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the header
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	require.NotNil(t, g.Header.FrameBank)
	require.Len(t, g.Header.FrameBank.Items, 1)

	frame, ok := g.GetFrame(0)
	require.True(t, ok)
	require.NotNil(t, frame.Name)
	assert.Equal(t, "Level 1", frame.Name.Value)
	require.NotNil(t, frame.Header)
	assert.Equal(t, uint32(640), frame.Header.Width)
	assert.Equal(t, uint32(480), frame.Header.Height)
	require.NotNil(t, frame.RandomSeed)
	assert.Equal(t, int16(1234), frame.RandomSeed.Value)
}

func TestParse_RandomSeedOutsideFrameIsUnknown(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkRandomSeed, mmf.EncodingPlain, u16(1234)),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)
	assert.Len(t, g.Header.UnknownChunks, 1)
}

func TestParse_DuplicateFrameChildFails(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkFrameBank, mmf.EncodingPlain, u32(1)),
		chunk(mmf.ChunkFrame, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkFrameName, mmf.EncodingPlain, []byte("one")),
		chunk(mmf.ChunkFrameName, mmf.EncodingPlain, []byte("two")),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	_, err := parse(t, exe)
	assert.True(t, mmf.IsCode(err, mmf.CodeInvalidChunk), "got %v", err)
}

func TestParse_ObjectBank(t *testing.T) {
	var objPayload bytes.Buffer
	objPayload.Write(u16(3))  // handle
	objPayload.Write(u16(2))  // type: common
	objPayload.Write(u16(0))  // flags
	objPayload.Write(u16(0))  // reserved
	objPayload.Write(u32(0))  // ink effect
	objPayload.Write(u32(0))  // ink effect param

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkObjectBank, mmf.EncodingPlain, u32(1)),
		chunk(mmf.ChunkObjectHeader, mmf.EncodingPlain, objPayload.Bytes()),
		chunk(mmf.ChunkObjectName, mmf.EncodingPlain, []byte("Player")),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the object
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the bank
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil), // ends the header
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	require.NotNil(t, g.Header.ObjectBank)
	require.Len(t, g.Header.ObjectBank.Items, 1)
	assert.Len(t, g.ObjectHandles, 1)

	obj, ok := g.GetObject(3)
	require.True(t, ok)
	assert.Equal(t, mmf.ObjectType(2), obj.Type)
	require.NotNil(t, obj.Name)
	assert.Equal(t, "Player", obj.Name.Value)
}

func TestParse_EntryBounds(t *testing.T) {
	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkTitle, mmf.EncodingPlain, []byte("Hello")),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parse(t, exe)
	require.NoError(t, err)

	for _, e := range []parser.Entry{g.Header.Chunk.Entry, g.Header.Title.Entry, g.Header.Last.Entry} {
		assert.LessOrEqual(t, e.Position, e.End)
		assert.LessOrEqual(t, e.End, len(exe))
		assert.LessOrEqual(t, e.Data.Position+len(e.Data.Bytes), len(exe))
	}
}

func TestParse_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290,
		chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil),
		chunk(mmf.ChunkTitle, mmf.EncodingPlain, []byte("Hello")),
		chunk(mmf.ChunkLast, mmf.EncodingPlain, nil),
	)

	g, err := parser.Parse(ctx, "test.exe", exe, parser.Options{})
	assert.True(t, mmf.IsCode(err, mmf.CodeCancelled), "got %v", err)
	// The partial tree is still browsable.
	require.NotNil(t, g)
	require.NotNil(t, g.Header)
}

func TestParse_BadSignatures(t *testing.T) {
	t.Run("not an executable", func(t *testing.T) {
		_, err := parse(t, []byte("definitely not a PE file"))
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidExeSignature), "got %v", err)
	})

	t.Run("broken PE magic", func(t *testing.T) {
		exe := buildExe([4]byte{'P', 'A', 'M', 'E'}, uint16(mmf.ProductMMF2), 290)
		copy(exe[0x40:], []byte{'X', 'X', 0, 0})
		_, err := parse(t, exe)
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidPESignature), "got %v", err)
	})

	t.Run("no game signature", func(t *testing.T) {
		exe := buildExe([4]byte{'Z', 'Z', 'Z', 'Z'}, uint16(mmf.ProductMMF2), 290)
		_, err := parse(t, exe)
		assert.True(t, mmf.IsCode(err, mmf.CodeInvalidGameSignature), "got %v", err)
	})
}

func TestParse_PackFiles(t *testing.T) {
	var buf bytes.Buffer

	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3C:], 0x40)
	buf.Write(dos)
	buf.Write([]byte{'P', 'E', 0, 0})
	coff := make([]byte, 20)
	binary.LittleEndian.PutUint16(coff[0:], 0x014C)
	buf.Write(coff)

	buf.Write([]byte{'P', 'A', 'M', 'E'})
	buf.Write(u16(uint16(mmf.ProductMMF2)))
	buf.Write(u16(0))
	buf.Write(u32(1))
	buf.Write(u32(290))

	buf.Write(u32(1)) // one pack file
	buf.WriteByte(0)  // narrow name
	buf.Write(u16(7))
	buf.WriteString("ext.dll")
	buf.Write(u32(42)) // bingo
	buf.Write(u32(4))
	buf.WriteString("BLOB")

	buf.Write(chunk(mmf.ChunkHeader, mmf.EncodingPlain, nil))
	buf.Write(chunk(mmf.ChunkLast, mmf.EncodingPlain, nil))

	g, err := parse(t, buf.Bytes())
	require.NoError(t, err)

	require.Len(t, g.PackFiles, 1)
	assert.Equal(t, "ext.dll", g.PackFiles[0].Name)
	assert.Equal(t, uint32(42), g.PackFiles[0].Bingo)
	assert.Equal(t, []byte("BLOB"), g.PackFiles[0].Data)
}

func TestProgress_Monotonic(t *testing.T) {
	var p parser.Progress
	p.Set(0.5)
	p.Set(0.25)
	assert.Equal(t, 0.5, p.Value(), "progress never moves backwards")
	p.Set(1.0)
	assert.Equal(t, 1.0, p.Value())
}
