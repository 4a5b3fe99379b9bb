package parser

import (
	"image/color"

	"github.com/lochside/mmfparse/internal/mmf"
)

// BasicChunk is a chunk retained as its raw entry. Its payload is
// decoded on demand through Entry.Decode.
type BasicChunk struct {
	Entry Entry
}

// StringChunk is a chunk whose decoded payload is a single narrow or
// wide string, read eagerly at walk time.
type StringChunk struct {
	Entry Entry
	Value string
}

// StringsChunk holds a packed list of NUL-terminated strings.
type StringsChunk struct {
	Entry  Entry
	Values []string
}

// AppHeader is the application block of the root header chunk.
type AppHeader struct {
	Flags        uint16
	NewFlags     uint16
	GraphicsMode uint16
	OtherFlags   uint16
	WindowWidth  uint16
	WindowHeight uint16
	InitialScore uint32
	InitialLives uint32
	ControlType  uint16
	FrameCount   uint16
	FrameRate    uint32
	BorderColor  color.NRGBA
}

// ExtendedHeader carries the build metadata of newer runtimes.
type ExtendedHeader struct {
	Chunk                BasicChunk
	Flags                uint32
	BuildType            uint32
	BuildFlags           uint32
	ScreenRatioTolerance uint16
	ScreenAngle          uint16
}

// Icon is the application icon: a palette-indexed bitmap with a 1-bit
// transparency mask, decoded to RGBA.
type Icon struct {
	Chunk  BasicChunk
	Width  int
	Height int
	Pixels []color.NRGBA // row-major, Width*Height entries
}

// BinaryFile is one named embedded file.
type BinaryFile struct {
	Name string
	Data []byte
}

// BinaryFiles is the embedded-file chunk.
type BinaryFiles struct {
	Chunk BasicChunk
	Items []BinaryFile
}

// FrameHandles is the frame handle table.
type FrameHandles struct {
	Chunk   BasicChunk
	Handles []uint16
}

// Header is the typed root of the chunk tree. Optional children are nil
// when their chunk is absent; when a child chunk repeats, the last one
// read replaces the earlier one.
type Header struct {
	Chunk BasicChunk
	App   AppHeader

	Title       *StringChunk
	Author      *StringChunk
	Copyright   *StringChunk
	ProjectPath *StringChunk
	OutputPath  *StringChunk
	About       *StringChunk
	Title2      *StringChunk

	VitalisePreview    *BasicChunk
	Menu               *BasicChunk
	MenuImages         *BasicChunk
	ExtensionPath      *BasicChunk
	Extensions         *BasicChunk
	ExtensionList      *BasicChunk
	GlobalEvents       *BasicChunk
	GlobalValues       *BasicChunk
	GlobalStrings      *BasicChunk
	GlobalValueNames   *BasicChunk
	GlobalStringNames  *BasicChunk
	MovementExtensions *BasicChunk
	Icon               *Icon
	DemoVersion        *BasicChunk
	SecurityNumber     *BasicChunk
	BinaryFiles        *BinaryFiles
	Protection         *BasicChunk
	Shaders            *BasicChunk
	Extended           *ExtendedHeader
	Spacer             *BasicChunk
	ExeOnly            *BasicChunk

	// Recompiled games only.
	ObjectNames       *StringsChunk
	ObjectProperties  *BasicChunk
	TrueTypeFontsMeta *BasicChunk
	TrueTypeFonts     *BasicChunk

	FrameHandles *FrameHandles
	FrameBank    *FrameBank
	ObjectBank   *ObjectBank
	ImageBank    *ImageBank
	SoundBank    *SoundBank
	MusicBank    *MusicBank
	FontBank     *FontBank

	// Unrecognised siblings, grouped by decoding profile.
	UnknownChunks     []BasicChunk
	UnknownStrings    []BasicChunk
	UnknownCompressed []BasicChunk

	Last *BasicChunk
}

// readStringChunk decodes an entry as a single string, narrow or wide
// per the game's string width, trimming the trailing NUL.
func (p *Parser) readStringChunk(entry Entry) (*StringChunk, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, mmf.TraceErr(err, "string chunk %s", entry.ID)
	}
	value, err := p.decodeString(data)
	if err != nil {
		return nil, mmf.TraceErr(err, "string chunk %s", entry.ID)
	}
	return &StringChunk{Entry: entry, Value: mmf.TrimNul(value)}, nil
}

// decodeString interprets decoded payload bytes under the game's
// string width.
func (p *Parser) decodeString(data []byte) (string, error) {
	if p.game.Unicode {
		if len(data)%2 == 1 {
			data = data[:len(data)-1]
		}
		return mmf.DecodeWide(data)
	}
	return mmf.DecodeNarrow(data)
}

// readStringsChunk splits a decoded payload on NUL terminators.
func (p *Parser) readStringsChunk(entry Entry) (*StringsChunk, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, mmf.TraceErr(err, "strings chunk %s", entry.ID)
	}

	out := &StringsChunk{Entry: entry}
	if p.game.Unicode {
		start := 0
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				s, err := mmf.DecodeWide(data[start:i])
				if err != nil {
					return nil, err
				}
				out.Values = append(out.Values, s)
				start = i + 2
			}
		}
	} else {
		start := 0
		for i := 0; i < len(data); i++ {
			if data[i] == 0 {
				s, err := mmf.DecodeNarrow(data[start:i])
				if err != nil {
					return nil, err
				}
				out.Values = append(out.Values, s)
				start = i + 1
			}
		}
	}
	return out, nil
}

// readIcon decodes the application icon: dimension word, 256-entry BGRA
// palette, 8-bit indices bottom-up, then a 1-bit transparency mask.
func (p *Parser) readIcon(entry Entry) (*Icon, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	side, err := s.ReadU16()
	if err != nil {
		return nil, mmf.TraceErr(err, "icon dimension")
	}
	if err := s.Skip(2); err != nil {
		return nil, mmf.TraceErr(err, "icon dimension")
	}
	w, h := int(side), int(side)
	if w == 0 {
		w, h = 16, 16
	}

	var palette [256]color.NRGBA
	for i := range palette {
		px, err := s.ReadSpan(4)
		if err != nil {
			return nil, mmf.TraceErr(err, "icon palette entry %d", i)
		}
		palette[i] = color.NRGBA{R: px[2], G: px[1], B: px[0], A: 255}
	}

	indices, err := s.ReadSpan(w * h)
	if err != nil {
		return nil, mmf.TraceErr(err, "icon indices %dx%d", w, h)
	}

	icon := &Icon{Chunk: BasicChunk{Entry: entry}, Width: w, Height: h}
	icon.Pixels = make([]color.NRGBA, w*h)
	// Rows are stored bottom-up.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			icon.Pixels[y*w+x] = palette[indices[(h-1-y)*w+x]]
		}
	}

	// 1-bit transparency mask, also bottom-up, rows padded to bytes.
	maskStride := (w + 7) / 8
	mask, err := s.ReadSpan(maskStride * h)
	if err == nil {
		for y := 0; y < h; y++ {
			row := mask[(h-1-y)*maskStride:]
			for x := 0; x < w; x++ {
				if row[x/8]&(0x80>>(x%8)) != 0 {
					icon.Pixels[y*w+x].A = 0
				}
			}
		}
	}
	return icon, nil
}

// readExtendedHeader parses the fixed build-metadata block.
func (p *Parser) readExtendedHeader(entry Entry) (*ExtendedHeader, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	ext := &ExtendedHeader{Chunk: BasicChunk{Entry: entry}}
	if ext.Flags, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "extended header flags")
	}
	if ext.BuildType, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "build type")
	}
	if ext.BuildFlags, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "build flags")
	}
	if ext.ScreenRatioTolerance, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "screen ratio tolerance")
	}
	if ext.ScreenAngle, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "screen angle")
	}
	return ext, nil
}

// readBinaryFiles parses the embedded-file list: count, then per file a
// length-prefixed name and a length-prefixed blob.
func (p *Parser) readBinaryFiles(entry Entry) (*BinaryFiles, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	count, err := s.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "binary file count")
	}
	bf := &BinaryFiles{Chunk: BasicChunk{Entry: entry}}
	for i := uint32(0); i < count; i++ {
		name, err := s.ReadLengthPrefixed(2, p.game.Unicode)
		if err != nil {
			return nil, mmf.TraceErr(err, "binary file %d name", i)
		}
		size, err := s.ReadU32()
		if err != nil {
			return nil, mmf.TraceErr(err, "binary file %q size", name)
		}
		blob, err := s.ReadSpan(int(size))
		if err != nil {
			return nil, mmf.TraceErr(err, "binary file %q claims %d bytes", name, size)
		}
		bf.Items = append(bf.Items, BinaryFile{Name: name, Data: blob})
	}
	return bf, nil
}

// rgba unpacks a little-endian BGRA word.
func rgba(v uint32) color.NRGBA {
	return color.NRGBA{
		R: byte(v >> 16),
		G: byte(v >> 8),
		B: byte(v),
		A: 255,
	}
}
