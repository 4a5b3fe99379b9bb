package parser

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/lochside/mmfparse/internal/mmf"
)

// ImageItem is one image of the image bank. Its fixed fields are read
// at walk time; the pixel payload is decoded to RGBA on demand.
type ImageItem struct {
	Entry Entry

	Checksum     uint32 // u16 in old games
	Reference    uint32
	DataSize     uint32
	Width        uint16
	Height       uint16
	GraphicsMode mmf.GraphicsMode
	Flags        mmf.ImageFlag
	HotspotX     uint16
	HotspotY     uint16
	ActionX      uint16
	ActionY      uint16
	Transparent  color.NRGBA // absent in old games

	// DataOffset is where the pixels start within the decoded payload.
	DataOffset int

	// Raw marks an item whose fields could not be parsed; its entry
	// bytes are still retained.
	Raw bool
}

// ImageBank is the ordered image sequence plus its end sentinel.
type ImageBank struct {
	Chunk BasicChunk
	Items []ImageItem
	End   *BasicChunk
}

// readImageBank decodes the bank payload and parses its count, items
// and end sentinel out of it.
func (p *Parser) readImageBank(entry Entry) (*ImageBank, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	base := 0
	if entry.Mode == mmf.EncodingPlain {
		base = entry.Data.Position
	}
	s := mmf.NewStream(data)

	count, err := s.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "image count")
	}

	bank := &ImageBank{Chunk: BasicChunk{Entry: entry}}
	bank.Items = make([]ImageItem, 0, count)

	opts := itemOptions{
		ID:         mmf.ChunkImageItem,
		Old:        p.game.OldGame,
		Compressed: p.game.OldGame && !p.game.CNC,
	}
	for i := uint32(0); i < count; i++ {
		ie, err := readItemEntry(s, base, opts)
		if err != nil {
			return bank, mmf.TraceErr(err, "image item %d of %d", i, count)
		}
		item := ImageItem{Entry: ie}
		if err := p.readImageFields(&item); err != nil {
			// Malformed fields degrade to raw retention; the bank keeps
			// going.
			p.logger.Warn("image item kept raw",
				"handle", ie.Handle,
				"error", err,
			)
			item.Raw = true
		}
		bank.Items = append(bank.Items, item)
	}

	last, err := readChunkEntry(s, base)
	if err != nil {
		return bank, mmf.TraceErr(err, "image bank sentinel")
	}
	if last.ID != mmf.ChunkImageEnd {
		return bank, mmf.NewError(mmf.CodeInvalidChunk,
			"image bank ends with %s (0x%04X), expected the image end", last.ID, uint16(last.ID))
	}
	bank.End = &BasicChunk{Entry: last}

	p.logger.Info("read image bank", "images", len(bank.Items))
	return bank, nil
}

// readImageFields parses the fixed header of an image item's decoded
// payload and records where the pixels begin.
func (p *Parser) readImageFields(item *ImageItem) error {
	data, err := item.Entry.Decode(p.game.key)
	if err != nil {
		return err
	}
	s := mmf.NewStream(data)

	if item.Entry.Old {
		ck, err := s.ReadU16()
		if err != nil {
			return mmf.TraceErr(err, "image checksum")
		}
		item.Checksum = uint32(ck)
	} else {
		if item.Checksum, err = s.ReadU32(); err != nil {
			return mmf.TraceErr(err, "image checksum")
		}
	}
	if item.Reference, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "image reference")
	}
	if item.DataSize, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "image data size")
	}
	if item.Width, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "image width")
	}
	if item.Height, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "image height")
	}
	gm, err := s.ReadU8()
	if err != nil {
		return mmf.TraceErr(err, "graphics mode")
	}
	item.GraphicsMode = mmf.GraphicsMode(gm)
	fl, err := s.ReadU8()
	if err != nil {
		return mmf.TraceErr(err, "image flags")
	}
	item.Flags = mmf.ImageFlag(fl)
	if !item.Entry.Old {
		if err := s.Skip(2); err != nil {
			return mmf.TraceErr(err, "image reserved word")
		}
	}
	if item.HotspotX, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "hotspot x")
	}
	if item.HotspotY, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "hotspot y")
	}
	if item.ActionX, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "action x")
	}
	if item.ActionY, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "action y")
	}
	if !item.Entry.Old {
		px, err := s.ReadSpan(4)
		if err != nil {
			return mmf.TraceErr(err, "transparent color")
		}
		item.Transparent = color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255}
	}
	item.DataOffset = s.Position()
	return nil
}

// NeedPalette reports whether decoding this image requires the owning
// frame's 256-entry palette.
func (item *ImageItem) NeedPalette() bool {
	return item.GraphicsMode.Indexed()
}

// Image decodes the pixel payload to RGBA. Palette-indexed images take
// the frame palette; pass nil for direct-color modes. When
// transparent is set, pixels matching the item's transparent color get
// zero alpha.
func (item *ImageItem) Image(key *mmf.Key, palette []color.NRGBA, transparent bool) (*image.NRGBA, error) {
	if item.Raw {
		return nil, mmf.NewError(mmf.CodeInvalidChunk, "image %d was kept raw", item.Entry.Handle)
	}
	data, err := item.Entry.Decode(key)
	if err != nil {
		return nil, mmf.TraceErr(err, "image %d payload", item.Entry.Handle)
	}
	if item.DataOffset > len(data) {
		return nil, mmf.NewError(mmf.CodeOutOfData,
			"pixel data at %d beyond %d payload bytes", item.DataOffset, len(data))
	}
	pixels := data[item.DataOffset:]

	w, h := int(item.Width), int(item.Height)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	if item.GraphicsMode == mmf.GfxJPEG {
		src, err := jpeg.Decode(bytes.NewReader(pixels))
		if err != nil {
			return nil, mmf.NewError(mmf.CodeInvalidChunk, "jpeg image %d: %v", item.Entry.Handle, err)
		}
		draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
		return img, nil
	}

	if item.NeedPalette() && palette == nil {
		return nil, mmf.NewError(mmf.CodeInvalidState,
			"image %d is %s and needs a palette", item.Entry.Handle, item.GraphicsMode)
	}

	read, err := pixelReader(item.GraphicsMode, pixels, w, palette)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, err := read(x, y)
			if err != nil {
				return nil, mmf.TraceErr(err, "pixel (%d, %d) of image %d", x, y, item.Entry.Handle)
			}
			img.SetNRGBA(x, y, c)
		}
	}

	if item.Flags&mmf.ImageFlagAlpha != 0 {
		if err := applyAlphaPlane(img, pixels, item.GraphicsMode, w, h); err != nil {
			return nil, err
		}
	} else if transparent && !item.Entry.Old {
		tr := item.Transparent
		for i := 0; i < len(img.Pix); i += 4 {
			if img.Pix[i] == tr.R && img.Pix[i+1] == tr.G && img.Pix[i+2] == tr.B {
				img.Pix[i+3] = 0
			}
		}
	}
	return img, nil
}

// pixelReader builds a bounds-checked accessor for one graphics mode.
// Sub-byte indexed rows are padded to whole bytes.
func pixelReader(mode mmf.GraphicsMode, pixels []byte, w int, palette []color.NRGBA) (func(x, y int) (color.NRGBA, error), error) {
	at := func(off, need int) ([]byte, error) {
		if off < 0 || off+need > len(pixels) {
			return nil, mmf.NewError(mmf.CodeOutOfData,
				"pixel offset %d+%d beyond %d bytes", off, need, len(pixels))
		}
		return pixels[off:], nil
	}
	pal := func(idx byte) (color.NRGBA, error) {
		if int(idx) >= len(palette) {
			return color.NRGBA{}, mmf.NewError(mmf.CodeInvalidChunk,
				"palette index %d beyond %d entries", idx, len(palette))
		}
		return palette[idx], nil
	}

	switch mode {
	case mmf.Gfx2Bit:
		stride := (w + 3) / 4
		return func(x, y int) (color.NRGBA, error) {
			b, err := at(y*stride+x/4, 1)
			if err != nil {
				return color.NRGBA{}, err
			}
			return pal((b[0] >> uint((3-x%4)*2)) & 0x03)
		}, nil
	case mmf.Gfx4Bit:
		stride := (w + 1) / 2
		return func(x, y int) (color.NRGBA, error) {
			b, err := at(y*stride+x/2, 1)
			if err != nil {
				return color.NRGBA{}, err
			}
			if x%2 == 0 {
				return pal(b[0] >> 4)
			}
			return pal(b[0] & 0x0F)
		}, nil
	case mmf.Gfx8Bit:
		return func(x, y int) (color.NRGBA, error) {
			b, err := at(y*w+x, 1)
			if err != nil {
				return color.NRGBA{}, err
			}
			return pal(b[0])
		}, nil
	case mmf.GfxRGB15:
		return func(x, y int) (color.NRGBA, error) {
			b, err := at((y*w+x)*2, 2)
			if err != nil {
				return color.NRGBA{}, err
			}
			v := uint16(b[0]) | uint16(b[1])<<8
			return color.NRGBA{
				R: byte((v >> 10 & 0x1F) << 3),
				G: byte((v >> 5 & 0x1F) << 3),
				B: byte((v & 0x1F) << 3),
				A: 255,
			}, nil
		}, nil
	case mmf.GfxRGB16:
		return func(x, y int) (color.NRGBA, error) {
			b, err := at((y*w+x)*2, 2)
			if err != nil {
				return color.NRGBA{}, err
			}
			v := uint16(b[0]) | uint16(b[1])<<8
			return color.NRGBA{
				R: byte((v >> 11 & 0x1F) << 3),
				G: byte((v >> 5 & 0x3F) << 2),
				B: byte((v & 0x1F) << 3),
				A: 255,
			}, nil
		}, nil
	case mmf.GfxRGB24:
		return func(x, y int) (color.NRGBA, error) {
			b, err := at((y*w+x)*3, 3)
			if err != nil {
				return color.NRGBA{}, err
			}
			return color.NRGBA{R: b[2], G: b[1], B: b[0], A: 255}, nil
		}, nil
	case mmf.GfxRGBA32:
		return func(x, y int) (color.NRGBA, error) {
			b, err := at((y*w+x)*4, 4)
			if err != nil {
				return color.NRGBA{}, err
			}
			return color.NRGBA{R: b[2], G: b[1], B: b[0], A: b[3]}, nil
		}, nil
	default:
		return nil, mmf.NewError(mmf.CodeInvalidChunk, "graphics mode %d", uint8(mode))
	}
}

// applyAlphaPlane overlays the 8-bit alpha plane that follows the
// pixel rows when the alpha flag is set.
func applyAlphaPlane(img *image.NRGBA, pixels []byte, mode mmf.GraphicsMode, w, h int) error {
	var stride int
	switch mode {
	case mmf.Gfx2Bit:
		stride = (w + 3) / 4
	case mmf.Gfx4Bit:
		stride = (w + 1) / 2
	case mmf.Gfx8Bit:
		stride = w
	case mmf.GfxRGB15, mmf.GfxRGB16:
		stride = w * 2
	case mmf.GfxRGB24:
		stride = w * 3
	case mmf.GfxRGBA32:
		stride = w * 4
	}
	start := stride * h
	if start+w*h > len(pixels) {
		return mmf.NewError(mmf.CodeOutOfData,
			"alpha plane %d+%d beyond %d bytes", start, w*h, len(pixels))
	}
	plane := pixels[start:]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[img.PixOffset(x, y)+3] = plane[y*w+x]
		}
	}
	return nil
}
