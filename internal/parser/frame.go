package parser

import (
	"image/color"

	"github.com/lochside/mmfparse/internal/mmf"
)

// FrameHeader is the fixed block of a frame: dimensions, background
// color and flags.
type FrameHeader struct {
	Chunk      BasicChunk
	Width      uint32
	Height     uint32
	Background color.NRGBA
	Flags      uint32
}

// FramePalette is the frame's 256-entry color table, consumed by
// palette-indexed images.
type FramePalette struct {
	Chunk   BasicChunk
	Version uint32
	Colors  [256]color.NRGBA
}

// ObjectInstance places one object in a frame.
type ObjectInstance struct {
	Handle       uint16
	Info         uint16
	X            int32
	Y            int32
	ParentType   uint16
	ParentHandle uint16
	Layer        uint16
}

// ObjectInstances is a frame's placement list.
type ObjectInstances struct {
	Chunk   BasicChunk
	Objects []ObjectInstance
}

// RandomSeed is the frame's seed chunk. The same id is meaningless
// outside a frame item.
type RandomSeed struct {
	Chunk BasicChunk
	Value int16
}

// VirtualSize is the frame's scrolling rectangle.
type VirtualSize struct {
	Chunk  BasicChunk
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// FrameItem is one frame and its optional children. Each child chunk
// appears at most once; a duplicate is a structural error.
type FrameItem struct {
	Chunk BasicChunk

	Name            *StringChunk
	Header          *FrameHeader
	Password        *StringChunk
	Palette         *FramePalette
	ObjectInstances *ObjectInstances
	FadeInFrame     *BasicChunk
	FadeOutFrame    *BasicChunk
	FadeIn          *BasicChunk
	FadeOut         *BasicChunk
	Events          *BasicChunk
	PlayHeader      *BasicChunk
	AdditionalItem  *BasicChunk
	AdditionalInst  *BasicChunk
	Layers          *BasicChunk
	VirtualSize     *VirtualSize
	DemoFilePath    *StringChunk
	RandomSeed      *RandomSeed
	LayerEffect     *BasicChunk
	Blueray         *BasicChunk
	MovementTime    *BasicChunk
	MosaicImages    *BasicChunk
	Effects         *BasicChunk
	IphoneOptions   *BasicChunk

	Last *BasicChunk
}

// FrameBank is the ordered sequence of frames.
type FrameBank struct {
	Chunk BasicChunk
	Items []FrameItem
}

// readFrameBank reads the bank's count payload, then its frames from
// the surrounding stream, then the terminating sentinel.
func (p *Parser) readFrameBank(s *mmf.Stream, entry Entry) (*FrameBank, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	ds := mmf.NewStream(data)
	count, err := ds.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "frame count")
	}

	p.push(mmf.ChunkFrameBank)
	bank := &FrameBank{Chunk: BasicChunk{Entry: entry}}
	bank.Items = make([]FrameItem, 0, count)

	for i := uint32(0); i < count; i++ {
		if err := p.boundary(s); err != nil {
			return bank, err
		}
		child, err := readChunkEntry(s, 0)
		if err != nil {
			return bank, mmf.TraceErr(err, "frame %d of %d", i, count)
		}
		if child.ID != mmf.ChunkFrame {
			return bank, mmf.NewError(mmf.CodeInvalidChunk,
				"chunk %s (0x%04X) inside frame bank, expected a frame", child.ID, uint16(child.ID))
		}
		item, err := p.readFrameItem(s, child)
		if err != nil {
			return bank, mmf.TraceErr(err, "frame %d", i)
		}
		bank.Items = append(bank.Items, *item)
	}

	last, err := readChunkEntry(s, 0)
	if err != nil {
		return bank, mmf.TraceErr(err, "frame bank sentinel")
	}
	if last.ID != mmf.ChunkLast {
		return bank, mmf.NewError(mmf.CodeInvalidChunk,
			"frame bank ends with %s, expected the sentinel", last.ID)
	}
	p.pop()

	p.logger.Info("read frame bank", "frames", len(bank.Items))
	return bank, nil
}

// readFrameItem reads one frame container: its own entry, then child
// chunks until the sentinel.
func (p *Parser) readFrameItem(s *mmf.Stream, entry Entry) (*FrameItem, error) {
	p.push(mmf.ChunkFrame)
	item := &FrameItem{Chunk: BasicChunk{Entry: entry}}

	// once guards the at-most-once rule for every child category.
	once := func(id mmf.ChunkID, present bool) error {
		if present {
			return mmf.NewError(mmf.CodeInvalidChunk, "duplicate %s inside frame", id)
		}
		return nil
	}

	for {
		if err := p.boundary(s); err != nil {
			return item, err
		}
		child, err := readChunkEntry(s, 0)
		if err != nil {
			return item, err
		}

		switch child.ID {
		case mmf.ChunkLast:
			item.Last = &BasicChunk{Entry: child}
			p.pop()
			return item, nil

		case mmf.ChunkFrameName:
			if err := once(child.ID, item.Name != nil); err != nil {
				return item, err
			}
			if item.Name, err = p.readStringChunk(child); err != nil {
				return item, err
			}
		case mmf.ChunkFrameHeader:
			if err := once(child.ID, item.Header != nil); err != nil {
				return item, err
			}
			if item.Header, err = p.readFrameHeader(child); err != nil {
				return item, err
			}
		case mmf.ChunkFramePassword:
			if err := once(child.ID, item.Password != nil); err != nil {
				return item, err
			}
			if item.Password, err = p.readStringChunk(child); err != nil {
				return item, err
			}
		case mmf.ChunkFramePalette:
			if err := once(child.ID, item.Palette != nil); err != nil {
				return item, err
			}
			if item.Palette, err = p.readFramePalette(child); err != nil {
				return item, err
			}
		case mmf.ChunkObjectInstances:
			if err := once(child.ID, item.ObjectInstances != nil); err != nil {
				return item, err
			}
			if item.ObjectInstances, err = p.readObjectInstances(child); err != nil {
				return item, err
			}
		case mmf.ChunkFrameVirtualSize:
			if err := once(child.ID, item.VirtualSize != nil); err != nil {
				return item, err
			}
			if item.VirtualSize, err = p.readVirtualSize(child); err != nil {
				return item, err
			}
		case mmf.ChunkRandomSeed:
			if err := once(child.ID, item.RandomSeed != nil); err != nil {
				return item, err
			}
			if item.RandomSeed, err = p.readRandomSeed(child); err != nil {
				return item, err
			}
		case mmf.ChunkDemoFilePath:
			if err := once(child.ID, item.DemoFilePath != nil); err != nil {
				return item, err
			}
			if item.DemoFilePath, err = p.readStringChunk(child); err != nil {
				return item, err
			}

		default:
			slot := item.rawSlot(child.ID)
			if slot == nil {
				// Unknown inside a frame is tolerated the same way as
				// at the top level.
				p.storeUnknown(p.game.Header, child)
				continue
			}
			if err := once(child.ID, *slot != nil); err != nil {
				return item, err
			}
			*slot = &BasicChunk{Entry: child}
		}
	}
}

// rawSlot maps a child id to its raw-retention field.
func (f *FrameItem) rawSlot(id mmf.ChunkID) **BasicChunk {
	switch id {
	case mmf.ChunkFadeInFrame:
		return &f.FadeInFrame
	case mmf.ChunkFadeOutFrame:
		return &f.FadeOutFrame
	case mmf.ChunkFadeIn:
		return &f.FadeIn
	case mmf.ChunkFadeOut:
		return &f.FadeOut
	case mmf.ChunkFrameEvents:
		return &f.Events
	case mmf.ChunkPlayHeader:
		return &f.PlayHeader
	case mmf.ChunkAdditionalItem:
		return &f.AdditionalItem
	case mmf.ChunkAdditionalInstance:
		return &f.AdditionalInst
	case mmf.ChunkFrameLayers:
		return &f.Layers
	case mmf.ChunkFrameLayerEffect:
		return &f.LayerEffect
	case mmf.ChunkFrameBlueray:
		return &f.Blueray
	case mmf.ChunkMovementTimeBase:
		return &f.MovementTime
	case mmf.ChunkMosaicImageTable:
		return &f.MosaicImages
	case mmf.ChunkFrameEffects:
		return &f.Effects
	case mmf.ChunkFrameIphoneOptions:
		return &f.IphoneOptions
	default:
		return nil
	}
}

func (p *Parser) readFrameHeader(entry Entry) (*FrameHeader, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	fh := &FrameHeader{Chunk: BasicChunk{Entry: entry}}
	if fh.Width, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "frame width")
	}
	if fh.Height, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "frame height")
	}
	bg, err := s.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "frame background")
	}
	fh.Background = rgba(bg)
	if fh.Flags, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "frame flags")
	}
	return fh, nil
}

func (p *Parser) readFramePalette(entry Entry) (*FramePalette, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	pal := &FramePalette{Chunk: BasicChunk{Entry: entry}}
	if pal.Version, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "palette version")
	}
	for i := range pal.Colors {
		px, err := s.ReadSpan(4)
		if err != nil {
			return nil, mmf.TraceErr(err, "palette entry %d", i)
		}
		pal.Colors[i] = color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255}
	}
	return pal, nil
}

func (p *Parser) readObjectInstances(entry Entry) (*ObjectInstances, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	count, err := s.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "instance count")
	}
	oi := &ObjectInstances{Chunk: BasicChunk{Entry: entry}}
	oi.Objects = make([]ObjectInstance, 0, count)
	for i := uint32(0); i < count; i++ {
		var inst ObjectInstance
		if inst.Handle, err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d handle", i)
		}
		if inst.Info, err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d info", i)
		}
		if inst.X, err = s.ReadI32(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d x", i)
		}
		if inst.Y, err = s.ReadI32(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d y", i)
		}
		if inst.ParentType, err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d parent type", i)
		}
		if inst.ParentHandle, err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d parent handle", i)
		}
		if inst.Layer, err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "instance %d layer", i)
		}
		oi.Objects = append(oi.Objects, inst)
	}
	return oi, nil
}

func (p *Parser) readVirtualSize(entry Entry) (*VirtualSize, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	vs := &VirtualSize{Chunk: BasicChunk{Entry: entry}}
	if vs.Left, err = s.ReadI32(); err != nil {
		return nil, mmf.TraceErr(err, "virtual size left")
	}
	if vs.Top, err = s.ReadI32(); err != nil {
		return nil, mmf.TraceErr(err, "virtual size top")
	}
	if vs.Right, err = s.ReadI32(); err != nil {
		return nil, mmf.TraceErr(err, "virtual size right")
	}
	if vs.Bottom, err = s.ReadI32(); err != nil {
		return nil, mmf.TraceErr(err, "virtual size bottom")
	}
	return vs, nil
}

func (p *Parser) readRandomSeed(entry Entry) (*RandomSeed, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	s := mmf.NewStream(data)

	seed, err := s.ReadI16()
	if err != nil {
		return nil, mmf.TraceErr(err, "random seed")
	}
	return &RandomSeed{Chunk: BasicChunk{Entry: entry}, Value: seed}, nil
}
