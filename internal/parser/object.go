package parser

import (
	"image/color"

	"github.com/lochside/mmfparse/internal/mmf"
)

// Shape is the fill description of a quick-backdrop.
type Shape struct {
	Fill        uint16
	ShapeType   uint16
	Line        uint16
	Gradient    uint16
	BorderSize  uint16
	BorderColor color.NRGBA
	Color1      color.NRGBA
	Color2      color.NRGBA
	ImageHandle uint16
}

// QuickBackdrop is a filled-shape object payload.
type QuickBackdrop struct {
	Size      uint32
	Obstacle  uint16
	Collision uint16
	Width     uint32
	Height    uint32
	Shape     Shape
}

// Backdrop is an image-backed object payload.
type Backdrop struct {
	Size        uint32
	Obstacle    uint16
	Collision   uint16
	Width       uint32
	Height      uint32
	ImageHandle uint16
}

// AnimationDirection is one of an animation's 32 directions.
type AnimationDirection struct {
	MinSpeed uint8
	MaxSpeed uint8
	Repeat   uint16
	BackTo   uint16
	Frames   []uint16 // image handles
}

// Animation is a set of directions located by in-block offsets.
type Animation struct {
	Directions []AnimationDirection
}

// AnimationHeader locates an object's animations by offset table.
type AnimationHeader struct {
	Animations []Animation
}

// ObjectCommon is the payload shared by every non-backdrop object:
// offsets into its own block for movements, animations, values and
// strings, plus display preferences.
type ObjectCommon struct {
	Size uint32

	MovementsOffset  uint16
	AnimationsOffset uint16
	CounterOffset    uint16
	SystemOffset     uint16
	FadeInOffset     uint32
	FadeOutOffset    uint32
	ValuesOffset     uint16
	StringsOffset    uint16
	ExtensionOffset  uint16

	Version     uint16
	Flags       uint32
	NewFlags    uint32
	Preferences uint32
	Identifier  uint32
	BackColor   color.NRGBA

	Animations *AnimationHeader
}

// ObjectItem is one object of the object bank: identity from its own
// payload, a discriminated properties payload, and optional name and
// effect children.
type ObjectItem struct {
	Chunk BasicChunk

	Handle         uint16
	Type           mmf.ObjectType
	Flags          uint16
	InkEffect      uint32
	InkEffectParam uint32

	Name   *StringChunk
	Effect *BasicChunk

	QuickBackdrop *QuickBackdrop
	Backdrop      *Backdrop
	Common        *ObjectCommon

	Last *BasicChunk
}

// ObjectBank is the ordered sequence of objects.
type ObjectBank struct {
	Chunk BasicChunk
	Items []ObjectItem
}

// readObjectBank reads the bank count, then its object containers from
// the surrounding stream, then the sentinel.
func (p *Parser) readObjectBank(s *mmf.Stream, entry Entry) (*ObjectBank, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	ds := mmf.NewStream(data)
	count, err := ds.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "object count")
	}

	p.push(mmf.ChunkObjectBank)
	bank := &ObjectBank{Chunk: BasicChunk{Entry: entry}}
	bank.Items = make([]ObjectItem, 0, count)

	for i := uint32(0); i < count; i++ {
		if err := p.boundary(s); err != nil {
			return bank, err
		}
		child, err := readChunkEntry(s, 0)
		if err != nil {
			return bank, mmf.TraceErr(err, "object %d of %d", i, count)
		}
		if child.ID != mmf.ChunkObjectHeader {
			return bank, mmf.NewError(mmf.CodeInvalidChunk,
				"chunk %s (0x%04X) inside object bank, expected an object header", child.ID, uint16(child.ID))
		}
		item, err := p.readObjectItem(s, child)
		if err != nil {
			return bank, mmf.TraceErr(err, "object %d", i)
		}
		bank.Items = append(bank.Items, *item)
	}

	last, err := readChunkEntry(s, 0)
	if err != nil {
		return bank, mmf.TraceErr(err, "object bank sentinel")
	}
	if last.ID != mmf.ChunkLast {
		return bank, mmf.NewError(mmf.CodeInvalidChunk,
			"object bank ends with %s, expected the sentinel", last.ID)
	}
	p.pop()

	p.logger.Info("read object bank", "objects", len(bank.Items))
	return bank, nil
}

// readObjectItem reads one object container: identity payload, then
// child chunks until the sentinel.
func (p *Parser) readObjectItem(s *mmf.Stream, entry Entry) (*ObjectItem, error) {
	p.push(mmf.ChunkObjectHeader)
	item := &ObjectItem{Chunk: BasicChunk{Entry: entry}}

	data, err := p.decodeEntry(&entry)
	if err != nil {
		return item, err
	}
	ds := mmf.NewStream(data)
	if item.Handle, err = ds.ReadU16(); err != nil {
		return item, mmf.TraceErr(err, "object handle")
	}
	typ, err := ds.ReadI16()
	if err != nil {
		return item, mmf.TraceErr(err, "object type")
	}
	item.Type = mmf.ObjectType(typ)
	if item.Flags, err = ds.ReadU16(); err != nil {
		return item, mmf.TraceErr(err, "object flags")
	}
	if ds.Remaining() >= 2 {
		// reserved word between flags and ink effect
		if err := ds.Skip(2); err != nil {
			return item, err
		}
	}
	if item.InkEffect, err = ds.ReadU32(); err != nil {
		return item, mmf.TraceErr(err, "ink effect")
	}
	if item.InkEffectParam, err = ds.ReadU32(); err != nil {
		return item, mmf.TraceErr(err, "ink effect param")
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

		case mmf.ChunkObjectName:
			if item.Name != nil {
				return item, mmf.NewError(mmf.CodeInvalidChunk, "duplicate object name")
			}
			if item.Name, err = p.readStringChunk(child); err != nil {
				return item, err
			}
		case mmf.ChunkObjectEffect:
			if item.Effect != nil {
				return item, mmf.NewError(mmf.CodeInvalidChunk, "duplicate object effect")
			}
			item.Effect = &BasicChunk{Entry: child}
		case mmf.ChunkObjectProps:
			if item.QuickBackdrop != nil || item.Backdrop != nil || item.Common != nil {
				return item, mmf.NewError(mmf.CodeInvalidChunk, "duplicate object properties")
			}
			if err := p.readObjectProperties(item, child); err != nil {
				return item, mmf.TraceErr(err, "object %d properties", item.Handle)
			}

		default:
			p.storeUnknown(p.game.Header, child)
		}
	}
}

// readObjectProperties decodes the discriminated payload picked by the
// object's type.
func (p *Parser) readObjectProperties(item *ObjectItem, entry Entry) error {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return err
	}
	s := mmf.NewStream(data)

	switch {
	case item.Type == mmf.ObjectQuickBackdrop:
		item.QuickBackdrop, err = readQuickBackdrop(s)
	case item.Type == mmf.ObjectBackdrop:
		item.Backdrop, err = readBackdrop(s)
	case item.Type >= mmf.ObjectCommon:
		item.Common, err = readObjectCommon(s)
	default:
		return mmf.NewError(mmf.CodeInvalidChunk, "object type %d", item.Type)
	}
	return err
}

func readShape(s *mmf.Stream) (Shape, error) {
	var sh Shape
	var err error
	if sh.BorderSize, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape border size")
	}
	border, err := s.ReadU32()
	if err != nil {
		return sh, mmf.TraceErr(err, "shape border color")
	}
	sh.BorderColor = rgba(border)
	if sh.ShapeType, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape type")
	}
	if sh.Fill, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape fill")
	}
	if sh.Line, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape line")
	}
	if sh.Gradient, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape gradient")
	}
	c1, err := s.ReadU32()
	if err != nil {
		return sh, mmf.TraceErr(err, "shape color 1")
	}
	sh.Color1 = rgba(c1)
	c2, err := s.ReadU32()
	if err != nil {
		return sh, mmf.TraceErr(err, "shape color 2")
	}
	sh.Color2 = rgba(c2)
	if sh.ImageHandle, err = s.ReadU16(); err != nil {
		return sh, mmf.TraceErr(err, "shape image handle")
	}
	return sh, nil
}

func readQuickBackdrop(s *mmf.Stream) (*QuickBackdrop, error) {
	qb := &QuickBackdrop{}
	var err error
	if qb.Size, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "quick backdrop size")
	}
	if qb.Obstacle, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "quick backdrop obstacle")
	}
	if qb.Collision, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "quick backdrop collision")
	}
	if qb.Width, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "quick backdrop width")
	}
	if qb.Height, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "quick backdrop height")
	}
	if qb.Shape, err = readShape(s); err != nil {
		return nil, err
	}
	return qb, nil
}

func readBackdrop(s *mmf.Stream) (*Backdrop, error) {
	bd := &Backdrop{}
	var err error
	if bd.Size, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop size")
	}
	if bd.Obstacle, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop obstacle")
	}
	if bd.Collision, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop collision")
	}
	if bd.Width, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop width")
	}
	if bd.Height, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop height")
	}
	if bd.ImageHandle, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "backdrop image handle")
	}
	return bd, nil
}

func readObjectCommon(s *mmf.Stream) (*ObjectCommon, error) {
	base := s.Position()
	oc := &ObjectCommon{}
	var err error
	if oc.Size, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "common size")
	}
	if oc.MovementsOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "movements offset")
	}
	if oc.AnimationsOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "animations offset")
	}
	if oc.CounterOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "counter offset")
	}
	if oc.SystemOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "system offset")
	}
	if oc.FadeInOffset, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "fade in offset")
	}
	if oc.FadeOutOffset, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "fade out offset")
	}
	if oc.ValuesOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "values offset")
	}
	if oc.StringsOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "strings offset")
	}
	if oc.ExtensionOffset, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "extension offset")
	}
	if oc.Version, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "common version")
	}
	if oc.Flags, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "common flags")
	}
	if oc.NewFlags, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "common new flags")
	}
	if oc.Preferences, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "common preferences")
	}
	if oc.Identifier, err = s.ReadU32(); err != nil {
		return nil, mmf.TraceErr(err, "common identifier")
	}
	back, err := s.ReadU32()
	if err != nil {
		return nil, mmf.TraceErr(err, "common back color")
	}
	oc.BackColor = rgba(back)

	if oc.AnimationsOffset != 0 {
		if err := s.Seek(base + int(oc.AnimationsOffset)); err != nil {
			return nil, mmf.TraceErr(err, "animations block at +%d", oc.AnimationsOffset)
		}
		if oc.Animations, err = readAnimationHeader(s); err != nil {
			return nil, mmf.TraceErr(err, "animations")
		}
	}
	return oc, nil
}

// readAnimationHeader reads the offset-located animation tree: a count
// and offset table, each offset leading to an animation, itself an
// offset table of up to 32 directions.
func readAnimationHeader(s *mmf.Stream) (*AnimationHeader, error) {
	base := s.Position()

	count, err := s.ReadU16()
	if err != nil {
		return nil, mmf.TraceErr(err, "animation count")
	}
	offsets := make([]uint16, count)
	for i := range offsets {
		if offsets[i], err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "animation offset %d", i)
		}
	}

	ah := &AnimationHeader{Animations: make([]Animation, 0, count)}
	for i, off := range offsets {
		if off == 0 {
			ah.Animations = append(ah.Animations, Animation{})
			continue
		}
		if err := s.Seek(base + int(off)); err != nil {
			return nil, mmf.TraceErr(err, "animation %d at +%d", i, off)
		}
		anim, err := readAnimation(s)
		if err != nil {
			return nil, mmf.TraceErr(err, "animation %d", i)
		}
		ah.Animations = append(ah.Animations, *anim)
	}
	return ah, nil
}

func readAnimation(s *mmf.Stream) (*Animation, error) {
	base := s.Position()

	var offsets [32]uint16
	for i := range offsets {
		var err error
		if offsets[i], err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "direction offset %d", i)
		}
	}

	anim := &Animation{}
	for i, off := range offsets {
		if off == 0 {
			continue
		}
		if err := s.Seek(base + int(off)); err != nil {
			return nil, mmf.TraceErr(err, "direction %d at +%d", i, off)
		}
		dir, err := readAnimationDirection(s)
		if err != nil {
			return nil, mmf.TraceErr(err, "direction %d", i)
		}
		anim.Directions = append(anim.Directions, *dir)
	}
	return anim, nil
}

func readAnimationDirection(s *mmf.Stream) (*AnimationDirection, error) {
	d := &AnimationDirection{}
	var err error
	if d.MinSpeed, err = s.ReadU8(); err != nil {
		return nil, mmf.TraceErr(err, "min speed")
	}
	if d.MaxSpeed, err = s.ReadU8(); err != nil {
		return nil, mmf.TraceErr(err, "max speed")
	}
	if d.Repeat, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "repeat")
	}
	if d.BackTo, err = s.ReadU16(); err != nil {
		return nil, mmf.TraceErr(err, "back to")
	}
	count, err := s.ReadU16()
	if err != nil {
		return nil, mmf.TraceErr(err, "frame count")
	}
	d.Frames = make([]uint16, count)
	for i := range d.Frames {
		if d.Frames[i], err = s.ReadU16(); err != nil {
			return nil, mmf.TraceErr(err, "frame handle %d", i)
		}
	}
	return d, nil
}
