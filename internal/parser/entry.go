package parser

import (
	"github.com/lochside/mmfparse/internal/mmf"
)

// DataPoint is a lazy window into a decoded or raw payload. Decoding an
// entry is deferred until the bytes are actually wanted.
type DataPoint struct {
	Position     int // absolute position of the window in its buffer
	ExpectedSize int // decoded-size hint; the entry readers leave it zero
	Bytes        []byte
}

// EntryKind discriminates chunk entries from bank item entries.
type EntryKind uint8

const (
	KindChunk EntryKind = iota
	KindItem
)

// Entry describes one chunk or bank item on the wire: its tag, encoding
// mode and the window holding its payload. Payload windows alias the
// buffer they were read from and must not outlive the game.
type Entry struct {
	Kind   EntryKind
	ID     mmf.ChunkID
	Handle uint32 // item entries only
	Mode   mmf.Encoding

	Position int
	End      int
	Old      bool

	// Compressed overrides mode detection for old-dialect bank items,
	// where the per-item mode word does not exist and compression is a
	// property of the surrounding bank.
	Compressed bool

	Header DataPoint
	Data   DataPoint
}

// readChunkEntry reads one {id, mode, size, payload} chunk record.
func readChunkEntry(s *mmf.Stream, base int) (Entry, error) {
	pos := s.Position()

	id, err := s.ReadU16()
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "chunk id at %d", base+pos)
	}
	mode, err := s.ReadU16()
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "chunk mode at %d", base+pos)
	}
	size, err := s.ReadU32()
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "chunk size at %d", base+pos)
	}
	if !mmf.Encoding(mode).Valid() {
		return Entry{}, mmf.NewError(mmf.CodeInvalidMode, "chunk 0x%04X mode %d at %d", id, mode, base+pos)
	}
	data, err := s.ReadSpan(int(size))
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "chunk 0x%04X claims %d bytes", id, size)
	}

	return Entry{
		Kind:     KindChunk,
		ID:       mmf.ChunkID(id),
		Mode:     mmf.Encoding(mode),
		Position: base + pos,
		End:      base + s.Position(),
		Data: DataPoint{
			Position: base + pos + 8,
			Bytes:    data,
		},
	}, nil
}

// itemOptions carry the bank context an item entry is read under.
type itemOptions struct {
	ID         mmf.ChunkID // bank item tag, e.g. image item
	Old        bool
	Compressed bool // old dialect: bank-level compression flag
	HeaderSize int  // fixed header block preceding the payload
}

// readItemEntry reads one bank item record. New dialects carry
// {id, handle u32, mode u16, size u32}; the old dialect drops the mode
// word and narrows handle and size to u16.
func readItemEntry(s *mmf.Stream, base int, opts itemOptions) (Entry, error) {
	pos := s.Position()

	id, err := s.ReadU16()
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "item id at %d", base+pos)
	}
	if mmf.ChunkID(id) != opts.ID {
		return Entry{}, mmf.NewError(mmf.CodeInvalidChunk,
			"item tag 0x%04X at %d, expected %s (0x%04X)", id, base+pos, opts.ID, uint16(opts.ID))
	}

	e := Entry{
		Kind:       KindItem,
		ID:         opts.ID,
		Position:   base + pos,
		Old:        opts.Old,
		Compressed: opts.Compressed,
	}

	var size int
	if opts.Old {
		handle, err := s.ReadU16()
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "old item handle")
		}
		sz, err := s.ReadU16()
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "old item size")
		}
		e.Handle = uint32(handle)
		e.Mode = mmf.EncodingPlain
		if opts.Compressed {
			e.Mode = mmf.EncodingCompressed
		}
		size = int(sz)
	} else {
		handle, err := s.ReadU32()
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "item handle")
		}
		mode, err := s.ReadU16()
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "item mode")
		}
		sz, err := s.ReadU32()
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "item size")
		}
		if !mmf.Encoding(mode).Valid() {
			return Entry{}, mmf.NewError(mmf.CodeInvalidMode, "item handle %d mode %d", handle, mode)
		}
		e.Handle = handle
		e.Mode = mmf.Encoding(mode)
		size = int(sz)
	}

	if opts.HeaderSize > 0 {
		hpos := s.Position()
		hdr, err := s.ReadSpan(opts.HeaderSize)
		if err != nil {
			return Entry{}, mmf.TraceErr(err, "item header block of %d bytes", opts.HeaderSize)
		}
		e.Header = DataPoint{Position: base + hpos, Bytes: hdr}
		size -= opts.HeaderSize
		if size < 0 {
			return Entry{}, mmf.NewError(mmf.CodeInvalidChunk,
				"item size smaller than its %d-byte header block", opts.HeaderSize)
		}
	}

	dpos := s.Position()
	data, err := s.ReadSpan(size)
	if err != nil {
		return Entry{}, mmf.TraceErr(err, "item handle %d claims %d bytes", e.Handle, size)
	}
	e.Data = DataPoint{Position: base + dpos, Bytes: data}
	e.End = base + s.Position()
	return e, nil
}

// Decode returns the entry's payload with its encoding undone. The
// result is a fresh buffer the caller owns; decoding the same entry
// twice yields byte-identical output.
func (e *Entry) Decode(key *mmf.Key) ([]byte, error) {
	if e.Kind == KindItem && e.Old {
		// Old bank items have no trustworthy mode word. The bank flag
		// picks compression, and stray uncompressed payloads show up in
		// the wild, so fall back to the bytes themselves.
		if e.Compressed {
			return mmf.InflateOrRaw(e.Data.Bytes), nil
		}
		out := make([]byte, len(e.Data.Bytes))
		copy(out, e.Data.Bytes)
		return out, nil
	}
	out, err := mmf.Decode(e.Data.Bytes, e.ID, e.Mode, key)
	if err != nil {
		return nil, mmf.TraceErr(err, "entry at %d", e.Position)
	}
	return out, nil
}

// DecodeHeader returns the item's fixed header block, decoded the same
// way as the payload when the bank compresses its items.
func (e *Entry) DecodeHeader(key *mmf.Key) ([]byte, error) {
	if e.Header.Bytes == nil {
		return nil, nil
	}
	if e.Old && e.Compressed {
		return mmf.InflateOrRaw(e.Header.Bytes), nil
	}
	out := make([]byte, len(e.Header.Bytes))
	copy(out, e.Header.Bytes)
	return out, nil
}
