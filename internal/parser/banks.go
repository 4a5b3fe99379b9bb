package parser

import (
	"github.com/lochside/mmfparse/internal/mmf"
)

// SoundItem is one sample of the sound bank. The embedded format (WAV,
// OGG, …) is preserved as-is; Data re-decodes the payload on demand.
type SoundItem struct {
	Entry Entry

	Checksum     uint32
	References   uint32
	Decompressed uint32
	Frequency    uint32
	Name         string

	// DataOffset is where the sample bytes start within the decoded
	// payload.
	DataOffset int
	Raw        bool
}

// MusicItem is one module of the music bank, retained raw.
type MusicItem struct {
	Entry Entry
}

// FontItem is one font of the font bank, retained raw.
type FontItem struct {
	Entry Entry
}

// SoundBank, MusicBank and FontBank are the remaining asset sequences.
type SoundBank struct {
	Chunk BasicChunk
	Items []SoundItem
	End   *BasicChunk
}

type MusicBank struct {
	Chunk BasicChunk
	Items []MusicItem
	End   *BasicChunk
}

type FontBank struct {
	Chunk BasicChunk
	Items []FontItem
	End   *BasicChunk
}

// oldSoundHeaderSize is the fixed header block preceding old-dialect
// sound payloads.
const oldSoundHeaderSize = 0x18

// readItemBank decodes a bank payload and walks its count, item entries
// and terminating sentinel, handing each item entry to visit.
func (p *Parser) readItemBank(entry Entry, opts itemOptions, endID mmf.ChunkID, visit func(Entry) error) (*BasicChunk, error) {
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
		return nil, mmf.TraceErr(err, "%s item count", entry.ID)
	}
	for i := uint32(0); i < count; i++ {
		ie, err := readItemEntry(s, base, opts)
		if err != nil {
			return nil, mmf.TraceErr(err, "%s item %d of %d", entry.ID, i, count)
		}
		if err := visit(ie); err != nil {
			return nil, mmf.TraceErr(err, "%s item %d", entry.ID, i)
		}
	}

	last, err := readChunkEntry(s, base)
	if err != nil {
		return nil, mmf.TraceErr(err, "%s sentinel", entry.ID)
	}
	if last.ID != endID {
		return nil, mmf.NewError(mmf.CodeInvalidChunk,
			"%s ends with %s (0x%04X), expected 0x%04X", entry.ID, last.ID, uint16(last.ID), uint16(endID))
	}
	return &BasicChunk{Entry: last}, nil
}

func (p *Parser) readSoundBank(entry Entry) (*SoundBank, error) {
	bank := &SoundBank{Chunk: BasicChunk{Entry: entry}}
	opts := itemOptions{
		ID:         mmf.ChunkSoundItem,
		Old:        p.game.OldGame,
		Compressed: p.game.OldGame,
	}
	if p.game.OldGame {
		opts.HeaderSize = oldSoundHeaderSize
	}

	end, err := p.readItemBank(entry, opts, mmf.ChunkLast, func(ie Entry) error {
		item := SoundItem{Entry: ie}
		if err := p.readSoundFields(&item); err != nil {
			p.logger.Warn("sound item kept raw",
				"handle", ie.Handle,
				"error", err,
			)
			item.Raw = true
		}
		bank.Items = append(bank.Items, item)
		return nil
	})
	if err != nil {
		return bank, err
	}
	bank.End = end

	p.logger.Info("read sound bank", "sounds", len(bank.Items))
	return bank, nil
}

// readSoundFields parses the sample header of a new-dialect sound
// payload. Old items carry their header in the fixed block and keep
// the payload opaque.
func (p *Parser) readSoundFields(item *SoundItem) error {
	if item.Entry.Old {
		return nil
	}
	data, err := item.Entry.Decode(p.game.key)
	if err != nil {
		return err
	}
	s := mmf.NewStream(data)

	if item.Checksum, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "sound checksum")
	}
	if item.References, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "sound references")
	}
	if item.Decompressed, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "sound decompressed size")
	}
	if item.Frequency, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "sound frequency")
	}
	nameLen, err := s.ReadU32()
	if err != nil {
		return mmf.TraceErr(err, "sound name length")
	}
	var raw []byte
	if p.game.Unicode {
		raw, err = s.ReadSpan(int(nameLen) * 2)
	} else {
		raw, err = s.ReadSpan(int(nameLen))
	}
	if err != nil {
		return mmf.TraceErr(err, "sound name of %d chars", nameLen)
	}
	name, err := p.decodeString(raw)
	if err != nil {
		return err
	}
	item.Name = mmf.TrimNul(name)
	item.DataOffset = s.Position()
	return nil
}

// Data returns the sample bytes in their embedded format.
func (item *SoundItem) Data(key *mmf.Key) ([]byte, error) {
	data, err := item.Entry.Decode(key)
	if err != nil {
		return nil, err
	}
	if item.DataOffset > len(data) {
		return nil, mmf.NewError(mmf.CodeOutOfData,
			"sample data at %d beyond %d payload bytes", item.DataOffset, len(data))
	}
	return data[item.DataOffset:], nil
}

func (p *Parser) readMusicBank(entry Entry) (*MusicBank, error) {
	bank := &MusicBank{Chunk: BasicChunk{Entry: entry}}
	opts := itemOptions{
		ID:         mmf.ChunkMusicItem,
		Old:        p.game.OldGame,
		Compressed: p.game.OldGame,
	}
	end, err := p.readItemBank(entry, opts, mmf.ChunkLast, func(ie Entry) error {
		bank.Items = append(bank.Items, MusicItem{Entry: ie})
		return nil
	})
	if err != nil {
		return bank, err
	}
	bank.End = end

	p.logger.Info("read music bank", "tracks", len(bank.Items))
	return bank, nil
}

func (p *Parser) readFontBank(entry Entry) (*FontBank, error) {
	bank := &FontBank{Chunk: BasicChunk{Entry: entry}}
	opts := itemOptions{
		ID:         mmf.ChunkFontItem,
		Old:        p.game.OldGame,
		Compressed: p.game.OldGame,
	}
	end, err := p.readItemBank(entry, opts, mmf.ChunkLast, func(ie Entry) error {
		bank.Items = append(bank.Items, FontItem{Entry: ie})
		return nil
	})
	if err != nil {
		return bank, err
	}
	bank.End = end

	p.logger.Info("read font bank", "fonts", len(bank.Items))
	return bank, nil
}
