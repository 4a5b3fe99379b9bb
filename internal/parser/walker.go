package parser

import (
	"encoding/binary"

	"github.com/lochside/mmfparse/internal/mmf"
)

// push opens a container on the state stack.
func (p *Parser) push(id mmf.ChunkID) {
	p.state = append(p.state, id)
}

// pop closes the innermost container.
func (p *Parser) pop() (mmf.ChunkID, bool) {
	if len(p.state) == 0 {
		return 0, false
	}
	id := p.state[len(p.state)-1]
	p.state = p.state[:len(p.state)-1]
	return id, true
}

// StateDepth reports how many containers are currently open. It is zero
// after a successful walk.
func (p *Parser) StateDepth() int { return len(p.state) }

// boundary is called between chunks: it surfaces cancellation and moves
// the progress counter.
func (p *Parser) boundary(s *mmf.Stream) error {
	if err := p.ctx.Err(); err != nil {
		return mmf.NewError(mmf.CodeCancelled, "cancelled at offset %d", s.Position())
	}
	if s.Size() > 0 {
		p.game.Completed.Set(float64(s.Position()) / float64(s.Size()))
	}
	return nil
}

// decodeEntry decodes with the game's current key.
func (p *Parser) decodeEntry(e *Entry) ([]byte, error) {
	return e.Decode(p.game.key)
}

// readGameHeader reads the root header container and all of its
// children, which make up the remainder of the chunk stream.
func (p *Parser) readGameHeader(s *mmf.Stream) error {
	entry, err := readChunkEntry(s, 0)
	if err != nil {
		return mmf.TraceErr(err, "root header chunk")
	}
	if entry.ID != mmf.ChunkHeader {
		return mmf.NewError(mmf.CodeInvalidChunk,
			"first chunk is %s (0x%04X), expected the header", entry.ID, uint16(entry.ID))
	}

	h := &Header{Chunk: BasicChunk{Entry: entry}}
	p.game.Header = h

	if err := p.readAppHeader(h, entry); err != nil {
		return mmf.TraceErr(err, "app header fields")
	}

	p.push(mmf.ChunkHeader)
	if err := p.readHeaderChildren(s, h); err != nil {
		return mmf.TraceErr(err, "header children")
	}
	return nil
}

// readHeaderChildren walks the header's sibling chunks until its
// terminating sentinel, dispatching each id to its typed reader.
func (p *Parser) readHeaderChildren(s *mmf.Stream, h *Header) error {
	for {
		if err := p.boundary(s); err != nil {
			return err
		}

		entry, err := readChunkEntry(s, 0)
		if err != nil {
			return err
		}

		p.logger.Debug("read chunk",
			"id", entry.ID.String(),
			"raw_id", uint16(entry.ID),
			"mode", entry.Mode.String(),
			"size", len(entry.Data.Bytes),
			"position", entry.Position,
		)

		switch entry.ID {
		case mmf.ChunkLast:
			h.Last = &BasicChunk{Entry: entry}
			if _, ok := p.pop(); !ok {
				return mmf.NewError(mmf.CodeInvalidState, "sentinel with no open container")
			}
			return nil

		case mmf.ChunkTitle:
			if h.Title, err = p.readStringChunk(entry); err != nil {
				return err
			}
			p.game.Title = h.Title.Value
			p.maybeDeriveKey()
		case mmf.ChunkAuthor:
			if h.Author, err = p.readStringChunk(entry); err != nil {
				return err
			}
			p.game.Author = h.Author.Value
		case mmf.ChunkCopyright:
			if h.Copyright, err = p.readStringChunk(entry); err != nil {
				return err
			}
			p.game.Copyright = h.Copyright.Value
			p.maybeDeriveKey()
		case mmf.ChunkProjectPath:
			if h.ProjectPath, err = p.readStringChunk(entry); err != nil {
				return err
			}
			p.game.Project = h.ProjectPath.Value
			p.maybeDeriveKey()
		case mmf.ChunkOutputPath:
			if h.OutputPath, err = p.readStringChunk(entry); err != nil {
				return err
			}
			p.game.Output = h.OutputPath.Value
		case mmf.ChunkAbout:
			if h.About, err = p.readStringChunk(entry); err != nil {
				return err
			}
		case mmf.ChunkTitle2:
			if h.Title2, err = p.readStringChunk(entry); err != nil {
				return err
			}

		case mmf.ChunkIcon:
			if h.Icon, err = p.readIcon(entry); err != nil {
				return err
			}
		case mmf.ChunkExtendedHeader:
			if h.Extended, err = p.readExtendedHeader(entry); err != nil {
				return err
			}
		case mmf.ChunkBinaryFiles:
			if h.BinaryFiles, err = p.readBinaryFiles(entry); err != nil {
				return err
			}
		case mmf.ChunkProtection:
			h.Protection = &BasicChunk{Entry: entry}
		case mmf.ChunkShaders:
			h.Shaders = &BasicChunk{Entry: entry}
		case mmf.ChunkSecurityNumber:
			h.SecurityNumber = &BasicChunk{Entry: entry}
		case mmf.ChunkDemoVersion:
			h.DemoVersion = &BasicChunk{Entry: entry}
		case mmf.ChunkVitalisePreview:
			h.VitalisePreview = &BasicChunk{Entry: entry}
		case mmf.ChunkMenu:
			h.Menu = &BasicChunk{Entry: entry}
		case mmf.ChunkMenuImages:
			h.MenuImages = &BasicChunk{Entry: entry}
		case mmf.ChunkExtensionPath:
			h.ExtensionPath = &BasicChunk{Entry: entry}
		case mmf.ChunkExtensions:
			h.Extensions = &BasicChunk{Entry: entry}
		case mmf.ChunkExtensionList:
			h.ExtensionList = &BasicChunk{Entry: entry}
		case mmf.ChunkGlobalEvents:
			h.GlobalEvents = &BasicChunk{Entry: entry}
		case mmf.ChunkGlobalValues:
			h.GlobalValues = &BasicChunk{Entry: entry}
		case mmf.ChunkGlobalStrings:
			h.GlobalStrings = &BasicChunk{Entry: entry}
		case mmf.ChunkGlobalValueNames:
			h.GlobalValueNames = &BasicChunk{Entry: entry}
		case mmf.ChunkGlobalStringNames:
			h.GlobalStringNames = &BasicChunk{Entry: entry}
		case mmf.ChunkMovementExts:
			h.MovementExtensions = &BasicChunk{Entry: entry}
		case mmf.ChunkSpacer:
			h.Spacer = &BasicChunk{Entry: entry}
		case mmf.ChunkExeOnly:
			h.ExeOnly = &BasicChunk{Entry: entry}
		case mmf.ChunkObjectNames:
			if h.ObjectNames, err = p.readStringsChunk(entry); err != nil {
				return err
			}
		case mmf.ChunkObjectProperties:
			h.ObjectProperties = &BasicChunk{Entry: entry}
		case mmf.ChunkTrueTypeFontsMeta:
			h.TrueTypeFontsMeta = &BasicChunk{Entry: entry}
		case mmf.ChunkTrueTypeFonts:
			h.TrueTypeFonts = &BasicChunk{Entry: entry}

		case mmf.ChunkFrameHandles:
			if h.FrameHandles, err = p.readFrameHandles(entry); err != nil {
				return err
			}
		case mmf.ChunkFrameBank:
			if h.FrameBank, err = p.readFrameBank(s, entry); err != nil {
				return mmf.TraceErr(err, "frame bank")
			}
		case mmf.ChunkObjectBank:
			if h.ObjectBank, err = p.readObjectBank(s, entry); err != nil {
				return mmf.TraceErr(err, "object bank")
			}
		case mmf.ChunkImageBank:
			if h.ImageBank, err = p.readImageBank(entry); err != nil {
				return mmf.TraceErr(err, "image bank")
			}
		case mmf.ChunkSoundBank:
			if h.SoundBank, err = p.readSoundBank(entry); err != nil {
				return mmf.TraceErr(err, "sound bank")
			}
		case mmf.ChunkMusicBank:
			if h.MusicBank, err = p.readMusicBank(entry); err != nil {
				return mmf.TraceErr(err, "music bank")
			}
		case mmf.ChunkFontBank:
			if h.FontBank, err = p.readFontBank(entry); err != nil {
				return mmf.TraceErr(err, "font bank")
			}

		default:
			p.storeUnknown(h, entry)
		}
	}
}

// storeUnknown files an unrecognised chunk into the sibling list
// matching its decoding profile. Unknown ids never fail the walk.
func (p *Parser) storeUnknown(h *Header, entry Entry) {
	p.logger.Warn("unknown chunk",
		"raw_id", uint16(entry.ID),
		"mode", entry.Mode.String(),
		"size", len(entry.Data.Bytes),
	)
	switch entry.Mode {
	case mmf.EncodingCompressed, mmf.EncodingEncryptedCompressed:
		h.UnknownCompressed = append(h.UnknownCompressed, BasicChunk{Entry: entry})
	case mmf.EncodingEncrypted:
		h.UnknownStrings = append(h.UnknownStrings, BasicChunk{Entry: entry})
	default:
		h.UnknownChunks = append(h.UnknownChunks, BasicChunk{Entry: entry})
	}
}

// maybeDeriveKey builds the cipher key once the three identity strings
// have all been seen. The product code is known from the PE pass, so
// the strings are the trailing dependency.
func (p *Parser) maybeDeriveKey() {
	if p.game.key != nil {
		return
	}
	if !p.seenTitle() || !p.seenCopyright() || !p.seenProject() {
		return
	}
	p.game.deriveKey()
	p.logger.Debug("derived encryption key", "salt", p.game.key.Salt())
}

func (p *Parser) seenTitle() bool     { return p.game.Header != nil && p.game.Header.Title != nil }
func (p *Parser) seenCopyright() bool { return p.game.Header != nil && p.game.Header.Copyright != nil }
func (p *Parser) seenProject() bool {
	return p.game.Header != nil && p.game.Header.ProjectPath != nil
}

// readAppHeader parses the application fields of the root header chunk
// payload. Old games truncate the block; missing trailing fields stay
// zero.
func (p *Parser) readAppHeader(h *Header, entry Entry) error {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return err
	}
	s := mmf.NewStream(data)

	read16 := func(dst *uint16) {
		if err == nil && s.Remaining() >= 2 {
			*dst, err = s.ReadU16()
		}
	}
	read32 := func(dst *uint32) {
		if err == nil && s.Remaining() >= 4 {
			*dst, err = s.ReadU32()
		}
	}

	var size uint32
	read32(&size)
	read16(&h.App.Flags)
	read16(&h.App.NewFlags)
	read16(&h.App.GraphicsMode)
	read16(&h.App.OtherFlags)
	read16(&h.App.WindowWidth)
	read16(&h.App.WindowHeight)
	read32(&h.App.InitialScore)
	read32(&h.App.InitialLives)
	read16(&h.App.ControlType)
	read16(&h.App.FrameCount)
	read32(&h.App.FrameRate)
	if err == nil && s.Remaining() >= 4 {
		var border uint32
		read32(&border)
		h.App.BorderColor = rgba(border)
	}
	return err
}

// readFrameHandles reads the frame handle table: a dense array of u16
// frame indices.
func (p *Parser) readFrameHandles(entry Entry) (*FrameHandles, error) {
	data, err := p.decodeEntry(&entry)
	if err != nil {
		return nil, err
	}
	handles := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		handles = append(handles, binary.LittleEndian.Uint16(data[i:]))
	}
	return &FrameHandles{Chunk: BasicChunk{Entry: entry}, Handles: handles}, nil
}
