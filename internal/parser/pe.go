package parser

import (
	"bytes"
	"encoding/binary"

	"github.com/lochside/mmfparse/internal/mmf"
)

// parsePEHeader walks the PE container to the end of the section table
// data, where the appended game payload begins. The DOS and COFF
// headers are parsed by hand: packed game executables routinely carry
// section tables that stricter loaders reject.
func (p *Parser) parsePEHeader(s *mmf.Stream) error {
	magic, err := s.ReadU16()
	if err != nil {
		return mmf.TraceErr(err, "DOS magic")
	}
	if magic != 0x5A4D { // "MZ"
		return mmf.NewError(mmf.CodeInvalidExeSignature, "DOS magic 0x%04X", magic)
	}

	if err := s.Seek(0x3C); err != nil {
		return mmf.TraceErr(err, "e_lfanew")
	}
	peOffset, err := s.ReadU32()
	if err != nil {
		return mmf.TraceErr(err, "e_lfanew")
	}
	if err := s.Seek(int(peOffset)); err != nil {
		return mmf.TraceErr(err, "PE header at %d", peOffset)
	}

	peMagic, err := s.ReadU32()
	if err != nil {
		return mmf.TraceErr(err, "PE magic")
	}
	if peMagic != 0x00004550 { // "PE\0\0"
		return mmf.NewError(mmf.CodeInvalidPESignature, "PE magic 0x%08X at %d", peMagic, peOffset)
	}

	// COFF header: machine u16, numSections u16, timestamp u32,
	// symtab ptr u32, symbol count u32, optional header size u16,
	// characteristics u16.
	if err := s.Skip(2); err != nil {
		return mmf.TraceErr(err, "COFF machine")
	}
	numSections, err := s.ReadU16()
	if err != nil {
		return mmf.TraceErr(err, "section count")
	}
	if err := s.Skip(12); err != nil {
		return mmf.TraceErr(err, "COFF header")
	}
	optSize, err := s.ReadU16()
	if err != nil {
		return mmf.TraceErr(err, "optional header size")
	}
	if err := s.Skip(2 + int(optSize)); err != nil {
		return mmf.TraceErr(err, "optional header of %d bytes", optSize)
	}

	// Section table: 40 bytes per entry; raw data pointer and size sit
	// at offsets 20 and 16. The payload starts after the last section's
	// raw data.
	payloadStart := s.Position()
	for i := 0; i < int(numSections); i++ {
		sec, err := s.ReadSpan(40)
		if err != nil {
			return mmf.TraceErr(err, "section table entry %d of %d", i, numSections)
		}
		rawSize := int(binary.LittleEndian.Uint32(sec[16:]))
		rawPtr := int(binary.LittleEndian.Uint32(sec[20:]))
		if end := rawPtr + rawSize; end > payloadStart {
			payloadStart = end
		}
	}

	p.logger.Debug("parsed PE container",
		"sections", numSections,
		"payload_start", payloadStart,
	)

	return s.Seek(payloadStart)
}

// scanSignature searches forward from the current position for one of
// the game magic signatures and applies the dialect flags it implies.
// The cursor is left just past the signature.
func (p *Parser) scanSignature(s *mmf.Stream) error {
	sigs := []struct {
		magic [4]byte
		apply func(*Game)
	}{
		{mmf.SigUnicode, func(g *Game) { g.Unicode = true }},
		{mmf.SigANSI, func(g *Game) {}},
		{mmf.SigRecompiled, func(g *Game) { g.Unicode = true; g.Recompiled = true }},
		{mmf.SigCNC, func(g *Game) { g.CNC = true; g.OldGame = true }},
	}

	buf := s.Bytes()
	best := -1
	var apply func(*Game)
	for _, sig := range sigs {
		if idx := bytes.Index(buf[s.Position():], sig.magic[:]); idx >= 0 {
			abs := s.Position() + idx
			if best < 0 || abs < best {
				best = abs
				apply = sig.apply
			}
		}
	}
	if best < 0 {
		return mmf.NewError(mmf.CodeInvalidGameSignature,
			"no game signature after offset %d", s.Position())
	}

	apply(p.game)
	p.game.DataPos = best
	if err := s.Seek(best + 4); err != nil {
		return mmf.TraceErr(err, "past signature")
	}

	p.logger.Info("found game signature",
		"signature", string(buf[best:best+4]),
		"offset", best,
		"unicode", p.game.Unicode,
	)
	return nil
}

// readProductHeader reads the runtime identification block that follows
// the signature and fixes the dialect.
func (p *Parser) readProductHeader(s *mmf.Stream) error {
	g := p.game

	rv, err := s.ReadU16()
	if err != nil {
		return mmf.TraceErr(err, "runtime version")
	}
	g.RuntimeVersion = mmf.ProductCode(rv)
	if g.RuntimeSubVersion, err = s.ReadU16(); err != nil {
		return mmf.TraceErr(err, "runtime subversion")
	}
	if g.ProductVersion, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "product version")
	}
	if g.ProductBuild, err = s.ReadU32(); err != nil {
		return mmf.TraceErr(err, "product build")
	}

	switch g.RuntimeVersion {
	case mmf.ProductMMF1, mmf.ProductMMF15, mmf.ProductCNCLegacy:
		g.OldGame = true
		g.Dialect = mmf.DialectOld
	default:
		switch {
		case g.OldGame:
			g.Dialect = mmf.DialectOld
		case g.ProductBuild < 288:
			g.Dialect = mmf.Dialect284
		default:
			g.Dialect = mmf.Dialect288
		}
	}

	p.logger.Info("product header",
		"runtime", g.RuntimeVersion,
		"subversion", g.RuntimeSubVersion,
		"version", g.ProductVersion,
		"build", g.ProductBuild,
		"dialect", g.Dialect,
	)
	return nil
}

// readPackFiles reads the embedded file bundle between the product
// header and the chunk stream. A zero count means no bundle.
func (p *Parser) readPackFiles(s *mmf.Stream) error {
	count, err := s.ReadU32()
	if err != nil {
		return mmf.TraceErr(err, "pack file count")
	}
	if count == 0 {
		return nil
	}
	if int(count) > s.Remaining() {
		return mmf.NewError(mmf.CodeOutOfData,
			"pack file count %d exceeds %d remaining bytes", count, s.Remaining())
	}

	files := make([]PackFile, 0, count)
	for i := uint32(0); i < count; i++ {
		var pf PackFile
		wide, err := s.ReadU8()
		if err != nil {
			return mmf.TraceErr(err, "pack file %d wide flag", i)
		}
		pf.Wide = wide != 0
		if pf.Name, err = s.ReadLengthPrefixed(2, pf.Wide); err != nil {
			return mmf.TraceErr(err, "pack file %d name", i)
		}
		if pf.Bingo, err = s.ReadU32(); err != nil {
			return mmf.TraceErr(err, "pack file %d bingo", i)
		}
		size, err := s.ReadU32()
		if err != nil {
			return mmf.TraceErr(err, "pack file %d data size", i)
		}
		data, err := s.ReadSpan(int(size))
		if err != nil {
			return mmf.TraceErr(err, "pack file %q claims %d bytes", pf.Name, size)
		}
		pf.Data = data
		files = append(files, pf)

		p.logger.Debug("read pack file",
			"index", i,
			"name", pf.Name,
			"size", size,
			"bingo", pf.Bingo,
		)
	}
	p.game.PackFiles = files

	p.logger.Info("read pack files", "count", count)
	return nil
}
