package parser

import (
	"context"
	"log/slog"

	"github.com/lochside/mmfparse/internal/mmf"
)

// Options tune a decode pass.
type Options struct {
	// ForceCompat is recorded on the game as Game.Compat. No decode
	// step reads it: chunks are decoded the same way with or without it.
	ForceCompat bool
}

// Parser drives one decode pass over a game executable.
type Parser struct {
	game   *Game
	logger *slog.Logger
	ctx    context.Context
	opts   Options

	// state is the stack of currently open container ids.
	state []mmf.ChunkID
}

// Parse decodes a built game executable into its typed resource tree.
// buf is the slurped executable; the returned game holds views into
// it, so the caller must not mutate buf afterwards.
//
// On cancellation the partially built tree is returned alongside the
// error so callers can still browse what was decoded.
func Parse(ctx context.Context, path string, buf []byte, opts Options) (*Game, error) {
	logger := slog.With("file", path)
	logger.Info("starting decode", "size", len(buf))

	game := &Game{Path: path, buf: buf, Compat: opts.ForceCompat}
	p := &Parser{
		game:   game,
		logger: logger,
		ctx:    ctx,
		opts:   opts,
	}

	s := mmf.NewStream(buf)
	if err := p.parsePEHeader(s); err != nil {
		return game, mmf.TraceErr(err, "PE container")
	}
	if err := p.scanSignature(s); err != nil {
		return game, mmf.TraceErr(err, "game signature")
	}
	if err := p.readProductHeader(s); err != nil {
		return game, mmf.TraceErr(err, "product header")
	}
	if err := p.readPackFiles(s); err != nil {
		return game, mmf.TraceErr(err, "pack files")
	}

	if err := p.readGameHeader(s); err != nil {
		return game, mmf.TraceErr(err, "chunk stream")
	}

	if len(p.state) != 0 {
		return game, mmf.NewError(mmf.CodeInvalidState,
			"%d containers still open after the walk", len(p.state))
	}

	game.buildHandleMaps()
	game.Completed.Set(1.0)

	logger.Info("decode complete",
		"title", game.Title,
		"frames", bankLen(game.Header.FrameBank),
		"objects", len(game.ObjectHandles),
		"images", len(game.ImageHandles),
		"unknown_chunks", len(game.Header.UnknownChunks)+
			len(game.Header.UnknownStrings)+
			len(game.Header.UnknownCompressed),
	)
	return game, nil
}

func bankLen(b *FrameBank) int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}
