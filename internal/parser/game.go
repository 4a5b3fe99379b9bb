package parser

import (
	"math"
	"sync/atomic"

	"github.com/lochside/mmfparse/internal/mmf"
)

// Progress is a tear-free monotonic fraction in [0, 1] written by the
// decoder and polled by viewers.
type Progress struct {
	bits atomic.Uint64
}

// Set raises the counter to f. Lower values are ignored so the fraction
// never moves backwards.
func (p *Progress) Set(f float64) {
	for {
		old := p.bits.Load()
		if math.Float64frombits(old) >= f {
			return
		}
		if p.bits.CompareAndSwap(old, math.Float64bits(f)) {
			return
		}
	}
}

// Value returns the current fraction.
func (p *Progress) Value() float64 {
	return math.Float64frombits(p.bits.Load())
}

// PackFile is one file of the optional embedded bundle between the game
// signature and the chunk stream.
type PackFile struct {
	Name  string
	Wide  bool
	Bingo uint32
	Data  []byte
}

// Game is the root aggregate of one decoded executable: PE metadata,
// dialect flags, the derived key, the typed header tree, the banks and
// the handle lookup maps. It exclusively owns the input buffer; entries
// hold views into it and must not outlive it.
type Game struct {
	Path string

	buf []byte

	PackFiles []PackFile
	DataPos   int

	RuntimeVersion    mmf.ProductCode
	RuntimeSubVersion uint16
	ProductVersion    uint32
	ProductBuild      uint32

	Dialect    mmf.Dialect
	Unicode    bool
	OldGame    bool
	Compat     bool
	CNC        bool
	Recompiled bool

	key *mmf.Key

	// Identity strings collected from the early header chunks; the
	// cipher key is derived from them exactly once.
	Title     string
	Author    string
	Copyright string
	Project   string
	Output    string

	Header *Header

	// Weak lookups into the banks: handle to bank index. On duplicate
	// handles the later index wins.
	ImageHandles  map[uint32]int
	ObjectHandles map[uint16]int

	Completed Progress
}

// Key returns the derived cipher key, or nil before derivation.
func (g *Game) Key() *mmf.Key { return g.key }

// Buffer returns the raw executable bytes. Callers must not mutate it
// while entries exist.
func (g *Game) Buffer() []byte { return g.buf }

// deriveKey builds the cipher key from the collected identity strings.
// It is a no-op after the first call.
func (g *Game) deriveKey() {
	if g.key != nil {
		return
	}
	g.key = mmf.DeriveKey(g.Title, g.Copyright, g.Project, g.RuntimeVersion, g.Unicode, g.Dialect)
}

// buildHandleMaps scans the banks and populates the handle-to-index
// lookups. Later items win on duplicate handles, matching what
// recompiled games actually ship.
func (g *Game) buildHandleMaps() {
	g.ImageHandles = make(map[uint32]int)
	g.ObjectHandles = make(map[uint16]int)
	if g.Header == nil {
		return
	}
	if bank := g.Header.ImageBank; bank != nil {
		for i := range bank.Items {
			g.ImageHandles[bank.Items[i].Entry.Handle] = i
		}
	}
	if bank := g.Header.ObjectBank; bank != nil {
		for i := range bank.Items {
			g.ObjectHandles[uint16(bank.Items[i].Handle)] = i
		}
	}
}

// GetImage resolves an image handle through the handle map.
func (g *Game) GetImage(handle uint32) (*ImageItem, bool) {
	idx, ok := g.ImageHandles[handle]
	if !ok || g.Header == nil || g.Header.ImageBank == nil {
		return nil, false
	}
	return &g.Header.ImageBank.Items[idx], true
}

// GetObject resolves an object handle through the handle map.
func (g *Game) GetObject(handle uint16) (*ObjectItem, bool) {
	idx, ok := g.ObjectHandles[handle]
	if !ok || g.Header == nil || g.Header.ObjectBank == nil {
		return nil, false
	}
	return &g.Header.ObjectBank.Items[idx], true
}

// GetFrame returns the frame at the given bank index.
func (g *Game) GetFrame(index int) (*FrameItem, bool) {
	if g.Header == nil || g.Header.FrameBank == nil ||
		index < 0 || index >= len(g.Header.FrameBank.Items) {
		return nil, false
	}
	return &g.Header.FrameBank.Items[index], true
}
