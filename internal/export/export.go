package export

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lochside/mmfparse/internal/parser"
)

// Images writes every decodable image of the bank as a PNG named after
// its handle. Palette-indexed images borrow the first frame palette; a
// grayscale ramp stands in when no frame carries one. Returns the
// number of files written.
func Images(g *parser.Game, dir string, colorTrans bool) (int, error) {
	if g.Header == nil || g.Header.ImageBank == nil {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create image directory: %w", err)
	}

	palette := framePalette(g)
	written := 0
	for i := range g.Header.ImageBank.Items {
		item := &g.Header.ImageBank.Items[i]
		img, err := item.Image(g.Key(), palette, colorTrans)
		if err != nil {
			slog.Warn("skipping image", "handle", item.Entry.Handle, "error", err)
			continue
		}
		name := filepath.Join(dir, fmt.Sprintf("%d.png", item.Entry.Handle))
		f, err := os.Create(name)
		if err != nil {
			return written, fmt.Errorf("failed to create %s: %w", name, err)
		}
		err = png.Encode(f, img)
		f.Close()
		if err != nil {
			return written, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		written++
	}
	return written, nil
}

// framePalette returns the first frame palette in the bank, or a
// grayscale ramp.
func framePalette(g *parser.Game) []color.NRGBA {
	if g.Header != nil && g.Header.FrameBank != nil {
		for i := range g.Header.FrameBank.Items {
			if pal := g.Header.FrameBank.Items[i].Palette; pal != nil {
				return pal.Colors[:]
			}
		}
	}
	ramp := make([]color.NRGBA, 256)
	for i := range ramp {
		ramp[i] = color.NRGBA{R: byte(i), G: byte(i), B: byte(i), A: 255}
	}
	return ramp
}

// Sounds writes every sound sample in its embedded format.
func Sounds(g *parser.Game, dir string) (int, error) {
	if g.Header == nil || g.Header.SoundBank == nil {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create sound directory: %w", err)
	}

	written := 0
	for i := range g.Header.SoundBank.Items {
		item := &g.Header.SoundBank.Items[i]
		data, err := item.Data(g.Key())
		if err != nil {
			slog.Warn("skipping sound", "handle", item.Entry.Handle, "error", err)
			continue
		}
		name := item.Name
		if name == "" {
			name = fmt.Sprintf("%d", item.Entry.Handle)
		}
		path := filepath.Join(dir, name+soundExt(data))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}

// Music writes every music track raw with a sniffed extension.
func Music(g *parser.Game, dir string) (int, error) {
	if g.Header == nil || g.Header.MusicBank == nil {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create music directory: %w", err)
	}

	written := 0
	for i := range g.Header.MusicBank.Items {
		item := &g.Header.MusicBank.Items[i]
		data, err := item.Entry.Decode(g.Key())
		if err != nil {
			slog.Warn("skipping music", "handle", item.Entry.Handle, "error", err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%d%s", item.Entry.Handle, musicExt(data)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}

// Binary writes the embedded binary files under their own names.
func Binary(g *parser.Game, dir string) (int, error) {
	if g.Header == nil || g.Header.BinaryFiles == nil {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create binary directory: %w", err)
	}

	written := 0
	for _, bf := range g.Header.BinaryFiles.Items {
		name := filepath.Base(filepath.FromSlash(bf.Name))
		if name == "" || name == "." {
			name = fmt.Sprintf("file_%d", written)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, bf.Data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}

// ErrorLog writes decode diagnostics to a log file, one error per line,
// replacing any existing file. Nothing is written when errs is empty.
func ErrorLog(path string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, err := range errs {
		buf.WriteString(err.Error())
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func soundExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return ".wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return ".ogg"
	default:
		return ".bin"
	}
}

func musicExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("MThd")):
		return ".mid"
	case bytes.HasPrefix(data, []byte("IMPM")):
		return ".it"
	case bytes.HasPrefix(data, []byte("Extended Module")):
		return ".xm"
	default:
		return ".mod"
	}
}
