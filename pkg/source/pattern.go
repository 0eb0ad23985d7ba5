package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/x448/float16"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("pattern", func() Source { return &Pattern{} })
}

// barColors are ordered left to right, so the pattern is horizontally
// asymmetric and mirror transforms are visible downstream.
var barColors = [][3]uint8{
	{255, 255, 255}, // white
	{255, 255, 0},   // yellow
	{0, 255, 255},   // cyan
	{0, 255, 0},     // green
	{255, 0, 255},   // magenta
	{255, 0, 0},     // red
	{0, 0, 255},     // blue
}

// Pattern generates color bars with a moving marker column, paced at the
// configured framerate. It stands in for a real render source in the
// daemon and in tests.
type Pattern struct {
	cfg   Config
	frame *vcam.Frame
	seq   uint64
	next  time.Time
}

func (p *Pattern) Name() string { return "pattern" }
func (p *Pattern) Type() string { return "generator" }

// Open validates the configuration and allocates the frame buffer.
func (p *Pattern) Open(cfg Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("pattern: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Framerate <= 0 {
		cfg.Framerate = 30
	}
	if cfg.Format == "" {
		cfg.Format = vcam.FormatRGBA
	}
	bpp := cfg.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("pattern: unsupported format %q", cfg.Format)
	}
	if cfg.ColorSpace == "" {
		cfg.ColorSpace = vcam.ColorSpaceGamma
	}

	p.cfg = cfg
	p.frame = &vcam.Frame{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     cfg.Format,
		ColorSpace: cfg.ColorSpace,
		Data:       make([]byte, cfg.Width*cfg.Height*bpp),
	}
	return nil
}

func (p *Pattern) Close() error {
	p.frame = nil
	return nil
}

// NextFrame renders the next pattern frame, sleeping to hold the
// configured cadence. The returned frame is reused across calls.
func (p *Pattern) NextFrame(ctx context.Context) (*vcam.Frame, error) {
	if p.frame == nil {
		return nil, fmt.Errorf("pattern: source not open")
	}

	interval := time.Second / time.Duration(p.cfg.Framerate)
	if p.next.IsZero() {
		p.next = time.Now()
	}
	if wait := time.Until(p.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	p.next = p.next.Add(interval)

	p.render()
	p.seq++
	return p.frame, nil
}

func (p *Pattern) render() {
	w, h := p.cfg.Width, p.cfg.Height
	marker := int(p.seq) % w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := barColors[x*len(barColors)/w]
			if x == marker {
				c = [3]uint8{255, 255, 255}
			}
			p.putPixel(x, y, c)
		}
	}
}

func (p *Pattern) putPixel(x, y int, c [3]uint8) {
	switch p.cfg.Format {
	case vcam.FormatRGBA:
		i := (y*p.cfg.Width + x) * 4
		p.frame.Data[i+0] = c[0]
		p.frame.Data[i+1] = c[1]
		p.frame.Data[i+2] = c[2]
		p.frame.Data[i+3] = 255
	case vcam.FormatBGRA:
		i := (y*p.cfg.Width + x) * 4
		p.frame.Data[i+0] = c[2]
		p.frame.Data[i+1] = c[1]
		p.frame.Data[i+2] = c[0]
		p.frame.Data[i+3] = 255
	case vcam.FormatRGBA16F:
		i := (y*p.cfg.Width + x) * 8
		putHalf(p.frame.Data[i+0:], float32(c[0])/255)
		putHalf(p.frame.Data[i+2:], float32(c[1])/255)
		putHalf(p.frame.Data[i+4:], float32(c[2])/255)
		putHalf(p.frame.Data[i+6:], 1)
	}
}

func putHalf(b []byte, v float32) {
	binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
}
