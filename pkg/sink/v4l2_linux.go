//go:build linux

package sink

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("v4l2", func() Sink { return &V4L2{} })
}

// V4L2 ioctl surface, pure Go (no cgo). Matches the kernel UAPI on
// 64-bit platforms: struct v4l2_format is 208 bytes, union at offset 8.
const (
	vidiocSetFmt       = 0xc0d05605 // _IOWR('V', 5, struct v4l2_format)
	bufTypeVideoOutput = 2
	fieldNone          = 1
	colorspaceSRGB     = 8

	// V4L2_PIX_FMT_RGBA32: R,G,B,A byte order
	pixFmtRGBA32 = 'A' | 'B'<<8 | '2'<<16 | '4'<<24
)

type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

type v4l2Format struct {
	Type uint32
	_    uint32 // union alignment
	Pix  v4l2PixFormat
	_    [200 - unsafe.Sizeof(v4l2PixFormat{})]byte
}

// V4L2 publishes the device surface to a v4l2loopback output node, making
// it a real OS camera device for any V4L2-capable application.
type V4L2 struct {
	cfg Config
	fd  int

	reader *vcam.Reader
	stop   context.CancelFunc
	done   chan struct{}
}

func (s *V4L2) Name() string { return "v4l2" }
func (s *V4L2) Type() string { return "device" }

// Open opens the loopback node and negotiates the output format.
func (s *V4L2) Open(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("v4l2 sink: device path required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("v4l2 sink: output resolution required")
	}

	fd, err := unix.Open(cfg.Path, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	f := v4l2Format{Type: bufTypeVideoOutput}
	f.Pix = v4l2PixFormat{
		Width:        uint32(cfg.Width),
		Height:       uint32(cfg.Height),
		PixelFormat:  pixFmtRGBA32,
		Field:        fieldNone,
		BytesPerLine: uint32(cfg.Width * 4),
		SizeImage:    uint32(cfg.Width * cfg.Height * 4),
		Colorspace:   colorspaceSRGB,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vidiocSetFmt, uintptr(unsafe.Pointer(&f))); errno != 0 {
		unix.Close(fd)
		return fmt.Errorf("set format on %s: %w", cfg.Path, errno)
	}

	s.cfg = cfg
	s.fd = fd
	s.done = make(chan struct{})

	log.Printf("[slot %d] v4l2 surface at %s (%dx%d)", cfg.Slot, cfg.Path, cfg.Width, cfg.Height)
	return nil
}

// Start drains the reader, writing each frame to the loopback node.
// Frames that do not match the negotiated resolution are skipped; the
// producer is expected to resize (or be configured to match).
func (s *V4L2) Start(ctx context.Context, reader *vcam.Reader) error {
	s.reader = reader
	ctx, s.stop = context.WithCancel(ctx)

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			frame, ok := reader.Next(250 * time.Millisecond)
			if !ok {
				continue
			}
			if frame.Width != s.cfg.Width || frame.Height != s.cfg.Height {
				log.Printf("[slot %d] v4l2: dropping %dx%d frame (device is %dx%d)",
					s.cfg.Slot, frame.Width, frame.Height, s.cfg.Width, s.cfg.Height)
				continue
			}

			if _, err := unix.Write(s.fd, toRGBA(frame)); err != nil {
				log.Printf("[slot %d] v4l2 write: %v", s.cfg.Slot, err)
			}
		}
	}()

	return nil
}

// Close detaches the reader and closes the device node.
func (s *V4L2) Close() error {
	if s.reader != nil {
		s.stop()
		s.reader.Close()
		<-s.done
	}
	return unix.Close(s.fd)
}
