// Package sink provides OS-facing consumers that drain a virtual capture
// device surface and expose its frames to external applications.
package sink

import (
	"context"
	"errors"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// ErrNotSupported is returned by Open when a sink backend is not
// available on this platform or in this build.
var ErrNotSupported = errors.New("sink backend is not supported on this platform")

// Sink is the interface for virtual device output backends.
type Sink interface {
	// Metadata
	Name() string
	Type() string

	// Lifecycle
	Open(config Config) error
	Close() error

	// Start begins draining the reader. It returns immediately; the
	// drain loop runs until ctx is cancelled or Close is called.
	Start(ctx context.Context, reader *vcam.Reader) error
}

// Config holds sink configuration.
type Config struct {
	Slot      int
	Width     int
	Height    int
	Framerate int

	// Sink-specific settings
	Addr    string // mjpeg: listen address
	Path    string // ffmpeg: output file, v4l2: device node
	Codec   string // ffmpeg: h264, hevc
	Preset  string
	Bitrate int // kbps
}

// Registry holds registered sink plugins
var Registry = make(map[string]func() Sink)

// Register registers a sink plugin
func Register(name string, factory func() Sink) {
	Registry[name] = factory
}

// Get returns a sink plugin by name
func Get(name string) (Sink, bool) {
	factory, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
