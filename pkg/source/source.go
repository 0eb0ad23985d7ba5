// Package source provides frame producers that feed capture sessions.
package source

import (
	"context"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// Source is the interface for frame producers.
type Source interface {
	// Metadata
	Name() string
	Type() string

	// Lifecycle
	Open(config Config) error
	Close() error

	// NextFrame produces the next frame to transfer. The returned frame
	// is owned by the source and valid until the following call.
	NextFrame(ctx context.Context) (*vcam.Frame, error)
}

// Config holds source configuration.
type Config struct {
	Width      int
	Height     int
	Framerate  int
	Format     vcam.PixelFormat
	ColorSpace vcam.ColorSpace
}

// Registry holds registered source plugins
var Registry = make(map[string]func() Source)

// Register registers a source plugin
func Register(name string, factory func() Source) {
	Registry[name] = factory
}

// Get returns a source plugin by name
func Get(name string) (Source, bool) {
	factory, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
