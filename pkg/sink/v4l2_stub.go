//go:build !linux

package sink

import (
	"context"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("v4l2", func() Sink { return &V4L2{} })
}

// V4L2 stub for non-Linux builds. Open reports ErrNotSupported, which
// the manager surfaces to producers as an unsupported-backend result.
type V4L2 struct{}

func (s *V4L2) Name() string { return "v4l2" }
func (s *V4L2) Type() string { return "device" }

func (s *V4L2) Open(cfg Config) error {
	return ErrNotSupported
}

func (s *V4L2) Start(ctx context.Context, reader *vcam.Reader) error {
	return ErrNotSupported
}

func (s *V4L2) Close() error { return nil }
