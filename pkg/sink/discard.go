package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("discard", func() Sink { return &Discard{} })
}

// Discard drains the device surface and drops every frame. Useful as a
// consumer simulator in tests and for keeping a device active while no
// real sink is attached.
type Discard struct {
	frames atomic.Uint64

	reader *vcam.Reader
	stop   context.CancelFunc
	done   chan struct{}
}

func (s *Discard) Name() string { return "discard" }
func (s *Discard) Type() string { return "null" }

func (s *Discard) Open(cfg Config) error {
	s.done = make(chan struct{})
	return nil
}

func (s *Discard) Start(ctx context.Context, reader *vcam.Reader) error {
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
			if _, ok := reader.Next(250 * time.Millisecond); ok {
				s.frames.Add(1)
			}
		}
	}()

	return nil
}

// Frames returns the number of frames consumed so far.
func (s *Discard) Frames() uint64 { return s.frames.Load() }

func (s *Discard) Close() error {
	if s.reader != nil {
		s.stop()
		s.reader.Close()
		<-s.done
	}
	return nil
}
