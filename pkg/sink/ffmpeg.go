package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/video-system/go-virtual-capture/internal/ffmpeg"
	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("ffmpeg", func() Sink { return &Recorder{} })
}

// Recorder encodes the device surface to a video file through an FFmpeg
// rawvideo pipe. The encoder is started lazily on the first frame, which
// fixes the recording resolution.
type Recorder struct {
	cfg    Config
	ffmpeg *ffmpeg.FFmpeg

	reader  *vcam.Reader
	encoder *ffmpeg.RawEncoder
	stop    context.CancelFunc
	done    chan struct{}
}

func (s *Recorder) Name() string { return "ffmpeg" }
func (s *Recorder) Type() string { return "recorder" }

// Open verifies the FFmpeg binary is available.
func (s *Recorder) Open(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("ffmpeg sink: output path required")
	}

	ff, err := ffmpeg.New()
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.ffmpeg = ff
	s.done = make(chan struct{})
	return nil
}

// Start drains the reader into the encoder.
func (s *Recorder) Start(ctx context.Context, reader *vcam.Reader) error {
	s.reader = reader
	ctx, s.stop = context.WithCancel(ctx)

	go func() {
		defer close(s.done)
		defer func() {
			if s.encoder != nil {
				if err := s.encoder.Close(); err != nil {
					log.Printf("[slot %d] ffmpeg encoder close: %v", s.cfg.Slot, err)
				}
			}
		}()

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

			if s.encoder == nil {
				enc, err := s.ffmpeg.StartRawEncoder(ctx, ffmpeg.RawEncoderConfig{
					Width:     frame.Width,
					Height:    frame.Height,
					PixFmt:    "rgba",
					Framerate: s.cfg.Framerate,
					Codec:     s.cfg.Codec,
					Preset:    s.cfg.Preset,
					Bitrate:   s.cfg.Bitrate,
					Output:    s.cfg.Path,
				})
				if err != nil {
					log.Printf("[slot %d] start encoder: %v", s.cfg.Slot, err)
					return
				}
				s.encoder = enc
				log.Printf("[slot %d] recording %dx%d -> %s",
					s.cfg.Slot, frame.Width, frame.Height, s.cfg.Path)
			}

			if err := s.encoder.WriteFrame(toRGBA(frame)); err != nil {
				log.Printf("[slot %d] encoder write: %v", s.cfg.Slot, err)
				return
			}
		}
	}()

	return nil
}

// Close stops the drain loop and finalizes the output file.
func (s *Recorder) Close() error {
	if s.reader != nil {
		s.stop()
		s.reader.Close()
		<-s.done
	}
	return nil
}
