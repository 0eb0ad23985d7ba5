package vcam

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/video-system/go-virtual-capture/internal/transform"
)

// TransferOptions controls how a single frame is delivered.
type TransferOptions struct {
	// Timeout bounds how long SendFrame waits for the downstream
	// consumer to be ready before the frame is dropped as inactive.
	Timeout time.Duration

	// Resize selects fitting to the device output resolution.
	Resize ResizeMode

	// Mirror selects an optional horizontal flip.
	Mirror MirrorMode

	// DoubleBuffer publishes the previous frame while retaining the
	// current one, trading one frame of latency for smoother delivery
	// when producer and consumer cadence differ.
	DoubleBuffer bool
}

func (o TransferOptions) valid() bool {
	if o.Timeout < 0 {
		return false
	}
	if o.Resize != ResizeNone && o.Resize != ResizeLinear {
		return false
	}
	if o.Mirror != MirrorNone && o.Mirror != MirrorHorizontal {
		return false
	}
	return true
}

// Session is a live producer binding to one device slot. It is driven by
// a single calling goroutine (typically a render loop); Close may race
// an in-flight SendFrame and waits it out before invalidating.
type Session struct {
	id  string
	dev *Device

	mu     sync.Mutex
	closed bool
	held   *PublishedFrame // double-buffer retained frame
}

func newSession(d *Device) *Session {
	return &Session{id: uuid.NewString(), dev: d}
}

// ID returns the session identifier used in logs and status output.
func (s *Session) ID() string { return s.id }

// Slot returns the bound device ordinal.
func (s *Session) Slot() int { return s.dev.slot }

// Close releases the device slot and any retained buffers. Idempotent;
// a send issued after Close reports ErrClosedSession.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.held = nil
	s.dev.release(s.id)
}

// SendFrame validates, transforms and publishes one frame to the device
// surface. The frame's pixel data is read synchronously during the call
// and never retained; ownership stays with the caller. The result maps
// every failure to a code — SendFrame does not panic and does not block
// beyond opts.Timeout plus bounded processing.
func (s *Session) SendFrame(frame *Frame, opts TransferOptions) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosedSession
	}

	s.dev.mu.Lock()
	backendErr := s.dev.backendErr
	outW, outH := s.dev.outWidth, s.dev.outHeight
	s.dev.mu.Unlock()

	if backendErr != nil {
		return ErrUnsupportedBackend
	}
	if !opts.valid() || frame == nil {
		return ErrParameter
	}

	bpp := frame.Format.BytesPerPixel()
	if bpp == 0 {
		return ErrPixelFormat
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return ErrParameter
	}
	if frame.Width > MaxWidth || frame.Height > MaxHeight {
		return ErrTooLarge
	}
	if len(frame.Data) < frame.size() {
		return ErrReadFrame
	}

	width, height := frame.Width, frame.Height

	// The backend owns published pixel memory, so the source data is
	// copied (or rewritten by the scaler) before it leaves this call.
	var data []byte
	if opts.Resize == ResizeLinear && outW > 0 && outH > 0 && (outW != width || outH != height) {
		if frame.Format == FormatRGBA16F {
			data = transform.ResizeRGBA16F(frame.Data, width, height, outW, outH)
		} else {
			data = transform.ResizeRGBA(frame.Data, width, height, outW, outH)
		}
		width, height = outW, outH
	} else {
		data = make([]byte, frame.size())
		copy(data, frame.Data[:frame.size()])
	}

	if opts.Mirror == MirrorHorizontal {
		transform.MirrorHorizontal(data, width, height, bpp)
	}

	colorSpace := frame.ColorSpace
	if colorSpace == "" {
		colorSpace = ColorSpaceGamma
	}

	out := &PublishedFrame{
		Width:      width,
		Height:     height,
		Format:     frame.Format,
		ColorSpace: colorSpace,
		Data:       data,
		Timestamp:  time.Now(),
	}

	if opts.DoubleBuffer {
		out, s.held = s.held, out
		if out == nil {
			// First frame of a double-buffered stream: retained,
			// published on the next call.
			return Success
		}
	}

	return s.dev.publish(out, opts.Timeout)
}
