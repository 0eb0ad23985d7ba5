package vcam_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// testFrame builds a w x h RGBA frame with a deterministic gradient.
func testFrame(w, h int) *vcam.Frame {
	data := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		data[i*4+0] = byte(i)
		data[i*4+1] = byte(i >> 8)
		data[i*4+2] = 0x7f
		data[i*4+3] = 0xff
	}
	return &vcam.Frame{
		Width:  w,
		Height: h,
		Format: vcam.FormatRGBA,
		Data:   data,
	}
}

// bind creates a session on slot 0 of a fresh registry.
func bind(t *testing.T) (*vcam.Registry, *vcam.Session) {
	t.Helper()
	r := vcam.NewRegistry()
	s, err := r.Create(0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(s.Close)
	return r, s
}

func TestSendFrameParameterErrors(t *testing.T) {
	_, s := bind(t)

	cases := []struct {
		name  string
		frame *vcam.Frame
		opts  vcam.TransferOptions
		want  vcam.Result
	}{
		{"nil frame", nil, vcam.TransferOptions{}, vcam.ErrParameter},
		{"negative timeout", testFrame(2, 2), vcam.TransferOptions{Timeout: -time.Second}, vcam.ErrParameter},
		{"bad resize mode", testFrame(2, 2), vcam.TransferOptions{Resize: vcam.ResizeMode(99)}, vcam.ErrParameter},
		{"bad mirror mode", testFrame(2, 2), vcam.TransferOptions{Mirror: vcam.MirrorMode(99)}, vcam.ErrParameter},
		{"zero width", &vcam.Frame{Width: 0, Height: 2, Format: vcam.FormatRGBA, Data: make([]byte, 16)}, vcam.TransferOptions{}, vcam.ErrParameter},
		{"unknown format", &vcam.Frame{Width: 2, Height: 2, Format: "yuv420p", Data: make([]byte, 16)}, vcam.TransferOptions{}, vcam.ErrPixelFormat},
		{"oversized", testFrame(vcam.MaxWidth+1, 1), vcam.TransferOptions{}, vcam.ErrTooLarge},
		{"short data", &vcam.Frame{Width: 4, Height: 4, Format: vcam.FormatRGBA, Data: make([]byte, 10)}, vcam.TransferOptions{}, vcam.ErrReadFrame},
		{"nil data", &vcam.Frame{Width: 4, Height: 4, Format: vcam.FormatRGBA}, vcam.TransferOptions{}, vcam.ErrReadFrame},
	}

	for _, tc := range cases {
		if res := s.SendFrame(tc.frame, tc.opts); res != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, res, tc.want)
		}
	}
}

func TestSendFrameTooLargePublishesNothing(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	if res := s.SendFrame(testFrame(vcam.MaxWidth+1, vcam.MaxHeight+1), vcam.TransferOptions{}); res != vcam.ErrTooLarge {
		t.Fatalf("got %v, want ErrTooLarge", res)
	}

	if frame, ok := reader.Next(20 * time.Millisecond); ok {
		t.Errorf("rejected frame reached the surface: %+v", frame)
	}
}

func TestSendFrameClosedSession(t *testing.T) {
	_, s := bind(t)
	s.Close()

	// The closed-session check precedes all validation, so even garbage
	// parameters report the closed session.
	res := s.SendFrame(nil, vcam.TransferOptions{Timeout: -1})
	if res != vcam.ErrClosedSession {
		t.Errorf("got %v, want ErrClosedSession", res)
	}
}

func TestSendFrameUnsupportedBackend(t *testing.T) {
	r, s := bind(t)
	if err := r.MarkUnsupported(0, errors.New("no loopback driver")); err != nil {
		t.Fatalf("MarkUnsupported failed: %v", err)
	}

	if res := s.SendFrame(testFrame(2, 2), vcam.TransferOptions{}); res != vcam.ErrUnsupportedBackend {
		t.Errorf("got %v, want ErrUnsupportedBackend", res)
	}
}

func TestSendFrameInactiveWithoutReader(t *testing.T) {
	_, s := bind(t)

	start := time.Now()
	res := s.SendFrame(testFrame(2, 2), vcam.TransferOptions{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	if res != vcam.WarningInactive {
		t.Errorf("got %v, want WarningInactive", res)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("returned before the timeout window: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("blocked past timeout plus bounded overhead: %v", elapsed)
	}
}

func TestSendFrameSkipThenInactive(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond}

	if res := s.SendFrame(testFrame(2, 2), opts); res != vcam.Success {
		t.Fatalf("first send: got %v, want Success", res)
	}

	// Reader attached but not draining: overwrite within the timeout
	// window is a frame skip.
	if res := s.SendFrame(testFrame(2, 2), opts); res != vcam.WarningFrameSkip {
		t.Fatalf("second send: got %v, want WarningFrameSkip", res)
	}

	// Once the consumer has been stalled past the timeout, sends report
	// inactivity instead of churning the mailbox.
	time.Sleep(120 * time.Millisecond)
	if res := s.SendFrame(testFrame(2, 2), opts); res != vcam.WarningInactive {
		t.Fatalf("stalled send: got %v, want WarningInactive", res)
	}

	// A consume recovers the device.
	if _, ok := reader.Next(20 * time.Millisecond); !ok {
		t.Fatal("expected a pending frame")
	}
	if res := s.SendFrame(testFrame(2, 2), opts); res != vcam.Success {
		t.Errorf("post-recovery send: got %v, want Success", res)
	}
}

func TestSendFrameSteadyProducerNeverBlocks(t *testing.T) {
	_, s := bind(t)

	// No consumer at all, double buffering off: every send must return
	// within the timeout, at render cadence, without error escalation.
	opts := vcam.TransferOptions{Timeout: 5 * time.Millisecond}
	for i := 0; i < 30; i++ {
		start := time.Now()
		res := s.SendFrame(testFrame(8, 8), opts)
		if res != vcam.WarningInactive {
			t.Fatalf("send %d: got %v, want WarningInactive", i, res)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("send %d blocked for %v", i, elapsed)
		}
	}
}

func TestDoubleBufferOneFrameLatency(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond, DoubleBuffer: true}

	mark := func(b byte) *vcam.Frame {
		f := testFrame(2, 2)
		f.Data[0] = b
		return f
	}

	// First frame is retained, not published.
	if res := s.SendFrame(mark('A'), opts); res != vcam.Success {
		t.Fatalf("send A: got %v", res)
	}
	if _, ok := reader.Next(20 * time.Millisecond); ok {
		t.Fatal("first double-buffered frame must not be published yet")
	}

	// Each subsequent send publishes the previous frame: distinct,
	// in order, exactly once.
	want := []byte{'A', 'B', 'C'}
	for _, b := range []byte{'B', 'C', 'D'} {
		if res := s.SendFrame(mark(b), opts); res != vcam.Success {
			t.Fatalf("send %c: got %v", b, res)
		}
		frame, ok := reader.Next(20 * time.Millisecond)
		if !ok {
			t.Fatalf("no frame published after sending %c", b)
		}
		if frame.Data[0] != want[0] {
			t.Fatalf("got frame %c, want %c", frame.Data[0], want[0])
		}
		want = want[1:]
	}
}

func TestDoubleBufferSequenceOrdering(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond, DoubleBuffer: true}

	var lastSeq uint64
	for i := 0; i < 10; i++ {
		if res := s.SendFrame(testFrame(2, 2), opts); !res.OK() {
			t.Fatalf("send %d: %v", i, res)
		}
		frame, ok := reader.Next(20 * time.Millisecond)
		if i == 0 {
			if ok {
				t.Fatal("frame published before the latency window elapsed")
			}
			continue
		}
		if !ok {
			t.Fatalf("send %d: no frame", i)
		}
		if frame.Seq <= lastSeq {
			t.Fatalf("sequence regressed: %d after %d", frame.Seq, lastSeq)
		}
		lastSeq = frame.Seq
	}
}

func TestMirrorHorizontalPattern(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	// 4x1 asymmetric pattern: red, green, blue, white.
	f := &vcam.Frame{
		Width: 4, Height: 1, Format: vcam.FormatRGBA,
		Data: []byte{
			255, 0, 0, 255,
			0, 255, 0, 255,
			0, 0, 255, 255,
			255, 255, 255, 255,
		},
	}

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond, Mirror: vcam.MirrorHorizontal}
	if res := s.SendFrame(f, opts); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}

	out, ok := reader.Next(20 * time.Millisecond)
	if !ok {
		t.Fatal("no frame published")
	}

	flipped := []byte{
		255, 255, 255, 255,
		0, 0, 255, 255,
		0, 255, 0, 255,
		255, 0, 0, 255,
	}
	if !bytes.Equal(out.Data, flipped) {
		t.Errorf("mirror output:\n got %v\nwant %v", out.Data, flipped)
	}
}

func TestResizeDisabledIsIdentity(t *testing.T) {
	r, s := bind(t)
	r.SetOutput(0, 8, 8)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	f := testFrame(8, 8)
	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond}
	if res := s.SendFrame(f, opts); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}

	out, ok := reader.Next(20 * time.Millisecond)
	if !ok {
		t.Fatal("no frame published")
	}
	if out.Width != 8 || out.Height != 8 {
		t.Fatalf("dimensions changed: %dx%d", out.Width, out.Height)
	}
	if !bytes.Equal(out.Data, f.Data) {
		t.Error("pixel data changed without transforms")
	}
}

func TestResizeLinearScalesToOutput(t *testing.T) {
	r, s := bind(t)
	r.SetOutput(0, 4, 4)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond, Resize: vcam.ResizeLinear}
	if res := s.SendFrame(testFrame(16, 16), opts); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}

	out, ok := reader.Next(20 * time.Millisecond)
	if !ok {
		t.Fatal("no frame published")
	}
	if out.Width != 4 || out.Height != 4 {
		t.Errorf("got %dx%d, want 4x4", out.Width, out.Height)
	}
	if len(out.Data) != 4*4*4 {
		t.Errorf("data length %d, want %d", len(out.Data), 4*4*4)
	}
}

func TestColorSpaceTagCarried(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	opts := vcam.TransferOptions{Timeout: 100 * time.Millisecond}

	f := testFrame(2, 2)
	f.ColorSpace = vcam.ColorSpaceLinear
	if res := s.SendFrame(f, opts); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}
	out, _ := reader.Next(20 * time.Millisecond)
	if out.ColorSpace != vcam.ColorSpaceLinear {
		t.Errorf("got %q, want linear", out.ColorSpace)
	}

	// Untagged frames default to gamma.
	if res := s.SendFrame(testFrame(2, 2), opts); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}
	out, _ = reader.Next(20 * time.Millisecond)
	if out.ColorSpace != vcam.ColorSpaceGamma {
		t.Errorf("got %q, want gamma", out.ColorSpace)
	}
}

func TestPublishedFrameDoesNotAliasCallerData(t *testing.T) {
	r, s := bind(t)

	reader, err := r.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	f := testFrame(2, 2)
	if res := s.SendFrame(f, vcam.TransferOptions{Timeout: 100 * time.Millisecond}); res != vcam.Success {
		t.Fatalf("send: got %v", res)
	}

	// The caller may reuse its buffer immediately after return.
	for i := range f.Data {
		f.Data[i] = 0xee
	}

	out, ok := reader.Next(20 * time.Millisecond)
	if !ok {
		t.Fatal("no frame published")
	}
	if out.Data[2] != 0x7f {
		t.Error("published frame aliases the caller's buffer")
	}
}

func TestCloseRacesInFlightSend(t *testing.T) {
	_, s := bind(t)

	sent := make(chan vcam.Result, 1)
	go func() {
		// No reader attached: this send parks until its timeout.
		sent <- s.SendFrame(testFrame(2, 2), vcam.TransferOptions{Timeout: 150 * time.Millisecond})
	}()

	time.Sleep(20 * time.Millisecond)
	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case res := <-sent:
		if res != vcam.WarningInactive {
			t.Errorf("in-flight send: got %v, want WarningInactive", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight SendFrame never returned")
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned")
	}

	if res := s.SendFrame(testFrame(2, 2), vcam.TransferOptions{}); res != vcam.ErrClosedSession {
		t.Errorf("send after racing Close: got %v, want ErrClosedSession", res)
	}
}
