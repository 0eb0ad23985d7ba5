package sink

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

func init() {
	Register("mjpeg", func() Sink { return &MJPEG{} })
}

// MJPEG serves the device surface as a motion-JPEG HTTP stream, the
// virtual-camera form that players and browsers consume directly.
// Endpoints: / (multipart stream) and /snapshot.jpg (latest frame).
type MJPEG struct {
	cfg      Config
	listener net.Listener

	mu      sync.RWMutex
	current []byte // latest encoded JPEG

	reader *vcam.Reader
	stop   context.CancelFunc
	done   chan struct{}
}

func (s *MJPEG) Name() string { return "mjpeg" }
func (s *MJPEG) Type() string { return "stream" }

// Open binds the listen address. An empty address picks a loopback port.
func (s *MJPEG) Open(cfg Config) error {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mjpeg listen: %w", err)
	}

	s.cfg = cfg
	s.listener = ln
	s.done = make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStream)
	mux.HandleFunc("/snapshot.jpg", s.handleSnapshot)
	go http.Serve(ln, mux)

	log.Printf("[slot %d] mjpeg surface at %s", cfg.Slot, s.URL())
	return nil
}

// URL returns the stream address.
func (s *MJPEG) URL() string {
	return fmt.Sprintf("http://%s", s.listener.Addr())
}

// Start drains the reader, re-encoding each published frame.
func (s *MJPEG) Start(ctx context.Context, reader *vcam.Reader) error {
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

			data, err := encodeJPEG(frame)
			if err != nil {
				log.Printf("[slot %d] mjpeg encode: %v", s.cfg.Slot, err)
				continue
			}

			s.mu.Lock()
			s.current = data
			s.mu.Unlock()
		}
	}()

	return nil
}

// Close shuts the HTTP surface and detaches the reader.
func (s *MJPEG) Close() error {
	if s.reader != nil {
		s.stop()
		s.reader.Close()
		<-s.done
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *MJPEG) handleStream(w http.ResponseWriter, r *http.Request) {
	m := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+m.Boundary())

	interval := time.Second / 30
	if s.cfg.Framerate > 0 {
		interval = time.Second / time.Duration(s.cfg.Framerate)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		data := s.current
		s.mu.RUnlock()
		if data == nil {
			continue
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "image/jpeg")
		header.Set("Content-Length", fmt.Sprint(len(data)))
		part, err := m.CreatePart(header)
		if err != nil {
			return
		}
		if _, err := part.Write(data); err != nil {
			return
		}
	}
}

func (s *MJPEG) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := s.current
	s.mu.RUnlock()

	if data == nil {
		http.Error(w, "no frame published yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// encodeJPEG converts a published frame to a JPEG image.
func encodeJPEG(f *vcam.PublishedFrame) ([]byte, error) {
	pix := toRGBA(f)
	if pix == nil {
		return nil, fmt.Errorf("unsupported format %q", f.Format)
	}

	img := &image.RGBA{
		Pix:    pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
