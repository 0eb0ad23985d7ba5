package vcam

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// MaxDevices is the size of the fixed virtual device pool. Slots are
// pre-registered at ordinals 0..MaxDevices-1; they are never created or
// destroyed at runtime.
const MaxDevices = 10

var (
	// ErrSlotRange is returned when a device slot ordinal is outside 0..MaxDevices-1.
	ErrSlotRange = errors.New("device slot out of range")

	// ErrSlotBusy is returned when a slot is already bound by a live session.
	ErrSlotBusy = errors.New("device slot already bound")
)

// Registry owns the fixed pool of virtual capture devices.
type Registry struct {
	devices [MaxDevices]*Device
}

// NewRegistry creates a registry with all device slots pre-registered
// and unbound.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.devices {
		d := &Device{slot: i}
		d.cond = sync.NewCond(&d.mu)
		r.devices[i] = d
	}
	return r
}

// Create binds a new session to the given device slot. Exactly one
// session may be bound to a slot at a time; a second Create before Close
// fails with ErrSlotBusy. Each call attempts a fresh bind.
func (r *Registry) Create(slot int) (*Session, error) {
	d, err := r.device(slot)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bound {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrSlotBusy)
	}

	s := newSession(d)
	d.bound = true
	d.sessionID = s.id

	log.Printf("[slot %d] session bound: %s", slot, s.id)
	return s, nil
}

// Open attaches a reader to the given device slot. Readers may attach
// before any session is bound; they block in Next until frames arrive.
func (r *Registry) Open(slot int) (*Reader, error) {
	d, err := r.device(slot)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.readers++
	d.lastActive = time.Now()
	d.cond.Broadcast()
	d.mu.Unlock()

	return &Reader{dev: d}, nil
}

// MarkUnsupported flags a slot whose output backend is unavailable in
// this build or on this platform. Every subsequent SendFrame on the slot
// reports ErrUnsupportedBackend.
func (r *Registry) MarkUnsupported(slot int, cause error) error {
	d, err := r.device(slot)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.backendErr = cause
	d.mu.Unlock()
	return nil
}

// SetOutput sets the device's expected output resolution, the target of
// linear-scale transfers. Zero dimensions leave frames at source size.
func (r *Registry) SetOutput(slot, width, height int) error {
	d, err := r.device(slot)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.outWidth, d.outHeight = width, height
	d.mu.Unlock()
	return nil
}

// Status returns a snapshot of every device slot.
func (r *Registry) Status() []DeviceStatus {
	out := make([]DeviceStatus, 0, MaxDevices)
	for _, d := range r.devices {
		out = append(out, d.status())
	}
	return out
}

func (r *Registry) device(slot int) (*Device, error) {
	if slot < 0 || slot >= MaxDevices {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrSlotRange)
	}
	return r.devices[slot], nil
}

// Device is one virtual capture device surface: a single-slot mailbox
// shared between the producing session and independent consumers. Frames
// are published atomically under the device mutex, so a reader never
// observes a torn frame; the overwrite policy keeps backlog at one frame.
type Device struct {
	slot int

	mu   sync.Mutex
	cond *sync.Cond

	bound      bool
	sessionID  string
	backendErr error

	outWidth  int
	outHeight int

	pending    *PublishedFrame // unconsumed published frame, nil once read
	seq        uint64
	published  uint64
	skipped    uint64
	dropped    uint64
	readers    int
	lastActive time.Time // last consume or reader attach
}

// Slot returns the device ordinal.
func (d *Device) Slot() int { return d.slot }

// publish makes frame visible on the surface, waiting up to timeout for
// a consumer to be ready. Called by the bound session with its own
// mutex held, so producer calls are serialized.
func (d *Device) publish(frame *PublishedFrame, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)

	d.mu.Lock()
	defer d.mu.Unlock()

	for d.readers == 0 {
		if !d.waitUntil(deadline) {
			d.dropped++
			return WarningInactive
		}
	}

	skip := false
	if d.pending != nil {
		// Consumer attached but stalled past the timeout window: drop
		// the incoming frame rather than churn the mailbox.
		if time.Since(d.lastActive) >= timeout {
			d.dropped++
			return WarningInactive
		}
		skip = true
		d.skipped++
	}

	d.seq++
	frame.Seq = d.seq
	d.pending = frame
	d.published++
	d.cond.Broadcast()

	if skip {
		return WarningFrameSkip
	}
	return Success
}

// waitUntil blocks on the device condition until woken or the deadline
// passes. Returns false once the deadline is reached. Caller holds d.mu.
func (d *Device) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	t := time.AfterFunc(remaining, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	d.cond.Wait()
	t.Stop()

	return time.Now().Before(deadline)
}

// release unbinds the session and clears backend buffers. Readers stay
// attached; the slot is free for a fresh Create.
func (d *Device) release(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.bound || d.sessionID != sessionID {
		return
	}
	d.bound = false
	d.sessionID = ""
	d.pending = nil
	d.cond.Broadcast()

	log.Printf("[slot %d] session released: %s", d.slot, sessionID)
}

func (d *Device) status() DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DeviceStatus{
		Slot:        d.slot,
		Bound:       d.bound,
		SessionID:   d.sessionID,
		Readers:     d.readers,
		Published:   d.published,
		Skipped:     d.skipped,
		Dropped:     d.dropped,
		OutWidth:    d.outWidth,
		OutHeight:   d.outHeight,
		Unsupported: d.backendErr != nil,
	}
	if !d.lastActive.IsZero() {
		st.LastActive = d.lastActive.UnixMilli()
	}
	return st
}

// DeviceStatus is a point-in-time snapshot of one device slot.
type DeviceStatus struct {
	Slot        int    `json:"slot"`
	Bound       bool   `json:"bound"`
	SessionID   string `json:"session_id,omitempty"`
	Readers     int    `json:"readers"`
	Published   uint64 `json:"published"`
	Skipped     uint64 `json:"skipped"`
	Dropped     uint64 `json:"dropped"`
	OutWidth    int    `json:"out_width,omitempty"`
	OutHeight   int    `json:"out_height,omitempty"`
	Unsupported bool   `json:"unsupported,omitempty"`
	LastActive  int64  `json:"last_active,omitempty"`
}

// Reader consumes published frames from a device surface. A reader is
// driven by a single goroutine; multiple readers on one device compete
// for frames (the surface is a mailbox, not a broadcast).
type Reader struct {
	dev    *Device
	closed bool // guarded by dev.mu
}

// Next blocks until a frame is published or the timeout elapses.
// Returns (nil, false) on timeout or after Close.
func (r *Reader) Next(timeout time.Duration) (*PublishedFrame, bool) {
	deadline := time.Now().Add(timeout)
	d := r.dev

	d.mu.Lock()
	defer d.mu.Unlock()

	for d.pending == nil && !r.closed {
		if !d.waitUntil(deadline) {
			return nil, false
		}
	}
	if r.closed {
		return nil, false
	}

	frame := d.pending
	d.pending = nil
	d.lastActive = time.Now()
	d.cond.Broadcast()
	return frame, true
}

// Close detaches the reader. Idempotent.
func (r *Reader) Close() {
	d := r.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	d.readers--
	d.cond.Broadcast()
}
