package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/video-system/go-virtual-capture/pkg/sink"
	"github.com/video-system/go-virtual-capture/pkg/source"
	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// Manager orchestrates the virtual device pipelines: it binds a session
// per configured slot, runs the frame source loop, and attaches the
// OS-facing sink to each device surface.
type Manager struct {
	cfg      *Config
	registry *vcam.Registry

	mu        sync.RWMutex
	pipelines map[int]*pipeline

	ctx    context.Context
	cancel context.CancelFunc
}

// pipeline is one configured device: session + source + sink + counters.
type pipeline struct {
	slot    int
	cfg     DeviceConfig
	session *vcam.Session
	src     source.Source
	snk     sink.Sink
	opts    vcam.TransferOptions

	mu       sync.Mutex
	counters map[string]uint64
	last     vcam.Result
	sent     uint64
}

// NewManager creates the registry and builds a pipeline per configured
// device. Sinks that cannot open on this platform mark their slot
// unsupported instead of failing the whole daemon.
func NewManager(cfg *Config) (*Manager, error) {
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}

	m := &Manager{
		cfg:       cfg,
		registry:  vcam.NewRegistry(),
		pipelines: make(map[int]*pipeline),
	}

	for _, dc := range cfg.Devices {
		p, err := m.newPipeline(dc)
		if err != nil {
			return nil, fmt.Errorf("device slot %d: %w", dc.Slot, err)
		}
		m.pipelines[dc.Slot] = p
		log.Printf("[slot %d] pipeline configured: %s -> %s", dc.Slot, dc.Source.Type, dc.Sink.Type)
	}

	return m, nil
}

func (m *Manager) newPipeline(dc DeviceConfig) (*pipeline, error) {
	opts, err := dc.Transfer.transferOptions()
	if err != nil {
		return nil, err
	}

	session, err := m.registry.Create(dc.Slot)
	if err != nil {
		return nil, err
	}

	if dc.Output.Width > 0 && dc.Output.Height > 0 {
		m.registry.SetOutput(dc.Slot, dc.Output.Width, dc.Output.Height)
	}

	src, ok := source.Get(dc.Source.Type)
	if !ok {
		session.Close()
		return nil, fmt.Errorf("unknown source type: %s", dc.Source.Type)
	}
	if err := src.Open(source.Config{
		Width:      dc.Source.Width,
		Height:     dc.Source.Height,
		Framerate:  dc.Source.Framerate,
		Format:     vcam.PixelFormat(dc.Source.Format),
		ColorSpace: vcam.ColorSpace(dc.Source.ColorSpace),
	}); err != nil {
		session.Close()
		return nil, fmt.Errorf("open source: %w", err)
	}

	p := &pipeline{
		slot:     dc.Slot,
		cfg:      dc,
		session:  session,
		src:      src,
		opts:     opts,
		counters: make(map[string]uint64),
		last:     -1,
	}

	snk, ok := sink.Get(dc.Sink.Type)
	if !ok {
		src.Close()
		session.Close()
		return nil, fmt.Errorf("unknown sink type: %s", dc.Sink.Type)
	}

	outW, outH := dc.Output.Width, dc.Output.Height
	if outW == 0 || outH == 0 {
		outW, outH = dc.Source.Width, dc.Source.Height
	}
	if err := snk.Open(sink.Config{
		Slot:      dc.Slot,
		Width:     outW,
		Height:    outH,
		Framerate: dc.Source.Framerate,
		Addr:      dc.Sink.Addr,
		Path:      dc.Sink.Path,
		Codec:     dc.Sink.Codec,
		Preset:    dc.Sink.Preset,
		Bitrate:   dc.Sink.Bitrate,
	}); err != nil {
		if errors.Is(err, sink.ErrNotSupported) {
			// Keep the pipeline; sends report an unsupported backend.
			m.registry.MarkUnsupported(dc.Slot, err)
			log.Printf("[slot %d] sink %s unavailable: %v", dc.Slot, dc.Sink.Type, err)
			return p, nil
		}
		src.Close()
		session.Close()
		return nil, fmt.Errorf("open sink: %w", err)
	}
	p.snk = snk

	return p, nil
}

// Registry exposes the device pool (for additional readers).
func (m *Manager) Registry() *vcam.Registry {
	return m.registry
}

// Start attaches sinks and launches the per-device send loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	log.Printf("Starting %d device pipeline(s)", len(m.pipelines))

	for slot, p := range m.pipelines {
		if p.snk != nil {
			reader, err := m.registry.Open(slot)
			if err != nil {
				return fmt.Errorf("open reader for slot %d: %w", slot, err)
			}
			if err := p.snk.Start(m.ctx, reader); err != nil {
				log.Printf("[slot %d] Warning: failed to start sink: %v", slot, err)
			}
		}
		go p.run(m.ctx)
	}

	return nil
}

// run is the producer loop: pull frames from the source and transfer
// them into the device at source cadence. Result-code transitions are
// logged once, not per frame.
func (p *pipeline) run(ctx context.Context) {
	for {
		frame, err := p.src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[slot %d] source error: %v", p.slot, err)
			}
			return
		}

		res := p.session.SendFrame(frame, p.opts)

		p.mu.Lock()
		p.counters[res.String()]++
		p.sent++
		changed := res != p.last
		p.last = res
		p.mu.Unlock()

		if changed && res != vcam.Success {
			log.Printf("[slot %d] transfer: %s", p.slot, res)
		}
	}
}

// Stop stops all pipelines
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	for _, p := range m.pipelines {
		if p.snk != nil {
			p.snk.Close()
		}
		p.src.Close()
		p.session.Close()
	}
	log.Printf("All pipelines stopped")
}

// Wait blocks until context is cancelled
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// GetStatus returns overall daemon status (implements api.Engine).
func (m *Manager) GetStatus() interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pipelines := make(map[int]PipelineStatus, len(m.pipelines))
	for slot, p := range m.pipelines {
		pipelines[slot] = p.status()
	}

	return Status{
		Devices:   m.registry.Status(),
		Pipelines: pipelines,
	}
}

// DeviceStatuses returns the raw device pool snapshot (implements api.Engine).
func (m *Manager) DeviceStatuses() interface{} {
	return m.registry.Status()
}

func (p *pipeline) status() PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	counters := make(map[string]uint64, len(p.counters))
	for k, v := range p.counters {
		counters[k] = v
	}

	st := PipelineStatus{
		SessionID: p.session.ID(),
		Source:    p.cfg.Source.Type,
		Sink:      p.cfg.Sink.Type,
		Sent:      p.sent,
		Results:   counters,
	}
	if p.sent > 0 {
		st.LastResult = p.last.String()
	}
	return st
}

// Status is the overall daemon status snapshot.
type Status struct {
	Devices   []vcam.DeviceStatus    `json:"devices"`
	Pipelines map[int]PipelineStatus `json:"pipelines"`
}

// PipelineStatus is per-device transfer telemetry.
type PipelineStatus struct {
	SessionID  string            `json:"session_id"`
	Source     string            `json:"source"`
	Sink       string            `json:"sink"`
	Sent       uint64            `json:"sent"`
	LastResult string            `json:"last_result,omitempty"`
	Results    map[string]uint64 `json:"results"`
}
