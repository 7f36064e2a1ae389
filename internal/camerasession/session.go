// Package camerasession owns the per-camera lifecycle: one RTSP
// connection, one bounded packet queue, one decoder, wired together and
// driven through a small state machine. It is the "CameraStream" layer
// that the coordinator and worker pools operate on; it knows nothing
// about other cameras.
package camerasession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxvision/ingest/internal/decoder"
	"github.com/fluxvision/ingest/internal/nal"
	"github.com/fluxvision/ingest/internal/queue"
	"github.com/fluxvision/ingest/internal/rtspsession"
)

// State is the camera's lifecycle phase.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateRunning
	StateError
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of one camera's runtime health.
type Stats struct {
	State          State
	CurrentFPS     int
	DroppedFrames  uint64
	DecodedFrames  uint64
	PacketsInQueue int
	BytesReceived  uint64
	LastFrameAt    time.Time
}

// Config describes a single camera.
type Config struct {
	ID       string
	MainURL  string
	SubURL   string
	Username string
	Password string

	Quality         decoder.Quality
	AutoReconnect   bool
	PacketQueueSize int // rounded up to a power of two, default 64 (~2s at 30fps)

	PreferHardwareDecode bool
	MaxWidth             int
	MaxHeight            int
	Codec                nal.Codec

	Backoff rtspsession.BackoffStrategy
}

// FrameCallback receives a decoded frame for one camera. It must not
// retain frame.Data past the call; see decoder.Frame's borrowed-reference
// contract.
type FrameCallback func(cameraID string, frame *decoder.Frame)

// Session wires one camera's RTSP connection, packet queue, and decoder
// together and drives them through the lifecycle state machine.
type Session struct {
	cfg     Config
	onFrame FrameCallback

	mu            sync.Mutex
	state         State
	rtsp          *rtspsession.Session
	dec           decoder.Decoder
	gpu           decoder.GPUContext // the worker this camera is pinned to, for decoder rebuilds after SwitchStream
	packetQueue   *queue.Queue
	droppedFrames uint64
	decodedFrames uint64
	bytesReceived uint64
	lastFrameAt   time.Time

	fpsMu             sync.Mutex
	framesSinceUpdate int
	currentFPS        int
	lastFPSUpdate     time.Time

	cancel context.CancelFunc
}

// New validates cfg and wires a camera's components, failing fast on any
// invalid configuration rather than discovering it mid-connection.
func New(cfg Config, onFrame FrameCallback) (*Session, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("camerasession: ID is required")
	}
	if cfg.MainURL == "" {
		return nil, fmt.Errorf("camerasession: MainURL is required for camera %q", cfg.ID)
	}
	if cfg.PacketQueueSize <= 0 {
		cfg.PacketQueueSize = 64
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1920
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 1080
	}
	if cfg.Codec == nal.CodecUnknown {
		cfg.Codec = nal.CodecH264
	}

	s := &Session{
		cfg:         cfg,
		onFrame:     onFrame,
		state:       StateStopped,
		packetQueue: queue.New(cfg.PacketQueueSize),
	}

	rtspCfg := rtspsession.Config{
		MainURL:       cfg.MainURL,
		SubURL:        cfg.SubURL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		AutoReconnect: cfg.AutoReconnect,
		Backoff:       cfg.Backoff,
	}
	rtsp, err := rtspsession.New(rtspCfg, s.onNalUnits)
	if err != nil {
		return nil, fmt.Errorf("camerasession: camera %q: %w", cfg.ID, err)
	}
	s.rtsp = rtsp

	return s, nil
}

// onNalUnits is the rtspsession.NalCallback: it queues every incoming NAL
// unit for the decode worker to pick up, dropping the oldest queued packet
// under sustained bursts rather than growing unbounded.
func (s *Session) onNalUnits(units []nal.Unit) {
	s.mu.Lock()
	s.bytesReceived += totalBytes(units)
	s.mu.Unlock()

	for _, u := range units {
		if s.packetQueue.Full() {
			s.mu.Lock()
			s.droppedFrames++
			s.mu.Unlock()
		}
		s.packetQueue.PushOrDropOldest(queue.Packet{
			Data:     u.Data,
			PTS:      u.PTS,
			Keyframe: u.Keyframe,
		})
	}
}

func totalBytes(units []nal.Unit) uint64 {
	var n uint64
	for _, u := range units {
		n += uint64(len(u.Data))
	}
	return n
}

// Start connects the RTSP session, then builds the decoder against gpu
// (the GPUContext of the decode-pool worker this camera has been, or will
// be, pinned to, so the decoder's pipeline binds to that worker's device
// from construction rather than picking one independently) at the
// resolution the connection negotiated, falling back to the camera's
// static MaxWidth/MaxHeight if the stream's SPS couldn't be read. This
// drives the Stopped -> Connecting -> Running/Error transition. A
// connection dropped after Start does not change this Session's State,
// which stays Running; when AutoReconnect is set, rtspsession's own
// reconnect loop re-establishes the connection. Start does not itself run
// the decode loop; the caller assigns
// DecodeLoop (and, optionally, Supervise) to a worker pool so that
// persistent per-camera work is owned by the pool, not by a goroutine this
// package spawns on its own.
func (s *Session) Start(ctx context.Context, gpu decoder.GPUContext) error {
	s.setState(StateConnecting)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.rtsp.Connect(runCtx); err != nil {
		s.setState(StateError)
		cancel()
		return fmt.Errorf("camerasession: camera %q: connect: %w", s.cfg.ID, err)
	}

	s.mu.Lock()
	s.gpu = gpu
	s.mu.Unlock()

	dec, err := s.buildDecoder(gpu)
	if err != nil {
		s.setState(StateError)
		s.rtsp.Disconnect()
		cancel()
		return fmt.Errorf("camerasession: camera %q: decoder init: %w", s.cfg.ID, err)
	}
	s.mu.Lock()
	s.dec = dec
	s.mu.Unlock()

	s.setState(StateRunning)
	return nil
}

// buildDecoder constructs the decoder at the negotiated stream resolution,
// reported by rtspsession off the connected stream's SPS, falling back to
// the camera's static MaxWidth/MaxHeight when negotiation info isn't
// available.
func (s *Session) buildDecoder(gpu decoder.GPUContext) (decoder.Decoder, error) {
	width, height := s.cfg.MaxWidth, s.cfg.MaxHeight
	if info, ok := s.rtsp.GetStreamInfo(); ok {
		width, height = info.Width, info.Height
	}

	return decoder.New(decoderKind(s.cfg.PreferHardwareDecode), decoder.Config{
		Codec:          s.cfg.Codec,
		Quality:        s.cfg.Quality,
		MaxWidth:       width,
		MaxHeight:      height,
		PreferHardware: s.cfg.PreferHardwareDecode,
		IsSubStream:    s.cfg.Quality == decoder.QualityThumbnail || s.cfg.Quality == decoder.QualityGridView,
		GPU:            gpu,
	})
}

func decoderKind(preferHardware bool) decoder.Kind {
	if preferHardware {
		return decoder.KindAuto
	}
	return decoder.KindSoftware
}

// DecodeLoop pulls queued packets and feeds them to the decoder one at a
// time until ctx is cancelled. It is meant to be handed to a decode pool
// worker, which owns it for the camera's entire lifetime so the camera
// always decodes against the same persistent GPU context.
func (s *Session) DecodeLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainQueue(ctx)
		}
	}
}

// Supervise polls this Session's own State every two seconds and triggers
// a reconnect attempt whenever it observes StateError, until ctx is
// cancelled. It is
// meant to be handed to a network pool worker, which owns it for the
// camera's entire lifetime.
func (s *Session) Supervise(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.GetState() == StateError {
				if err := s.Reconnect(ctx); err != nil {
					slog.Warn("camerasession: supervised reconnect failed", "camera", s.cfg.ID, "error", err)
				}
			}
		}
	}
}

func (s *Session) drainQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, ok := s.packetQueue.Pop()
		if !ok {
			return
		}
		s.decodeOne(pkt)
	}
}

func (s *Session) decodeOne(pkt queue.Packet) {
	s.mu.Lock()
	dec := s.dec
	s.mu.Unlock()
	if dec == nil {
		return
	}

	result, err := dec.Decode(pkt.Data)
	if err != nil {
		slog.Error("camerasession: decode error", "camera", s.cfg.ID, "error", err)
		return
	}
	if result.Status != decoder.StatusSuccess || result.Frame == nil {
		return
	}

	s.mu.Lock()
	s.decodedFrames++
	s.lastFrameAt = time.Now()
	s.mu.Unlock()
	s.tickFPS()

	if s.onFrame != nil {
		s.onFrame(s.cfg.ID, result.Frame)
	}
}

func (s *Session) tickFPS() {
	s.fpsMu.Lock()
	defer s.fpsMu.Unlock()
	s.framesSinceUpdate++
	now := time.Now()
	if s.lastFPSUpdate.IsZero() {
		s.lastFPSUpdate = now
		return
	}
	if elapsed := now.Sub(s.lastFPSUpdate); elapsed >= time.Second {
		s.currentFPS = int(float64(s.framesSinceUpdate) / elapsed.Seconds())
		s.framesSinceUpdate = 0
		s.lastFPSUpdate = now
	}
}

// Stop tears down the RTSP connection and decoder. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	dec := s.dec
	s.cancel = nil
	s.dec = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.rtsp != nil {
		s.rtsp.Disconnect()
	}
	if dec != nil {
		if err := dec.Close(); err != nil {
			slog.Warn("camerasession: decoder close error", "camera", s.cfg.ID, "error", err)
		}
	}
	s.setState(StateStopped)
}

// Reconnect forces a fresh RTSP connection attempt, used when an operator
// requests a manual retry rather than waiting on the automatic backoff.
func (s *Session) Reconnect(ctx context.Context) error {
	s.setState(StateReconnecting)
	s.rtsp.Disconnect()
	if err := s.rtsp.Connect(ctx); err != nil {
		s.setState(StateError)
		return fmt.Errorf("camerasession: camera %q: reconnect: %w", s.cfg.ID, err)
	}
	s.setState(StateRunning)
	return nil
}

// SetQuality records the new quality and resizes the decoder's surface
// pool to match, without tearing down the connection or pipeline. It does
// not change how often DecodeLoop decodes.
func (s *Session) SetQuality(q decoder.Quality) {
	s.mu.Lock()
	s.cfg.Quality = q
	dec := s.dec
	s.mu.Unlock()
	if dec != nil {
		dec.SetQuality(q)
	}
}

// SwitchStream renegotiates the RTSP session against the camera's other
// stream profile (main vs sub). This is a distinct operation from
// SetQuality: changing quality never implicitly changes which RTSP URL is
// in use. If the new stream negotiates a different resolution than the
// one the current decoder was built for, the decoder is torn down and
// rebuilt through the factory at the new resolution; a same-resolution
// switch leaves the decoder untouched.
func (s *Session) SwitchStream(ctx context.Context, profile rtspsession.Profile) error {
	if err := s.rtsp.SwitchStream(ctx, profile); err != nil {
		return err
	}

	info, ok := s.rtsp.GetStreamInfo()
	if !ok {
		return nil
	}

	s.mu.Lock()
	dec := s.dec
	gpu := s.gpu
	resized := dec != nil && (dec.Config().MaxWidth != info.Width || dec.Config().MaxHeight != info.Height)
	s.mu.Unlock()
	if !resized {
		return nil
	}

	newDec, err := s.buildDecoder(gpu)
	if err != nil {
		return fmt.Errorf("camerasession: camera %q: rebuild decoder after switch_stream: %w", s.cfg.ID, err)
	}
	s.mu.Lock()
	s.dec = newDec
	s.mu.Unlock()
	if dec != nil {
		if err := dec.Close(); err != nil {
			slog.Warn("camerasession: old decoder close error after switch_stream", "camera", s.cfg.ID, "error", err)
		}
	}
	return nil
}

// GetState returns the camera's current lifecycle state.
func (s *Session) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// GetStats returns a snapshot of this camera's runtime statistics.
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fpsMu.Lock()
	fps := s.currentFPS
	s.fpsMu.Unlock()

	return Stats{
		State:          s.state,
		CurrentFPS:     fps,
		DroppedFrames:  s.droppedFrames,
		DecodedFrames:  s.decodedFrames,
		PacketsInQueue: s.packetQueue.Len(),
		BytesReceived:  s.bytesReceived,
		LastFrameAt:    s.lastFrameAt,
	}
}

// ID returns the camera identifier this session was configured with.
func (s *Session) ID() string {
	return s.cfg.ID
}

// MemoryUsage reports the attached decoder's current GPU/system memory
// footprint. ok is false if no decoder has been built yet (Start was
// never called, or it failed before decoder.New returned).
func (s *Session) MemoryUsage() (decoder.MemoryStats, bool) {
	s.mu.Lock()
	dec := s.dec
	s.mu.Unlock()
	if dec == nil {
		return decoder.MemoryStats{}, false
	}
	return dec.MemoryUsage(), true
}
