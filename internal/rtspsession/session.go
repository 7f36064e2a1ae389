package rtspsession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/fluxvision/ingest/internal/nal"
)

// Config describes one camera's RTSP endpoints and connection policy.
type Config struct {
	MainURL    string
	SubURL     string // empty if the camera has no sub stream
	Username   string
	Password   string
	Transport  Transport
	Timeout    time.Duration
	LowLatency bool

	AutoReconnect       bool
	MaxReconnectAttempts int // 0 = unlimited
	Backoff             BackoffStrategy
}

func (c Config) urlFor(profile Profile) string {
	if profile == ProfileSub && c.SubURL != "" {
		return c.SubURL
	}
	return c.MainURL
}

// NalCallback receives depacketized NAL units as they arrive. It runs on
// the session's internal receive goroutine and must not block.
type NalCallback func(units []nal.Unit)

// Session owns one camera's RTSP connection. It is not safe for concurrent
// Connect/Disconnect calls, but GetState/GetStats/GetCurrentProfile may be
// called from any goroutine at any time.
type Session struct {
	id     string
	cfg    Config
	onNal  NalCallback
	codec  nal.Codec
	stats  *statsTracker

	mu      sync.Mutex
	state   State
	profile Profile
	client  *gortsplib.Client
	media   *description.Media
	forma   *format.H264
	cancel  context.CancelFunc
}

// New creates a session for one camera. onNal is invoked once for each NAL
// unit depacketized from an incoming RTP packet.
func New(cfg Config, onNal NalCallback) (*Session, error) {
	if cfg.MainURL == "" {
		return nil, fmt.Errorf("rtspsession: MainURL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		onNal:   onNal,
		codec:   nal.CodecH264,
		stats:   newStatsTracker(),
		state:   StateDisconnected,
		profile: ProfileMain,
	}, nil
}

// Connect negotiates the session description, selects the H.264 media, and
// starts playing. If cfg.AutoReconnect is set, Connect blocks until either
// the first connection attempt succeeds, ctx is cancelled, or
// MaxReconnectAttempts is exhausted; once connected the session reconnects
// on its own in the background when the stream drops.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	connect := func(ctx context.Context) error {
		return s.dialOnce(ctx, s.currentProfile())
	}

	if !s.cfg.AutoReconnect {
		if err := connect(ctx); err != nil {
			s.setState(StateError)
			return err
		}
		s.setState(StateConnected)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	err := runWithReconnect(runCtx, connect, s.cfg.MaxReconnectAttempts, s.cfg.Backoff, func(attempt int, _ error) {
		s.setState(StateReconnecting)
		s.stats.onReconnect()
	})
	if err != nil {
		s.setState(StateError)
		return err
	}
	s.setState(StateConnected)

	go s.watch(runCtx)
	return nil
}

// watch blocks on the underlying client until it errors out or ctx is
// cancelled, then re-enters the reconnect loop so a dropped camera comes
// back on its own without camerasession having to notice the gap.
func (s *Session) watch(ctx context.Context) {
	for {
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client == nil {
			return
		}

		err := client.Wait()
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err == nil {
			return
		}
		slog.Error("rtspsession: stream dropped", "session", s.id, "error", err, "category", Classify(err))

		s.setState(StateReconnecting)
		connect := func(ctx context.Context) error { return s.dialOnce(ctx, s.currentProfile()) }
		if rerr := runWithReconnect(ctx, connect, s.cfg.MaxReconnectAttempts, s.cfg.Backoff, func(int, error) { s.stats.onReconnect() }); rerr != nil {
			s.setState(StateError)
			return
		}
		s.setState(StateConnected)
	}
}

func (s *Session) dialOnce(ctx context.Context, profile Profile) error {
	rawURL := s.cfg.urlFor(profile)
	u, err := base.ParseURL(withCredentials(rawURL, s.cfg.Username, s.cfg.Password))
	if err != nil {
		return fmt.Errorf("rtspsession: invalid url %q: %w", rawURL, err)
	}

	client := &gortsplib.Client{
		Transport:      transportPtr(s.cfg.Transport),
		ReadTimeout:    s.cfg.Timeout,
		WriteTimeout:   s.cfg.Timeout,
	}

	if err := client.Start(u.Scheme, u.Host); err != nil {
		return fmt.Errorf("rtspsession: start: %w", err)
	}

	// Publish the client as soon as it's dialed, not only once Describe/
	// Setup/Play finish, so Interrupt (or Disconnect) can close its
	// underlying connection and unblock one of those calls immediately
	// instead of waiting out cfg.Timeout.
	s.mu.Lock()
	prevClient := s.client
	s.client = client
	s.mu.Unlock()
	if prevClient != nil {
		prevClient.Close()
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		s.closeFailedClient(client)
		return fmt.Errorf("rtspsession: describe: %w", err)
	}

	var forma *format.H264
	media := desc.FindFormat(&forma)
	if media == nil {
		s.closeFailedClient(client)
		return fmt.Errorf("rtspsession: no H.264 media in stream description")
	}

	rtpDec, err := forma.CreateDecoder()
	if err != nil {
		s.closeFailedClient(client)
		return fmt.Errorf("rtspsession: create RTP decoder: %w", err)
	}

	if _, err := client.Setup(desc.BaseURL, media, 0, 0); err != nil {
		s.closeFailedClient(client)
		return fmt.Errorf("rtspsession: setup: %w", err)
	}

	client.OnPacketRTP(media, forma, func(pkt *rtp.Packet) {
		s.stats.onPacket(pkt.SequenceNumber, len(pkt.Payload))

		nalus, err := rtpDec.Decode(pkt)
		if err != nil {
			return // incomplete fragmentation unit, wait for the rest
		}
		pts := time.Now().UnixMicro()
		for _, raw := range nalus {
			if s.onNal == nil {
				continue
			}
			units := nal.ParsePacket(s.codec, framed(raw), pts)
			if len(units) > 0 {
				s.onNal(units)
			}
		}
	})

	if _, err := client.Play(nil); err != nil {
		s.closeFailedClient(client)
		return fmt.Errorf("rtspsession: play: %w", err)
	}

	s.mu.Lock()
	s.media = media
	s.forma = forma
	s.profile = profile
	s.mu.Unlock()

	return nil
}

// closeFailedClient closes client and clears it from s.client if it is
// still the published one, so a failed dial attempt never leaves a dead
// client pointer behind for Interrupt or Disconnect to trip over.
func (s *Session) closeFailedClient(client *gortsplib.Client) {
	s.mu.Lock()
	if s.client == client {
		s.client = nil
	}
	s.mu.Unlock()
	client.Close()
}

// withCredentials embeds a username/password into a bare rtsp:// URL so
// gortsplib's Basic/Digest auth negotiation can pick them up from the
// parsed URL, the same way a browser-style rtsp URL carries them.
func withCredentials(rawURL, user, pass string) string {
	if user == "" {
		return rawURL
	}
	const scheme = "rtsp://"
	if len(rawURL) <= len(scheme) || rawURL[:len(scheme)] != scheme {
		return rawURL
	}
	rest := rawURL[len(scheme):]
	if pass != "" {
		return scheme + user + ":" + pass + "@" + rest
	}
	return scheme + user + "@" + rest
}

// framed re-attaches an Annex-B start code to a bare NAL unit emitted by
// gortsplib's RTP depacketizer, since internal/nal expects Annex-B framing.
func framed(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+4)
	out = append(out, 0, 0, 0, 1)
	out = append(out, raw...)
	return out
}

func transportPtr(t Transport) *gortsplib.Transport {
	gt := gortsplib.TransportTCP
	if t == TransportUDP {
		gt = gortsplib.TransportUDP
	}
	return &gt
}

// Interrupt aborts whichever RTSP call is currently in flight — connecting,
// describing, setting up, or blocked reading the stream — by closing its
// underlying connection immediately, rather than waiting out cfg.Timeout.
// Unlike Disconnect, it does not cancel the reconnect loop: a reconnect in
// progress simply fails its current attempt and moves on to the next one
// at the backoff policy's pace. Callers that don't need sub-timeout
// shutdown latency are not required to call it.
func (s *Session) Interrupt() {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// Disconnect tears down the RTSP connection and stops any in-flight
// reconnect loop.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}
	s.setState(StateDisconnected)
}

// SwitchStream tears down the current connection and reconnects to the
// other stream profile, if the camera was configured with a sub URL.
// Unlike quality changes, which only resize the decoder's surface pool, this
// renegotiates the RTSP session against a different URL entirely.
func (s *Session) SwitchStream(ctx context.Context, profile Profile) error {
	if profile == ProfileSub && s.cfg.SubURL == "" {
		return fmt.Errorf("rtspsession: camera has no sub stream configured")
	}
	return s.dialOnce(ctx, profile)
}

// GetCurrentProfile reports which stream (main or sub) is currently active.
func (s *Session) GetCurrentProfile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) currentProfile() Profile {
	return s.GetCurrentProfile()
}

// GetState reports the current connection lifecycle state.
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

// GetStats returns a snapshot of connection statistics.
func (s *Session) GetStats() Stats {
	return s.stats.snapshot()
}

// GetExtradata returns the SPS/PPS units advertised out-of-band in the SDP,
// before any RTP packet has arrived. Returns nil if not yet connected.
//
// gortsplib's SDP parsing already splits sprop-parameter-sets into bare SPS
// and PPS byte slices, so this always takes nal.ParseExtradata's Annex-B
// path; the AVCDecoderConfigurationRecord path it also recognises exists
// for callers that source extradata from a container (MP4/MKV demux) rather
// than live RTSP, and is exercised directly by the nal package's own tests.
func (s *Session) GetExtradata() []nal.Unit {
	s.mu.Lock()
	forma := s.forma
	s.mu.Unlock()
	if forma == nil {
		return nil
	}

	var units []nal.Unit
	if len(forma.SPS) > 0 {
		units = append(units, nal.ParseExtradata(nal.CodecH264, framed(forma.SPS))...)
	}
	if len(forma.PPS) > 0 {
		units = append(units, nal.ParseExtradata(nal.CodecH264, framed(forma.PPS))...)
	}
	return units
}

// GetStreamInfo returns the negotiated width, height, and framerate read
// from the connected stream's SPS. ok is false if not yet connected or if
// the advertised SPS could not be parsed, in which case the caller should
// fall back to its own configured defaults.
func (s *Session) GetStreamInfo() (StreamInfo, bool) {
	for _, u := range s.GetExtradata() {
		if (u.Type == nal.TypeSPS || u.Type == nal.TypeHEVCSPS) && u.Width > 0 && u.Height > 0 {
			return StreamInfo{Width: u.Width, Height: u.Height, Framerate: u.Framerate}, true
		}
	}
	return StreamInfo{}, false
}

// ID returns this session's unique identifier, used for log correlation.
func (s *Session) ID() string {
	return s.id
}
