package rtspsession

import (
	"sync"
	"time"
)

// statsTracker accumulates per-connection counters from individual RTP
// packet arrivals and exposes a Stats snapshot. It is owned by a single
// Session and guarded by its own mutex since the RTP receive callback runs
// on a goroutine internal to gortsplib, separate from whatever goroutine
// calls Stats().
type statsTracker struct {
	mu sync.Mutex

	packetsReceived uint64
	packetsLost     uint64
	bytesReceived   uint64
	reconnectCount  int
	startedAt       time.Time

	haveSeq  bool
	lastSeq  uint16
	bitrate  float64 // bits/sec, exponential moving average
	lastTick time.Time
	tickBits uint64
}

const bitrateEMAWeight = 0.9 // weight given to the running average each packet

func newStatsTracker() *statsTracker {
	return &statsTracker{startedAt: time.Now()}
}

// onPacket records one received RTP packet. seq is the RTP sequence number;
// gaps in the sequence (accounting for uint16 wraparound) are counted as
// lost packets, mirroring how the original FFmpeg-based client derived
// packet loss from sequence discontinuities.
func (s *statsTracker) onPacket(seq uint16, payloadBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsReceived++
	s.bytesReceived += uint64(payloadBytes)
	s.tickBits += uint64(payloadBytes) * 8

	if s.haveSeq {
		gap := int(seq) - int(s.lastSeq)
		if gap < 0 {
			gap += 1 << 16
		}
		if gap > 1 {
			s.packetsLost += uint64(gap - 1)
		}
	}
	s.haveSeq = true
	s.lastSeq = seq

	now := time.Now()
	if s.lastTick.IsZero() {
		s.lastTick = now
		return
	}
	elapsed := now.Sub(s.lastTick)
	if elapsed <= 0 {
		return
	}
	instant := float64(s.tickBits) / elapsed.Seconds()
	s.bitrate = s.bitrate*bitrateEMAWeight + instant*(1-bitrateEMAWeight)
	s.tickBits = 0
	s.lastTick = now
}

func (s *statsTracker) onReconnect() {
	s.mu.Lock()
	s.reconnectCount++
	s.mu.Unlock()
}

func (s *statsTracker) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.packetsReceived + s.packetsLost
	lossRate := 0.0
	if total > 0 {
		lossRate = float64(s.packetsLost) / float64(total)
	}

	return Stats{
		PacketsReceived: s.packetsReceived,
		PacketsLost:     s.packetsLost,
		BytesReceived:   s.bytesReceived,
		PacketLossRate:  lossRate,
		BitrateBps:      s.bitrate,
		ReconnectCount:  s.reconnectCount,
		Uptime:          time.Since(s.startedAt),
	}
}
