package rtspsession

import "testing"

func TestStatsTrackerCountsPacketLossFromSequenceGaps(t *testing.T) {
	s := newStatsTracker()
	s.onPacket(100, 1000)
	s.onPacket(101, 1000)
	s.onPacket(104, 1000) // gap of 2 missing packets (102, 103)
	s.onPacket(105, 1000)

	snap := s.snapshot()
	if snap.PacketsReceived != 4 {
		t.Errorf("got PacketsReceived=%d, want 4", snap.PacketsReceived)
	}
	if snap.PacketsLost != 2 {
		t.Errorf("got PacketsLost=%d, want 2", snap.PacketsLost)
	}
	if snap.BytesReceived != 4000 {
		t.Errorf("got BytesReceived=%d, want 4000", snap.BytesReceived)
	}
}

func TestStatsTrackerHandlesSequenceWraparound(t *testing.T) {
	s := newStatsTracker()
	s.onPacket(65535, 100)
	s.onPacket(0, 100) // wraps around, no gap

	snap := s.snapshot()
	if snap.PacketsLost != 0 {
		t.Errorf("got PacketsLost=%d, want 0 across wraparound", snap.PacketsLost)
	}
}

func TestStatsTrackerReconnectCount(t *testing.T) {
	s := newStatsTracker()
	s.onReconnect()
	s.onReconnect()
	if got := s.snapshot().ReconnectCount; got != 2 {
		t.Errorf("got ReconnectCount=%d, want 2", got)
	}
}

func TestStatsTrackerLossRateZeroWithNoPackets(t *testing.T) {
	s := newStatsTracker()
	if got := s.snapshot().PacketLossRate; got != 0 {
		t.Errorf("got loss rate %v, want 0 with no packets received", got)
	}
}
