package metrics

import (
	"strings"
	"testing"
)

func snapshot(rx, tx uint64, ts int64) NetworkSnapshot {
	return NetworkSnapshot{TotalRxBytes: rx, TotalTxBytes: tx, Timestamp: ts}
}

func TestThroughputMeter(t *testing.T) {
	m := NewThroughputMeter()

	first := m.Update(snapshot(1000, 2000, 10_000))
	if first.RxBytesPerSec != 0 || first.TxBytesPerSec != 0 {
		t.Fatalf("first sample should be zero, got %+v", first)
	}

	got := m.Update(snapshot(1000+262144, 2000+131072, 12_000))
	if got.RxBytesPerSec != 131072 || got.TxBytesPerSec != 65536 {
		t.Fatalf("rates = %v/%v", got.RxBytesPerSec, got.TxBytesPerSec)
	}
	if got.RxMbps != 1 || got.TxMbps != 0.5 {
		t.Fatalf("mbps = %v/%v", got.RxMbps, got.TxMbps)
	}
	if got.SessionRxBytes != 262144 || got.SessionTxBytes != 131072 {
		t.Fatalf("session totals = %d/%d", got.SessionRxBytes, got.SessionTxBytes)
	}
	if got.PeakRxMbps != 1 || got.PeakRxTime != 12_000 {
		t.Fatalf("peak rx = %v at %d", got.PeakRxMbps, got.PeakRxTime)
	}
	if !strings.Contains(got.String(), "rx 1.00 Mbps") {
		t.Fatalf("String() = %q", got.String())
	}
}

func TestThroughputMeterFloorsElapsed(t *testing.T) {
	m := NewThroughputMeter()
	m.Update(snapshot(0, 0, 5000))
	got := m.Update(snapshot(1000, 0, 5000))
	// same timestamp: elapsed is floored at 100ms
	if got.RxBytesPerSec != 10000 {
		t.Fatalf("RxBytesPerSec = %v, want 10000", got.RxBytesPerSec)
	}
}

func TestThroughputMeterCounterReset(t *testing.T) {
	m := NewThroughputMeter()
	m.Update(snapshot(10_000, 10_000, 1000))
	got := m.Update(snapshot(500, 20_000, 2000))
	if got.RxBytesPerSec != 0 || got.TxBytesPerSec != 0 {
		t.Fatalf("counter reset should emit zero, got %+v", got)
	}
	if got.SessionRxBytes != 0 || got.SessionTxBytes != 0 {
		t.Fatalf("session totals moved on reset: %+v", got)
	}
	got = m.Update(snapshot(1500, 21_000, 3000))
	if got.RxBytesPerSec != 1000 || got.TxBytesPerSec != 1000 {
		t.Fatalf("after new baseline = %+v", got)
	}
}

func TestThroughputMeterReset(t *testing.T) {
	m := NewThroughputMeter()
	m.Update(snapshot(0, 0, 0))
	m.Update(snapshot(1<<20, 1<<20, 1000))
	m.Reset()
	if m.Last() != (Throughput{}) {
		t.Fatalf("Last after Reset = %+v", m.Last())
	}
	if got := m.Update(snapshot(1<<30, 1<<30, 2000)); got.RxBytesPerSec != 0 {
		t.Fatalf("first sample after reset = %+v", got)
	}
}
