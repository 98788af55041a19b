package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/bytes"
)

// MinElapsed floors the interval between two network samples so back-to-back
// reads cannot blow up the rate.
const MinElapsed = 100 * time.Millisecond

// Throughput is the aggregate (non-loopback) network rate at one sample plus
// what the session has seen so far.
type Throughput struct {
	RxBytesPerSec float64 `json:"rx_bytes_per_sec"`
	TxBytesPerSec float64 `json:"tx_bytes_per_sec"`
	RxMbps        float64 `json:"rx_mbps"`
	TxMbps        float64 `json:"tx_mbps"`

	SessionRxBytes uint64 `json:"session_rx_bytes"`
	SessionTxBytes uint64 `json:"session_tx_bytes"`

	PeakRxMbps float64 `json:"peak_rx_mbps"`
	PeakRxTime int64   `json:"peak_rx_time"`
	PeakTxMbps float64 `json:"peak_tx_mbps"`
	PeakTxTime int64   `json:"peak_tx_time"`

	Timestamp int64 `json:"timestamp"`
}

func (t Throughput) String() string {
	return fmt.Sprintf("rx %.2f Mbps, tx %.2f Mbps (session rx %s, tx %s)",
		t.RxMbps, t.TxMbps,
		bytes.Format(int64(t.SessionRxBytes)), bytes.Format(int64(t.SessionTxBytes)))
}

// ThroughputMeter turns consecutive NetworkSnapshots into rates. It owns the
// session baseline; independent sessions use independent meters.
type ThroughputMeter struct {
	mu          sync.Mutex
	prev        NetworkSnapshot
	hasBaseline bool
	state       Throughput
}

func NewThroughputMeter() *ThroughputMeter {
	return &ThroughputMeter{}
}

// Update computes the rate since the previous snapshot. The first snapshot only
// establishes the baseline. If either direction's byte counter went backwards
// the snapshot becomes the new baseline and the rates are reported as 0.
func (m *ThroughputMeter) Update(cur NetworkSnapshot) Throughput {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Timestamp = cur.Timestamp
	m.state.RxBytesPerSec, m.state.TxBytesPerSec = 0, 0
	m.state.RxMbps, m.state.TxMbps = 0, 0

	prev, had := m.prev, m.hasBaseline
	m.prev, m.hasBaseline = cur, true
	if !had {
		return m.state
	}

	rxDelta := int64(cur.TotalRxBytes) - int64(prev.TotalRxBytes)
	txDelta := int64(cur.TotalTxBytes) - int64(prev.TotalTxBytes)
	if rxDelta < 0 || txDelta < 0 {
		return m.state
	}

	elapsed := time.Duration(cur.Timestamp-prev.Timestamp) * time.Millisecond
	if elapsed < MinElapsed {
		elapsed = MinElapsed
	}
	secs := elapsed.Seconds()

	s := &m.state
	s.RxBytesPerSec = float64(rxDelta) / secs
	s.TxBytesPerSec = float64(txDelta) / secs
	s.RxMbps = BytesPerSecondToMbps(s.RxBytesPerSec)
	s.TxMbps = BytesPerSecondToMbps(s.TxBytesPerSec)
	s.SessionRxBytes += uint64(rxDelta)
	s.SessionTxBytes += uint64(txDelta)
	if s.RxMbps > s.PeakRxMbps {
		s.PeakRxMbps, s.PeakRxTime = s.RxMbps, cur.Timestamp
	}
	if s.TxMbps > s.PeakTxMbps {
		s.PeakTxMbps, s.PeakTxTime = s.TxMbps, cur.Timestamp
	}
	return m.state
}

// Last returns the result of the most recent Update.
func (m *ThroughputMeter) Last() Throughput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ThroughputMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev = NetworkSnapshot{}
	m.hasBaseline = false
	m.state = Throughput{}
}
