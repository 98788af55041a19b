package metrics

import "sync"

// CPUUsagePercent is the busy share of the ticks elapsed between two samples,
// in [0, 100]. A zero previous sample means there is no baseline yet and a
// non-positive total delta means the counters were reset; both yield 0.
func CPUUsagePercent(previous, current CpuCounters) float64 {
	if previous.IsZero() {
		return 0
	}
	totalDelta := int64(current.Total()) - int64(previous.Total())
	if totalDelta <= 0 {
		return 0
	}
	idleDelta := int64(current.Idle) - int64(previous.Idle)
	pct := 100 * float64(totalDelta-idleDelta) / float64(totalDelta)
	return clamp(SanitizeValue(pct), 0, 100)
}

const bitsPerMegabit = 1024 * 1024

func BytesPerSecondToMbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / bitsPerMegabit
}

func MbpsToBytesPerSecond(mbps float64) float64 {
	return mbps * bitsPerMegabit / 8
}

// CPUMeter keeps the previous /proc/stat sample of one session.
type CPUMeter struct {
	mu   sync.Mutex
	prev CpuCounters
}

func NewCPUMeter() *CPUMeter {
	return &CPUMeter{}
}

// Update returns the usage since the previous call and makes cur the next
// baseline. The first call, and any call where the counters went backwards,
// returns 0.
func (m *CPUMeter) Update(cur CpuCounters) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.prev
	m.prev = cur
	if cur.Total() < prev.Total() {
		return 0
	}
	return CPUUsagePercent(prev, cur)
}

func (m *CPUMeter) Reset() {
	m.mu.Lock()
	m.prev = CpuCounters{}
	m.mu.Unlock()
}
