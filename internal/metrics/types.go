package metrics

import (
	"fmt"
	"math"
)

type MetricType string

const (
	MetricCPU            MetricType = "cpu"
	MetricRAM            MetricType = "ram"
	MetricTemperature    MetricType = "temperature"
	MetricNetworkIngress MetricType = "network_ingress"
	MetricNetworkEgress  MetricType = "network_egress"
	MetricFPS            MetricType = "fps"
)

var allMetricTypes = []MetricType{
	MetricCPU,
	MetricRAM,
	MetricTemperature,
	MetricNetworkIngress,
	MetricNetworkEgress,
	MetricFPS,
}

// AllMetricTypes returns every known metric in display order.
func AllMetricTypes() []MetricType {
	out := make([]MetricType, len(allMetricTypes))
	copy(out, allMetricTypes)
	return out
}

// ParseMetricType maps an identifier such as "cpu" or "network_ingress" to a MetricType.
func ParseMetricType(s string) (MetricType, bool) {
	for _, m := range allMetricTypes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

func (m MetricType) DisplayName() string {
	switch m {
	case MetricCPU:
		return "CPU"
	case MetricRAM:
		return "RAM"
	case MetricTemperature:
		return "Temperature"
	case MetricNetworkIngress:
		return "Network ↓"
	case MetricNetworkEgress:
		return "Network ↑"
	case MetricFPS:
		return "FPS"
	}
	return string(m)
}

func (m MetricType) Unit() string {
	switch m {
	case MetricCPU, MetricRAM:
		return "%"
	case MetricTemperature:
		return "°C"
	case MetricNetworkIngress, MetricNetworkEgress:
		return "Mbps"
	case MetricFPS:
		return "fps"
	}
	return ""
}

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

// ColorName is the status color used by displays: green, yellow or red.
func (s Severity) ColorName() string {
	switch s {
	case SeverityLow:
		return "green"
	case SeverityMedium:
		return "yellow"
	case SeverityHigh:
		return "red"
	}
	return ""
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LOW":
		*s = SeverityLow
	case "MEDIUM":
		*s = SeverityMedium
	case "HIGH":
		*s = SeverityHigh
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// CpuCounters holds the cumulative tick counts of one /proc/stat cpu line.
// The zero value means "no baseline yet".
type CpuCounters struct {
	User    uint64 `json:"user"`
	Nice    uint64 `json:"nice"`
	System  uint64 `json:"system"`
	Idle    uint64 `json:"idle"`
	IOWait  uint64 `json:"iowait"`
	IRQ     uint64 `json:"irq"`
	SoftIRQ uint64 `json:"softirq"`
}

func (c CpuCounters) Total() uint64 {
	return c.User + c.Nice + c.System + c.Idle + c.IOWait + c.IRQ + c.SoftIRQ
}

// Active excludes idle and iowait.
func (c CpuCounters) Active() uint64 {
	return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ
}

func (c CpuCounters) IsZero() bool {
	return c == CpuCounters{}
}

type MemoryCounters struct {
	TotalKb     uint64 `json:"total_kb"`
	FreeKb      uint64 `json:"free_kb"`
	AvailableKb uint64 `json:"available_kb"`
	BuffersKb   uint64 `json:"buffers_kb"`
	CachedKb    uint64 `json:"cached_kb"`
}

// UsedKb is TotalKb - AvailableKb. Malformed input where available exceeds
// total yields a negative value rather than a wrapped one.
func (m MemoryCounters) UsedKb() int64 {
	return int64(m.TotalKb) - int64(m.AvailableKb)
}

func (m MemoryCounters) UsagePercent() float64 {
	if m.TotalKb == 0 {
		return 0
	}
	return float64(m.UsedKb()) / float64(m.TotalKb) * 100
}

func (m MemoryCounters) UsedMb() int64 {
	return m.UsedKb() / 1024
}

func (m MemoryCounters) TotalMb() int64 {
	return int64(m.TotalKb / 1024)
}

// InterfaceCounters is one /proc/net/dev row.
type InterfaceCounters struct {
	Name      string `json:"name"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
	Timestamp int64  `json:"timestamp"`
}

func (i InterfaceCounters) IsLoopback() bool {
	return i.Name == "lo"
}

type NetworkSnapshot struct {
	Interfaces   []InterfaceCounters `json:"interfaces"`
	TotalRxBytes uint64              `json:"total_rx_bytes"`
	TotalTxBytes uint64              `json:"total_tx_bytes"`
	Timestamp    int64               `json:"timestamp"`
}

// AggregateInterfaces sums the byte counters of every non-loopback interface.
// Loopback rows are dropped from the snapshot entirely.
func AggregateInterfaces(ifaces []InterfaceCounters, ts int64) NetworkSnapshot {
	snap := NetworkSnapshot{Timestamp: ts}
	for _, iface := range ifaces {
		if iface.IsLoopback() {
			continue
		}
		snap.Interfaces = append(snap.Interfaces, iface)
		snap.TotalRxBytes += iface.RxBytes
		snap.TotalTxBytes += iface.TxBytes
	}
	return snap
}

// Sample is a value stamped with milliseconds since the Unix epoch.
type Sample struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// SanitizeValue maps NaN and infinities to zero.
func SanitizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
