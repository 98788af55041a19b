package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// StandardEngine is the portable Engine built on strings.Fields and strconv.
type StandardEngine struct{}

func (StandardEngine) Name() string { return "standard" }

// ParseCPU parses "cpu  <user> <nice> <system> <idle> <iowait> <irq> <softirq> ...".
// Any malformed line yields the zero CpuCounters.
func (StandardEngine) ParseCPU(line string) CpuCounters {
	fields := strings.Fields(line)
	if len(fields) < 8 || !strings.HasPrefix(fields[0], "cpu") {
		return CpuCounters{}
	}
	var v [7]uint64
	for i := range v {
		n, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return CpuCounters{}
		}
		v[i] = n
	}
	return cpuFromFields(v)
}

// ParseMemory extracts the /proc/meminfo keys we care about. Missing keys stay
// zero and lines whose value is not an integer are ignored.
func (StandardEngine) ParseMemory(block string) MemoryCounters {
	var m MemoryCounters
	for _, line := range strings.Split(block, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		m.set(strings.TrimSuffix(fields[0], ":"), v)
	}
	return m
}

// ParseTemperature converts a thermal zone reading in millidegrees to Celsius.
func (StandardEngine) ParseTemperature(s string) float64 {
	milli, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return float64(milli) / 1000
}

// ParseInterfaces parses /proc/net/dev rows. Header rows and rows with fewer
// than 16 counters or a non-numeric byte/packet/error/drop column are skipped.
func (StandardEngine) ParseInterfaces(text string, ts int64) []InterfaceCounters {
	var out []InterfaceCounters
	for _, line := range strings.Split(text, "\n") {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		values := strings.Fields(line[colon+1:])
		if len(values) < netDevColumns {
			continue
		}
		var cols [netDevColumns]uint64
		ok := true
		for _, idx := range netDevUsedColumns {
			n, err := strconv.ParseUint(values[idx], 10, 64)
			if err != nil {
				ok = false
				break
			}
			cols[idx] = n
		}
		if !ok {
			continue
		}
		out = append(out, interfaceFromColumns(strings.TrimSpace(line[:colon]), cols, ts))
	}
	return out
}

func (StandardEngine) CPUUsagePercent(previous, current CpuCounters) float64 {
	return CPUUsagePercent(previous, current)
}

func (StandardEngine) FormatCPU(pct float64) string {
	return fmt.Sprintf("CPU: %.1f%%", pct)
}

func (StandardEngine) FormatRAM(usedMb, totalMb int64) string {
	return fmt.Sprintf("RAM: %d/%d MB", usedMb, totalMb)
}

func (StandardEngine) FormatSpeed(bytesPerSec int64) string {
	switch {
	case bytesPerSec < kib:
		return fmt.Sprintf("%d B/s", bytesPerSec)
	case bytesPerSec < mib:
		return fmt.Sprintf("%.1f KB/s", float64(bytesPerSec)/kib)
	case bytesPerSec < gib:
		return fmt.Sprintf("%.2f MB/s", float64(bytesPerSec)/mib)
	default:
		return fmt.Sprintf("%.2f GB/s", float64(bytesPerSec)/gib)
	}
}

func (StandardEngine) FormatMbps(mbps float64) string {
	mbps = SanitizeValue(mbps)
	switch {
	case mbps < 0.01:
		return "0 Mbps"
	case mbps < 1:
		return fmt.Sprintf("%.2f Mbps", mbps)
	case mbps < 100:
		return fmt.Sprintf("%.1f Mbps", mbps)
	case mbps < 1000:
		return fmt.Sprintf("%.0f Mbps", mbps)
	default:
		return fmt.Sprintf("%.2f Gbps", mbps/1000)
	}
}

const (
	kib = 1024
	mib = 1024 * 1024
	gib = 1024 * 1024 * 1024
)

// /proc/net/dev has 8 receive and 8 transmit columns per interface.
const netDevColumns = 16

var netDevUsedColumns = [...]int{0, 1, 2, 3, 8, 9, 10, 11}

func interfaceFromColumns(name string, c [netDevColumns]uint64, ts int64) InterfaceCounters {
	return InterfaceCounters{
		Name:      name,
		RxBytes:   c[0],
		RxPackets: c[1],
		RxErrors:  c[2],
		RxDropped: c[3],
		TxBytes:   c[8],
		TxPackets: c[9],
		TxErrors:  c[10],
		TxDropped: c[11],
		Timestamp: ts,
	}
}

func cpuFromFields(v [7]uint64) CpuCounters {
	return CpuCounters{
		User:    v[0],
		Nice:    v[1],
		System:  v[2],
		Idle:    v[3],
		IOWait:  v[4],
		IRQ:     v[5],
		SoftIRQ: v[6],
	}
}

func (m *MemoryCounters) set(key string, v uint64) {
	switch key {
	case "MemTotal":
		m.TotalKb = v
	case "MemFree":
		m.FreeKb = v
	case "MemAvailable":
		m.AvailableKb = v
	case "Buffers":
		m.BuffersKb = v
	case "Cached":
		m.CachedKb = v
	}
}
