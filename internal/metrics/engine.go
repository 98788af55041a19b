package metrics

import (
	"strconv"
	"strings"

	"golang.org/x/sys/cpu"
)

// Engine parses raw counter text, derives CPU usage and formats rates for
// display. StandardEngine and FastEngine produce identical results for every
// input; FastEngine avoids allocations on the hot sampling path.
type Engine interface {
	Name() string

	ParseCPU(line string) CpuCounters
	ParseMemory(block string) MemoryCounters
	ParseTemperature(s string) float64
	ParseInterfaces(text string, ts int64) []InterfaceCounters

	CPUUsagePercent(previous, current CpuCounters) float64

	FormatCPU(pct float64) string
	FormatRAM(usedMb, totalMb int64) string
	FormatSpeed(bytesPerSec int64) string
	FormatMbps(mbps float64) string
}

var (
	_ Engine = StandardEngine{}
	_ Engine = FastEngine{}
)

// IsFastPathAvailable reports whether FastEngine can run on this host. Its
// eight-digit word conversion assumes little-endian lanes and 64-bit words.
func IsFastPathAvailable() bool {
	return !cpu.IsBigEndian && strconv.IntSize == 64
}

// SelectEngine returns FastEngine when preferred and supported, StandardEngine
// otherwise. Callers select once per session and keep the result.
func SelectEngine(preferFast bool) Engine {
	if preferFast && IsFastPathAvailable() {
		return FastEngine{}
	}
	return StandardEngine{}
}

// ParseCPUCores returns the per-core counters (cpu0, cpu1, ...) of a full
// /proc/stat body in file order. The aggregate "cpu" line is skipped.
func ParseCPUCores(e Engine, stat string) []CpuCounters {
	var cores []CpuCounters
	for _, line := range strings.Split(stat, "\n") {
		line = strings.TrimLeft(line, " \t")
		if len(line) < 4 || !strings.HasPrefix(line, "cpu") || line[3] < '0' || line[3] > '9' {
			continue
		}
		c := e.ParseCPU(line)
		if c.IsZero() {
			continue
		}
		cores = append(cores, c)
	}
	return cores
}

// FirstLine returns s up to the first newline.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
