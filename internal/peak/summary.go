package peak

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

type SummaryOptions struct {
	CPU         bool
	RAM         bool
	Temperature bool
	Network     bool
	FPS         bool

	// Location for peak times; nil means time.Local.
	Location *time.Location
}

func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{CPU: true, RAM: true, Temperature: true, Network: true}
}

// Summary renders the snapshot as a short multi-line report. RAM is expected
// in megabytes and network in Mbps. Temperature and FPS lines are omitted
// while their peak is zero.
func (s Snapshot) Summary(opts SummaryOptions) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	clock := func(ts int64) string {
		if ts <= 0 {
			return "--:--:--"
		}
		return time.UnixMilli(ts).In(loc).Format("15:04:05")
	}

	cpu := s.Get(metrics.MetricCPU)
	ram := s.Get(metrics.MetricRAM)
	temp := s.Get(metrics.MetricTemperature)
	in := s.Get(metrics.MetricNetworkIngress)
	out := s.Get(metrics.MetricNetworkEgress)
	fps := s.Get(metrics.MetricFPS)

	var b strings.Builder
	fmt.Fprintf(&b, "Peak stats (last %s)\n", time.Duration(s.WindowEnd-s.WindowStart)*time.Millisecond)
	if opts.CPU {
		fmt.Fprintf(&b, "CPU peak: %.1f%% (%s)\n", cpu.Peak, clock(cpu.PeakTime))
	}
	if opts.RAM {
		fmt.Fprintf(&b, "RAM peak: %.0fMB (%s)\n", ram.Peak, clock(ram.PeakTime))
	}
	if opts.Temperature && temp.Peak > 0 {
		fmt.Fprintf(&b, "Temp peak: %.1f°C (%s)\n", temp.Peak, clock(temp.PeakTime))
	}
	if opts.Network {
		fmt.Fprintf(&b, "Net peak: ↓%.1fMbps ↑%.1fMbps\n", in.Peak, out.Peak)
	}
	if opts.FPS && fps.Peak > 0 {
		fmt.Fprintf(&b, "FPS: %.0f-%.0f (avg: %.1f, drops: %d)\n", fps.Min, fps.Peak, fps.Average, s.FrameDrops)
	}
	fmt.Fprintf(&b, "Avg: CPU %.1f%% | RAM %.0fMB", cpu.Average, ram.Average)
	return b.String()
}
