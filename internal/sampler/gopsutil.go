package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

// clockTicks converts gopsutil's CPU seconds back into USER_HZ ticks so the
// counters look like /proc/stat.
const clockTicks = 100

// GopsutilSource reads the same counters through gopsutil, for hosts without
// a Linux procfs.
type GopsutilSource struct {
	now func() time.Time
}

func NewGopsutilSource() *GopsutilSource {
	return &GopsutilSource{now: time.Now}
}

func (s *GopsutilSource) Name() string { return "gopsutil" }

func (s *GopsutilSource) Read(ctx context.Context) (Reading, error) {
	total, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return Reading{}, fmt.Errorf("error getting CPU times: %w", err)
	}
	if len(total) == 0 {
		return Reading{}, errors.New("error getting CPU times: no data")
	}
	perCore, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return Reading{}, fmt.Errorf("error getting per-core CPU times: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("error getting memory usage: %w", err)
	}

	nics, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return Reading{}, fmt.Errorf("error getting network usage: %w", err)
	}

	ts := s.now().UnixMilli()
	r := Reading{
		CPU: cpuFromTimes(total[0]),
		Memory: metrics.MemoryCounters{
			TotalKb:     vm.Total / 1024,
			FreeKb:      vm.Free / 1024,
			AvailableKb: vm.Available / 1024,
			BuffersKb:   vm.Buffers / 1024,
			CachedKb:    vm.Cached / 1024,
		},
		Timestamp: ts,
	}
	for _, c := range perCore {
		r.Cores = append(r.Cores, cpuFromTimes(c))
	}

	ifaces := make([]metrics.InterfaceCounters, 0, len(nics))
	for _, n := range nics {
		ifaces = append(ifaces, metrics.InterfaceCounters{
			Name:      n.Name,
			RxBytes:   n.BytesRecv,
			TxBytes:   n.BytesSent,
			RxPackets: n.PacketsRecv,
			TxPackets: n.PacketsSent,
			RxErrors:  n.Errin,
			TxErrors:  n.Errout,
			RxDropped: n.Dropin,
			TxDropped: n.Dropout,
			Timestamp: ts,
		})
	}
	r.Network = metrics.AggregateInterfaces(ifaces, ts)

	// sensors may return partial results together with a warning error
	temps, _ := sensors.SensorsTemperatures()
	if c, ok := pickTemperature(temps); ok {
		r.TemperatureC, r.HasTemperature = c, true
	}
	return r, nil
}

func cpuFromTimes(t cpu.TimesStat) metrics.CpuCounters {
	ticks := func(sec float64) uint64 {
		if sec <= 0 {
			return 0
		}
		return uint64(sec * clockTicks)
	}
	return metrics.CpuCounters{
		User:    ticks(t.User),
		Nice:    ticks(t.Nice),
		System:  ticks(t.System),
		Idle:    ticks(t.Idle),
		IOWait:  ticks(t.Iowait),
		IRQ:     ticks(t.Irq),
		SoftIRQ: ticks(t.Softirq),
	}
}

var preferredSensors = []string{"cpu", "coretemp", "k10temp", "soc", "thermal"}

// pickTemperature prefers a CPU-looking sensor and falls back to the first
// positive reading.
func pickTemperature(temps []sensors.TemperatureStat) (float64, bool) {
	for _, want := range preferredSensors {
		for _, t := range temps {
			if t.Temperature > 0 && strings.Contains(strings.ToLower(t.SensorKey), want) {
				return t.Temperature, true
			}
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 {
			return t.Temperature, true
		}
	}
	return 0, false
}
