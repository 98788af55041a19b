package sampler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/jeffypooo/sysmetrics/internal/chart"
	"github.com/jeffypooo/sysmetrics/internal/config"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
	"github.com/jeffypooo/sysmetrics/internal/peak"
	"github.com/jeffypooo/sysmetrics/internal/window"
)

// Summary is what one Tick derived from its Reading.
type Summary struct {
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`

	CPUPercent  float64   `json:"cpu_percent"`
	CorePercent []float64 `json:"core_percent,omitempty"`

	RAMPercent float64 `json:"ram_percent"`
	RAMUsedMb  int64   `json:"ram_used_mb"`
	RAMTotalMb int64   `json:"ram_total_mb"`

	TemperatureC   float64 `json:"temperature_c"`
	HasTemperature bool    `json:"has_temperature"`

	Network metrics.Throughput `json:"network"`

	Text DisplayText `json:"text"`
}

// DisplayText holds the engine-formatted labels of a Summary.
type DisplayText struct {
	CPU     string `json:"cpu"`
	RAM     string `json:"ram"`
	Ingress string `json:"ingress"`
	Egress  string `json:"egress"`
	RxSpeed string `json:"rx_speed"`
	TxSpeed string `json:"tx_speed"`
}

// Session is one monitoring run: the baselines of the rate meters plus the
// chart, window and peak state they feed. Independent sessions share nothing.
type Session struct {
	source Source
	engine metrics.Engine
	logger *log.Logger

	Charts  *chart.Buffer
	Windows *window.Calculator
	Peaks   *peak.Tracker

	mu     sync.Mutex
	cpu    *metrics.CPUMeter
	cores  []*metrics.CPUMeter
	net    *metrics.ThroughputMeter
	primed bool

	latest atomic.Pointer[Summary]
}

// New builds a session around an already chosen source and engine.
func New(cfg *config.Config, src Source, engine metrics.Engine) *Session {
	charts := chart.NewBuffer(cfg.Chart.Capacity)
	charts.SetFPSFloor(cfg.FPS.Floor)
	peaks := peak.NewTracker(cfg.Peak.Window.Duration)
	peaks.SetFPSFloor(cfg.FPS.Floor)

	logger := log.New("sampler")
	logger.SetLevel(cfg.Level())

	return &Session{
		source:  src,
		engine:  engine,
		logger:  logger,
		Charts:  charts,
		Windows: window.NewCalculator(cfg.Window.Retention.Duration),
		Peaks:   peaks,
		cpu:     metrics.NewCPUMeter(),
		net:     metrics.NewThroughputMeter(),
	}
}

// Open selects the parsing engine once for the session's lifetime and picks a
// counter source for this host.
func Open(cfg *config.Config) *Session {
	engine := metrics.SelectEngine(cfg.FastPath)
	s := New(cfg, NewSource(cfg, engine), engine)
	s.logger.Infof("sampling with %s (fast path available: %t)", s.source.Name(), metrics.IsFastPathAvailable())
	return s
}

func (s *Session) Engine() metrics.Engine { return s.engine }

func (s *Session) Source() Source { return s.source }

func (s *Session) Logger() *log.Logger { return s.logger }

// Tick reads the source once and pushes the derived values. The first tick of
// a session only establishes the CPU and network baselines, so no artificial
// zero is recorded for them.
func (s *Session) Tick(ctx context.Context) (Summary, error) {
	r, err := s.source.Read(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("error reading counters from %s: %w", s.source.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := r.Timestamp
	sum := Summary{
		Timestamp:      ts,
		Source:         s.source.Name(),
		CPUPercent:     s.cpu.Update(r.CPU),
		CorePercent:    s.updateCores(r.Cores),
		RAMPercent:     r.Memory.UsagePercent(),
		RAMUsedMb:      r.Memory.UsedMb(),
		RAMTotalMb:     r.Memory.TotalMb(),
		TemperatureC:   r.TemperatureC,
		HasTemperature: r.HasTemperature,
		Network:        s.net.Update(r.Network),
	}
	sum.Text = DisplayText{
		CPU:     s.engine.FormatCPU(sum.CPUPercent),
		RAM:     s.engine.FormatRAM(sum.RAMUsedMb, sum.RAMTotalMb),
		Ingress: s.engine.FormatMbps(sum.Network.RxMbps),
		Egress:  s.engine.FormatMbps(sum.Network.TxMbps),
		RxSpeed: s.engine.FormatSpeed(int64(sum.Network.RxBytesPerSec)),
		TxSpeed: s.engine.FormatSpeed(int64(sum.Network.TxBytesPerSec)),
	}

	if s.primed {
		s.record(metrics.MetricCPU, sum.CPUPercent, sum.CPUPercent, ts)
		s.record(metrics.MetricNetworkIngress, sum.Network.RxMbps, sum.Network.RxMbps, ts)
		s.record(metrics.MetricNetworkEgress, sum.Network.TxMbps, sum.Network.TxMbps, ts)
	}
	s.record(metrics.MetricRAM, sum.RAMPercent, float64(sum.RAMUsedMb), ts)
	if r.HasTemperature {
		s.record(metrics.MetricTemperature, r.TemperatureC, r.TemperatureC, ts)
	}
	s.primed = true

	s.latest.Store(&sum)
	s.logger.Debugf("tick %s %s %s", sum.Text.CPU, sum.Text.RAM, sum.Network)
	return sum, nil
}

// record pushes value to the chart and window and peakValue to the tracker.
// They differ for RAM, whose peak is reported in megabytes.
func (s *Session) record(m metrics.MetricType, value, peakValue float64, ts int64) {
	s.Charts.Push(m, value, ts)
	s.Windows.AddSample(m, value, ts)
	s.Peaks.AddValue(m, peakValue, ts)
}

func (s *Session) updateCores(cores []metrics.CpuCounters) []float64 {
	if len(cores) != len(s.cores) {
		// hotplug or first read: start every core over
		s.cores = make([]*metrics.CPUMeter, len(cores))
		for i := range s.cores {
			s.cores[i] = metrics.NewCPUMeter()
		}
	}
	if len(cores) == 0 {
		return nil
	}
	out := make([]float64, len(cores))
	for i, c := range cores {
		out[i] = s.cores[i].Update(c)
	}
	return out
}

// RecordFPS feeds a host-measured frame rate into the session.
func (s *Session) RecordFPS(fps float64, ts int64) {
	s.record(metrics.MetricFPS, fps, fps, ts)
}

// Latest returns the summary of the most recent successful Tick.
func (s *Session) Latest() (Summary, bool) {
	if p := s.latest.Load(); p != nil {
		return *p, true
	}
	return Summary{}, false
}

// Reset starts the session over: baselines are dropped and the chart, window
// and peak components are emptied in place.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu.Reset()
	s.cores = nil
	s.net.Reset()
	s.primed = false
	s.Charts.Reset()
	s.Windows.Reset()
	s.Peaks.Reset()
	s.latest.Store(nil)
	s.logger.Info("session reset")
}

// Run ticks immediately and then every interval until ctx is done. Read
// errors are logged and the loop keeps going.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if interval < config.MinSampleInterval {
		interval = config.MinSampleInterval
	}
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Errorf("error getting initial sample: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Errorf("error getting sample: %v", err)
			}
		}
	}
}
