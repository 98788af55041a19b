// Package sampler reads host counters on a schedule and feeds the derived
// values into the chart, window and peak components of a session.
package sampler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeffypooo/sysmetrics/internal/config"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

// procReadFile allows tests to stub reading procfs and sysfs.
var procReadFile = os.ReadFile

// Reading is one raw sample of every counter a Source provides.
type Reading struct {
	CPU            metrics.CpuCounters     `json:"cpu"`
	Cores          []metrics.CpuCounters   `json:"cores,omitempty"`
	Memory         metrics.MemoryCounters  `json:"memory"`
	TemperatureC   float64                 `json:"temperature_c"`
	HasTemperature bool                    `json:"has_temperature"`
	Network        metrics.NetworkSnapshot `json:"network"`
	Timestamp      int64                   `json:"timestamp"`
}

type Source interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
}

// ProcSource parses the Linux procfs text files with an Engine.
type ProcSource struct {
	engine      metrics.Engine
	procRoot    string
	thermalZone string
	now         func() time.Time
}

func NewProcSource(engine metrics.Engine, procRoot, thermalZone string) *ProcSource {
	return &ProcSource{
		engine:      engine,
		procRoot:    procRoot,
		thermalZone: thermalZone,
		now:         time.Now,
	}
}

func (s *ProcSource) Name() string { return "procfs/" + s.engine.Name() }

func (s *ProcSource) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	stat, err := procReadFile(filepath.Join(s.procRoot, "stat"))
	if err != nil {
		return Reading{}, fmt.Errorf("error reading cpu stats: %w", err)
	}
	meminfo, err := procReadFile(filepath.Join(s.procRoot, "meminfo"))
	if err != nil {
		return Reading{}, fmt.Errorf("error reading memory info: %w", err)
	}
	netdev, err := procReadFile(filepath.Join(s.procRoot, "net", "dev"))
	if err != nil {
		return Reading{}, fmt.Errorf("error reading network counters: %w", err)
	}

	ts := s.now().UnixMilli()
	statText := string(stat)
	r := Reading{
		CPU:       s.engine.ParseCPU(metrics.FirstLine(statText)),
		Cores:     metrics.ParseCPUCores(s.engine, statText),
		Memory:    s.engine.ParseMemory(string(meminfo)),
		Network:   metrics.AggregateInterfaces(s.engine.ParseInterfaces(string(netdev), ts), ts),
		Timestamp: ts,
	}

	// many hosts have no thermal zone; the reading is simply absent
	if s.thermalZone != "" {
		if temp, err := procReadFile(s.thermalZone); err == nil {
			r.TemperatureC = s.engine.ParseTemperature(string(temp))
			r.HasTemperature = true
		}
	}
	return r, nil
}

// NewSource returns a ProcSource when the configured procfs is readable and a
// GopsutilSource otherwise.
func NewSource(cfg *config.Config, engine metrics.Engine) Source {
	if _, err := procReadFile(filepath.Join(cfg.Sources.ProcRoot, "stat")); err == nil {
		return NewProcSource(engine, cfg.Sources.ProcRoot, cfg.Sources.ThermalZone)
	}
	return NewGopsutilSource()
}
