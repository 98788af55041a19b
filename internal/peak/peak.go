// Package peak tracks the maximum of each metric family over a short sliding
// window, for periodic "what happened in the last minute" reports.
package peak

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffypooo/sysmetrics/internal/feed"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

const (
	DefaultWindow   = 60 * time.Second
	DefaultFPSFloor = 30
)

// FamilyPeak summarizes one family's window. Peak is the largest value and
// PeakTime the timestamp of its first occurrence.
type FamilyPeak struct {
	Peak     float64 `json:"peak"`
	PeakTime int64   `json:"peak_time"`
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Count    int     `json:"count"`
}

// Snapshot combines every family. It is never mutated after it is returned.
type Snapshot struct {
	Families    map[metrics.MetricType]FamilyPeak `json:"families"`
	WindowStart int64                             `json:"window_start"`
	WindowEnd   int64                             `json:"window_end"`
	FrameDrops  int                               `json:"frame_drops"`
}

func (s Snapshot) Get(family metrics.MetricType) FamilyPeak {
	return s.Families[family]
}

// FPSDrops counts frame rate samples in the window below the floor.
func (s Snapshot) FPSDrops() int { return s.FrameDrops }

// IsEmpty reports whether no family holds any sample.
func (s Snapshot) IsEmpty() bool {
	for _, f := range s.Families {
		if f.Count > 0 {
			return false
		}
	}
	return true
}

type familyState struct {
	FamilyPeak
	drops int
}

type family struct {
	metric metrics.MetricType

	mu     sync.Mutex
	points []metrics.Sample

	state atomic.Pointer[familyState]
}

func (f *family) recomputeLocked(fpsFloor int) *familyState {
	st := &familyState{}
	if len(f.points) == 0 {
		return st
	}
	first := f.points[0]
	st.Peak, st.PeakTime, st.Min = first.Value, first.Timestamp, first.Value
	var sum float64
	for _, p := range f.points {
		sum += p.Value
		if p.Value > st.Peak {
			st.Peak, st.PeakTime = p.Value, p.Timestamp
		}
		st.Min = math.Min(st.Min, p.Value)
		if f.metric == metrics.MetricFPS && int(math.Trunc(p.Value)) < fpsFloor {
			st.drops++
		}
	}
	st.Count = len(f.points)
	st.Average = sum / float64(len(f.points))
	return st
}

// Tracker holds one sliding window per metric family, each behind its own lock.
type Tracker struct {
	families map[metrics.MetricType]*family

	window    atomic.Int64
	fpsFloor  atomic.Int64
	windowEnd atomic.Int64

	feed feed.Feed[Snapshot]
}

func NewTracker(window time.Duration) *Tracker {
	t := &Tracker{families: make(map[metrics.MetricType]*family)}
	for _, m := range metrics.AllMetricTypes() {
		f := &family{metric: m}
		f.state.Store(&familyState{})
		t.families[m] = f
	}
	t.SetWindow(window)
	t.fpsFloor.Store(DefaultFPSFloor)
	return t
}

// AddValue records value for family at ts (Unix milliseconds), dropping the
// family's samples older than ts minus the window. Unknown families are ignored.
func (t *Tracker) AddValue(family metrics.MetricType, value float64, ts int64) {
	f, ok := t.families[family]
	if !ok {
		return
	}
	value = metrics.SanitizeValue(value)
	window := t.Window().Milliseconds()

	f.mu.Lock()
	f.points = append(f.points, metrics.Sample{Value: value, Timestamp: ts})
	cutoff := ts - window
	k := 0
	for k < len(f.points) && f.points[k].Timestamp < cutoff {
		k++
	}
	f.points = f.points[k:]
	f.state.Store(f.recomputeLocked(int(t.fpsFloor.Load())))
	f.mu.Unlock()

	for {
		end := t.windowEnd.Load()
		if ts <= end || t.windowEnd.CompareAndSwap(end, ts) {
			break
		}
	}
	t.feed.Publish(t.GetCurrentPeakStats())
}

// GetCurrentPeakStats assembles the published state of every family without
// taking any family lock.
func (t *Tracker) GetCurrentPeakStats() Snapshot {
	snap := Snapshot{Families: make(map[metrics.MetricType]FamilyPeak, len(t.families))}
	for m, f := range t.families {
		st := f.state.Load()
		snap.Families[m] = st.FamilyPeak
		if m == metrics.MetricFPS {
			snap.FrameDrops = st.drops
		}
	}
	if end := t.windowEnd.Load(); end != 0 {
		snap.WindowEnd = end
		snap.WindowStart = end - t.Window().Milliseconds()
	}
	return snap
}

// Reset empties every family so the next snapshot covers only what follows.
func (t *Tracker) Reset() {
	for _, f := range t.families {
		f.mu.Lock()
		f.points = nil
		f.state.Store(&familyState{})
		f.mu.Unlock()
	}
	t.windowEnd.Store(0)
	t.feed.Publish(t.GetCurrentPeakStats())
}

func (t *Tracker) Window() time.Duration {
	return time.Duration(t.window.Load())
}

// SetWindow changes the sliding window length, applied from each family's next
// sample. Non-positive values restore the default.
func (t *Tracker) SetWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultWindow
	}
	t.window.Store(int64(d))
}

func (t *Tracker) SetFPSFloor(n int) {
	t.fpsFloor.Store(int64(n))
}

// Subscribe streams a snapshot after every AddValue or Reset.
func (t *Tracker) Subscribe(ctx context.Context) <-chan Snapshot {
	return t.feed.Subscribe(ctx)
}
