// Package chart keeps short, fixed-capacity series per metric for sparkline
// style displays.
package chart

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jeffypooo/sysmetrics/internal/feed"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

const (
	DefaultCapacity = 60
	DefaultFPSFloor = 30

	// minNormalizedRange keeps a flat series from dividing by zero.
	minNormalizedRange = 0.001
)

type Point struct {
	Timestamp int64            `json:"timestamp"`
	Value     float64          `json:"value"`
	Severity  metrics.Severity `json:"severity"`
}

// Series is an immutable snapshot of one metric's buffer, oldest point first.
type Series struct {
	Metric   metrics.MetricType `json:"metric"`
	Points   []Point            `json:"points"`
	Capacity int                `json:"capacity"`
}

func (s Series) IsEmpty() bool { return len(s.Points) == 0 }

func (s Series) Latest() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

func (s Series) Min() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	m := s.Points[0].Value
	for _, p := range s.Points[1:] {
		m = math.Min(m, p.Value)
	}
	return m
}

func (s Series) Max() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	m := s.Points[0].Value
	for _, p := range s.Points[1:] {
		m = math.Max(m, p.Value)
	}
	return m
}

func (s Series) Average() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Points {
		sum += p.Value
	}
	return sum / float64(len(s.Points))
}

// Classify tags a value for display. Frame rate is inverted: high is good.
// Fractional frame rates are truncated before comparison.
func Classify(metric metrics.MetricType, value float64, fpsFloor int) metrics.Severity {
	if metric == metrics.MetricFPS {
		fps := int(math.Trunc(value))
		switch {
		case fps >= 55:
			return metrics.SeverityLow
		case fps >= 45:
			return metrics.SeverityMedium
		case fps >= fpsFloor:
			return metrics.SeverityMedium
		default:
			return metrics.SeverityHigh
		}
	}
	switch {
	case value < 50:
		return metrics.SeverityLow
	case value < 80:
		return metrics.SeverityMedium
	default:
		return metrics.SeverityHigh
	}
}

type series struct {
	metric metrics.MetricType

	mu     sync.Mutex
	points []Point

	snap atomic.Pointer[Series]
}

func (s *series) publishLocked(capacity int) *Series {
	pts := make([]Point, len(s.points))
	copy(pts, s.points)
	snap := &Series{Metric: s.metric, Points: pts, Capacity: capacity}
	s.snap.Store(snap)
	return snap
}

// Buffer holds one bounded series per metric. Each series has its own lock;
// readers load the last published snapshot without locking.
type Buffer struct {
	mu     sync.RWMutex
	series map[metrics.MetricType]*series

	capacity atomic.Int64
	fpsFloor atomic.Int64

	feed feed.Feed[Series]
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{series: make(map[metrics.MetricType]*series)}
	b.capacity.Store(int64(capacity))
	b.fpsFloor.Store(DefaultFPSFloor)
	return b
}

func (b *Buffer) get(metric metrics.MetricType) *series {
	b.mu.RLock()
	s, ok := b.series[metric]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.series[metric]; ok {
		return s
	}
	s = &series{metric: metric}
	s.snap.Store(&Series{Metric: metric, Points: []Point{}, Capacity: b.Capacity()})
	b.series[metric] = s
	return s
}

func (b *Buffer) lookup(metric metrics.MetricType) (*series, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.series[metric]
	return s, ok
}

// Push appends a point, evicting the oldest one when the series is full.
func (b *Buffer) Push(metric metrics.MetricType, value float64, ts int64) {
	value = metrics.SanitizeValue(value)
	capacity := b.Capacity()
	p := Point{
		Timestamp: ts,
		Value:     value,
		Severity:  Classify(metric, value, b.FPSFloor()),
	}

	s := b.get(metric)
	s.mu.Lock()
	if len(s.points) >= capacity {
		n := copy(s.points, s.points[len(s.points)-capacity+1:])
		s.points = s.points[:n]
	}
	s.points = append(s.points, p)
	snap := s.publishLocked(capacity)
	s.mu.Unlock()

	b.feed.Publish(*snap)
}

// Series returns the current snapshot. Unknown metrics yield an empty series.
func (b *Buffer) Series(metric metrics.MetricType) Series {
	if s, ok := b.lookup(metric); ok {
		return *s.snap.Load()
	}
	return Series{Metric: metric, Points: []Point{}, Capacity: b.Capacity()}
}

// Points returns a copy of the metric's points, oldest first.
func (b *Buffer) Points(metric metrics.MetricType) []Point {
	pts := b.Series(metric).Points
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

func (b *Buffer) Latest(metric metrics.MetricType) (Point, bool) {
	return b.Series(metric).Latest()
}

// Stats scans the current contents: min, max and mean, all 0 when empty.
func (b *Buffer) Stats(metric metrics.MetricType) (lo, hi, avg float64) {
	s := b.Series(metric)
	return s.Min(), s.Max(), s.Average()
}

// Normalized scales the series into [0, 1] relative to its own range, or
// returns nil when the series is empty.
func (b *Buffer) Normalized(metric metrics.MetricType) []float64 {
	s := b.Series(metric)
	if s.IsEmpty() {
		return nil
	}
	lo, hi := s.Min(), s.Max()
	rng := math.Max(hi-lo, minNormalizedRange)
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = (p.Value - lo) / rng
	}
	return out
}

func (b *Buffer) Len(metric metrics.MetricType) int {
	return len(b.Series(metric).Points)
}

// Metrics lists the registered metrics.
func (b *Buffer) Metrics() []metrics.MetricType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]metrics.MetricType, 0, len(b.series))
	for _, m := range metrics.AllMetricTypes() {
		if _, ok := b.series[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Clear empties a series but keeps it registered.
func (b *Buffer) Clear(metric metrics.MetricType) {
	s, ok := b.lookup(metric)
	if !ok {
		return
	}
	s.mu.Lock()
	s.points = s.points[:0]
	snap := s.publishLocked(b.Capacity())
	s.mu.Unlock()
	b.feed.Publish(*snap)
}

// Reset drops every series, leaving the buffer as freshly constructed apart
// from its configured capacity and frame-rate floor.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.series = make(map[metrics.MetricType]*series)
	b.mu.Unlock()
}

func (b *Buffer) Capacity() int { return int(b.capacity.Load()) }

// SetCapacity changes the bound, trimming the oldest points of any series that
// no longer fits.
func (b *Buffer) SetCapacity(n int) {
	if n <= 0 {
		n = DefaultCapacity
	}
	b.capacity.Store(int64(n))

	b.mu.RLock()
	all := make([]*series, 0, len(b.series))
	for _, s := range b.series {
		all = append(all, s)
	}
	b.mu.RUnlock()

	for _, s := range all {
		s.mu.Lock()
		if extra := len(s.points) - n; extra > 0 {
			k := copy(s.points, s.points[extra:])
			s.points = s.points[:k]
		}
		s.publishLocked(n)
		s.mu.Unlock()
	}
}

func (b *Buffer) FPSFloor() int { return int(b.fpsFloor.Load()) }

// SetFPSFloor changes the frame rate below which points are tagged HIGH.
// Existing points keep their severity.
func (b *Buffer) SetFPSFloor(n int) {
	b.fpsFloor.Store(int64(n))
}

// Subscribe streams the series snapshot of every Push or Clear until ctx is done.
func (b *Buffer) Subscribe(ctx context.Context) <-chan Series {
	return b.feed.Subscribe(ctx)
}
