// Package window keeps up to a few minutes of samples per metric and serves
// rolling averages, extremes and percentiles over them.
package window

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffypooo/sysmetrics/internal/feed"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
)

const (
	DefaultRetention = 5 * time.Minute

	Window30s = 30 * time.Second
	Window1m  = time.Minute
	Window5m  = 5 * time.Minute

	// percentileWindow is the trailing span P95 and P99 are computed over.
	percentileWindow = time.Minute
)

type Statistics struct {
	Metric    metrics.MetricType `json:"metric"`
	Current   float64            `json:"current"`
	Avg30s    float64            `json:"avg_30s"`
	Avg1m     float64            `json:"avg_1m"`
	Avg5m     float64            `json:"avg_5m"`
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	P95       float64            `json:"p95"`
	P99       float64            `json:"p99"`
	Timestamp int64              `json:"timestamp"`
}

// Percentile returns the nearest-rank percentile of values: the element at
// 1-based rank ceil(n*p/100) of the sorted data. Empty input yields 0.
func Percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[rankIndex(len(sorted), p)]
}

func rankIndex(n, p int) int {
	idx := int(math.Ceil(float64(n)*float64(p)/100)) - 1
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// history is one metric's retained samples. minute mirrors the values of
// points[minuteStart:] in ascending order so percentiles need no sort.
type history struct {
	metric metrics.MetricType

	mu          sync.Mutex
	points      []metrics.Sample
	minuteStart int
	minute      []float64

	snap atomic.Pointer[Statistics]
}

func newHistory(metric metrics.MetricType) *history {
	h := &history{metric: metric}
	h.snap.Store(&Statistics{Metric: metric})
	return h
}

func (h *history) add(value float64, ts int64, retention time.Duration) *Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, metrics.Sample{Value: value, Timestamp: ts})
	h.insertMinute(value)

	minuteCutoff := ts - percentileWindow.Milliseconds()
	for h.minuteStart < len(h.points) && h.points[h.minuteStart].Timestamp < minuteCutoff {
		h.removeMinute(h.points[h.minuteStart].Value)
		h.minuteStart++
	}

	cutoff := ts - retention.Milliseconds()
	k := 0
	for k < len(h.points) && h.points[k].Timestamp < cutoff {
		if k >= h.minuteStart {
			h.removeMinute(h.points[k].Value)
		}
		k++
	}
	if k > h.minuteStart {
		h.minuteStart = k
	}
	h.points = h.points[k:]
	h.minuteStart -= k

	stats := h.computeLocked(value, ts)
	h.snap.Store(stats)
	return stats
}

func (h *history) insertMinute(v float64) {
	i := sort.SearchFloat64s(h.minute, v)
	h.minute = append(h.minute, 0)
	copy(h.minute[i+1:], h.minute[i:])
	h.minute[i] = v
}

func (h *history) removeMinute(v float64) {
	i := sort.SearchFloat64s(h.minute, v)
	if i < len(h.minute) && h.minute[i] == v {
		h.minute = append(h.minute[:i], h.minute[i+1:]...)
	}
}

func (h *history) computeLocked(current float64, now int64) *Statistics {
	s := &Statistics{
		Metric:    h.metric,
		Current:   current,
		Avg30s:    averageSince(h.points, now-Window30s.Milliseconds()),
		Avg1m:     averageSince(h.points, now-Window1m.Milliseconds()),
		Avg5m:     averageSince(h.points, now-Window5m.Milliseconds()),
		Timestamp: now,
	}
	if len(h.points) > 0 {
		s.Min, s.Max = h.points[0].Value, h.points[0].Value
		for _, p := range h.points[1:] {
			s.Min = math.Min(s.Min, p.Value)
			s.Max = math.Max(s.Max, p.Value)
		}
	}
	if n := len(h.minute); n > 0 {
		s.P95 = h.minute[rankIndex(n, 95)]
		s.P99 = h.minute[rankIndex(n, 99)]
	}
	return s
}

// averageSince averages the chronological suffix of points at or after cutoff.
func averageSince(points []metrics.Sample, cutoff int64) float64 {
	i := sort.Search(len(points), func(i int) bool { return points[i].Timestamp >= cutoff })
	if i == len(points) {
		return 0
	}
	var sum float64
	for _, p := range points[i:] {
		sum += p.Value
	}
	return sum / float64(len(points)-i)
}

func (h *history) valuesSince(cutoff int64) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []float64
	for _, p := range h.points {
		if p.Timestamp >= cutoff {
			out = append(out, p.Value)
		}
	}
	return out
}

// Calculator tracks one history per metric. Samples of a metric must arrive in
// non-decreasing timestamp order.
type Calculator struct {
	mu        sync.RWMutex
	histories map[metrics.MetricType]*history

	retention atomic.Int64

	feed feed.Feed[Statistics]
}

func NewCalculator(retention time.Duration) *Calculator {
	c := &Calculator{histories: make(map[metrics.MetricType]*history)}
	c.SetRetention(retention)
	return c
}

func (c *Calculator) get(metric metrics.MetricType) *history {
	c.mu.RLock()
	h, ok := c.histories[metric]
	c.mu.RUnlock()
	if ok {
		return h
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok = c.histories[metric]; ok {
		return h
	}
	h = newHistory(metric)
	c.histories[metric] = h
	return h
}

func (c *Calculator) lookup(metric metrics.MetricType) (*history, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.histories[metric]
	return h, ok
}

// AddSample records value at ts (Unix milliseconds), drops samples older than
// the retention and publishes fresh statistics.
func (c *Calculator) AddSample(metric metrics.MetricType, value float64, ts int64) {
	stats := c.get(metric).add(metrics.SanitizeValue(value), ts, c.Retention())
	c.feed.Publish(*stats)
}

// Stats returns the statistics published by the metric's latest sample.
func (c *Calculator) Stats(metric metrics.MetricType) Statistics {
	if h, ok := c.lookup(metric); ok {
		return *h.snap.Load()
	}
	return Statistics{Metric: metric}
}

// All returns Stats for every known metric in display order.
func (c *Calculator) All() []Statistics {
	all := metrics.AllMetricTypes()
	out := make([]Statistics, len(all))
	for i, m := range all {
		out[i] = c.Stats(m)
	}
	return out
}

// ValuesInWindow returns, in insertion order, the values of samples stamped at
// or after now-window.
func (c *Calculator) ValuesInWindow(metric metrics.MetricType, window time.Duration, now int64) []float64 {
	h, ok := c.lookup(metric)
	if !ok {
		return nil
	}
	return h.valuesSince(now - window.Milliseconds())
}

func (c *Calculator) Average(metric metrics.MetricType, window time.Duration, now int64) float64 {
	vals := c.ValuesInWindow(metric, window, now)
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func (c *Calculator) Min(metric metrics.MetricType, window time.Duration, now int64) float64 {
	vals := c.ValuesInWindow(metric, window, now)
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m
}

func (c *Calculator) Max(metric metrics.MetricType, window time.Duration, now int64) float64 {
	vals := c.ValuesInWindow(metric, window, now)
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m
}

func (c *Calculator) Percentile(metric metrics.MetricType, p int, window time.Duration, now int64) float64 {
	return Percentile(c.ValuesInWindow(metric, window, now), p)
}

// Count reports how many samples the metric currently retains.
func (c *Calculator) Count(metric metrics.MetricType) int {
	h, ok := c.lookup(metric)
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}

// Clear drops a metric's samples and publishes empty statistics for it.
func (c *Calculator) Clear(metric metrics.MetricType) {
	h, ok := c.lookup(metric)
	if !ok {
		return
	}
	h.mu.Lock()
	h.points = nil
	h.minute = nil
	h.minuteStart = 0
	empty := &Statistics{Metric: metric}
	h.snap.Store(empty)
	h.mu.Unlock()
	c.feed.Publish(*empty)
}

// Reset forgets every metric.
func (c *Calculator) Reset() {
	c.mu.Lock()
	c.histories = make(map[metrics.MetricType]*history)
	c.mu.Unlock()
}

func (c *Calculator) Retention() time.Duration {
	return time.Duration(c.retention.Load())
}

// SetRetention changes the maximum sample age. It takes effect on each
// metric's next sample. Non-positive values restore the default.
func (c *Calculator) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultRetention
	}
	c.retention.Store(int64(d))
}

// Subscribe streams the statistics published by every AddSample or Clear.
func (c *Calculator) Subscribe(ctx context.Context) <-chan Statistics {
	return c.feed.Subscribe(ctx)
}
