package sampler

import (
	"context"
	"time"

	"github.com/jeffypooo/sysmetrics/internal/peak"
)

// Reporter periodically hands the peak snapshot to a callback and then resets
// the tracker, so each report covers only the interval since the last one.
type Reporter struct {
	tracker  *peak.Tracker
	interval time.Duration
	report   func(peak.Snapshot)
}

func NewReporter(tracker *peak.Tracker, interval time.Duration, report func(peak.Snapshot)) *Reporter {
	return &Reporter{tracker: tracker, interval: interval, report: report}
}

// Flush reports now. An empty snapshot is skipped and the tracker left alone.
func (r *Reporter) Flush() bool {
	snap := r.tracker.GetCurrentPeakStats()
	if snap.IsEmpty() {
		return false
	}
	r.report(snap)
	r.tracker.Reset()
	return true
}

// Run flushes every interval until ctx is done. A non-positive interval
// disables reporting.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}
