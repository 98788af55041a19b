package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jeffypooo/sysmetrics/internal/config"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
	"github.com/jeffypooo/sysmetrics/internal/peak"
	"github.com/jeffypooo/sysmetrics/internal/sampler"
	"github.com/jeffypooo/sysmetrics/internal/window"
)

type scriptedSource struct {
	readings []sampler.Reading
	next     int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Read(ctx context.Context) (sampler.Reading, error) {
	r := s.readings[s.next%len(s.readings)]
	s.next++
	return r, nil
}

func newTestServer(t *testing.T) (*echo.Echo, *sampler.Session) {
	t.Helper()
	mem := metrics.MemoryCounters{TotalKb: 8000000, AvailableKb: 4000000}
	src := &scriptedSource{readings: []sampler.Reading{
		{
			CPU:       metrics.CpuCounters{User: 1000, System: 500, Idle: 8000},
			Memory:    mem,
			Network:   metrics.NetworkSnapshot{Timestamp: 1000},
			Timestamp: 1000,
		},
		{
			CPU:       metrics.CpuCounters{User: 1200, System: 600, Idle: 8200},
			Memory:    mem,
			Network:   metrics.NetworkSnapshot{TotalRxBytes: 262144, TotalTxBytes: 131072, Timestamp: 3000},
			Timestamp: 3000,
		},
	}}
	session := sampler.New(config.Default(), src, metrics.StandardEngine{})
	e := echo.New()
	newServer(session).register(e)
	return e, session
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func tickTwice(t *testing.T, s *sampler.Session) {
	t.Helper()
	for i := 0; i < 2; i++ {
		if _, err := s.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
}

func TestLatestBeforeFirstTick(t *testing.T) {
	e, _ := newTestServer(t)
	if rec := do(e, http.MethodGet, "/api/latest", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestLatest(t *testing.T) {
	e, s := newTestServer(t)
	tickTwice(t, s)

	rec := do(e, http.MethodGet, "/api/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum sampler.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Text.CPU != "CPU: 60.0%" {
		t.Errorf("cpu text = %q", sum.Text.CPU)
	}
	if sum.Source != "scripted" {
		t.Errorf("source = %q", sum.Source)
	}
}

func TestChartHandler(t *testing.T) {
	e, s := newTestServer(t)
	tickTwice(t, s)

	rec := do(e, http.MethodGet, "/api/charts/cpu", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got chartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 1 || got.Points[0].Value != 60 {
		t.Errorf("points = %+v", got.Points)
	}
	if got.Max != 60 || got.Capacity != 60 {
		t.Errorf("max = %v capacity = %d", got.Max, got.Capacity)
	}
}

func TestUnknownMetric(t *testing.T) {
	e, _ := newTestServer(t)
	for _, target := range []string{"/api/charts/disk", "/api/stats/disk", "/api/metrics/sse?metric=disk"} {
		if rec := do(e, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestStatsHandlers(t *testing.T) {
	e, s := newTestServer(t)
	tickTwice(t, s)

	rec := do(e, http.MethodGet, "/api/stats/ram", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st window.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Metric != metrics.MetricRAM || st.Current != 50 {
		t.Errorf("stats = %+v", st)
	}

	rec = do(e, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var all []window.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, st := range all {
		if st.Metric == metrics.MetricCPU {
			found = true
			if st.Current != 60 {
				t.Errorf("cpu current = %v", st.Current)
			}
		}
	}
	if !found {
		t.Error("cpu missing from /api/stats")
	}
}

func TestPeaksAndReset(t *testing.T) {
	e, s := newTestServer(t)
	tickTwice(t, s)

	rec := do(e, http.MethodGet, "/api/peaks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got peaksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Families[metrics.MetricRAM].Peak != 3906 {
		t.Errorf("ram peak = %v", got.Families[metrics.MetricRAM].Peak)
	}
	if !strings.Contains(got.Summary, "RAM peak: 3906MB") {
		t.Errorf("summary = %q", got.Summary)
	}

	if rec := do(e, http.MethodPost, "/api/peaks/reset", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if !s.Peaks.GetCurrentPeakStats().IsEmpty() {
		t.Error("peaks not reset")
	}
	if s.Charts.Len(metrics.MetricCPU) != 1 {
		t.Error("peak reset touched the chart buffer")
	}

	if rec := do(e, http.MethodPost, "/api/session/reset", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("session reset status = %d", rec.Code)
	}
	if s.Charts.Len(metrics.MetricCPU) != 0 {
		t.Error("session reset left chart points")
	}
}

func TestFPSHandler(t *testing.T) {
	e, s := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/fps", `{"value": 24, "timestamp": 5000}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got, ok := s.Charts.Latest(metrics.MetricFPS); !ok || got.Value != 24 || got.Timestamp != 5000 {
		t.Errorf("latest fps = %+v", got)
	}
	if drops := s.Peaks.GetCurrentPeakStats().FPSDrops(); drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}

	before := time.Now().UnixMilli()
	if rec := do(e, http.MethodPost, "/api/fps", `{"value": 60}`); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got, _ := s.Charts.Latest(metrics.MetricFPS); got.Timestamp < before {
		t.Errorf("timestamp %d not defaulted to now", got.Timestamp)
	}

	for _, body := range []string{`{}`, `{"value": -1}`, `not json`} {
		if rec := do(e, http.MethodPost, "/api/fps", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestMetricsSSE(t *testing.T) {
	e, s := newTestServer(t)
	ts := httptest.NewServer(e)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/metrics/sse?metric=fps", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		if !lines.Scan() {
			t.Fatalf("stream ended: %v", lines.Err())
		}
		return lines.Text()
	}
	if l := next(); l != "event: connected" {
		t.Fatalf("first line = %q", l)
	}

	s.Windows.AddSample(metrics.MetricCPU, 10, 1000)
	s.RecordFPS(48, 1000)

	for {
		if next() != "event: stats" {
			continue
		}
		data := strings.TrimPrefix(next(), "data: ")
		var st window.Statistics
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			t.Fatalf("bad payload %q: %v", data, err)
		}
		if st.Metric != metrics.MetricFPS {
			t.Fatalf("filter let %s through", st.Metric)
		}
		if st.Current != 48 {
			t.Errorf("current = %v, want 48", st.Current)
		}
		return
	}
}

func TestPeaksWebSocket(t *testing.T) {
	e, s := newTestServer(t)
	ts := httptest.NewServer(e)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial peak.Snapshot
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatal(err)
	}
	if !initial.IsEmpty() {
		t.Errorf("initial snapshot = %+v", initial)
	}

	s.RecordFPS(55, time.Now().UnixMilli())
	for {
		var snap peak.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatal(err)
		}
		if fp := snap.Get(metrics.MetricFPS); fp.Count > 0 {
			if fp.Peak != 55 {
				t.Errorf("fps peak = %v, want 55", fp.Peak)
			}
			return
		}
	}
}
