package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jeffypooo/sysmetrics/internal/chart"
	"github.com/jeffypooo/sysmetrics/internal/config"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
	"github.com/jeffypooo/sysmetrics/internal/peak"
	"github.com/jeffypooo/sysmetrics/internal/sampler"
	"github.com/jeffypooo/sysmetrics/internal/window"
)

func main() {
	configPath := flag.String("config", "sysmetrics.yaml", "path to the YAML config file")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	interval := flag.Duration("interval", 0, "sample interval, overrides sample_interval")
	noFastPath := flag.Bool("no-fast-path", false, "always use the standard parser")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *interval != 0 {
		cfg.SampleInterval.Duration = *interval
	}
	if *noFastPath {
		cfg.FastPath = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	e := echo.New()
	e.Logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := sampler.Open(cfg)
	go session.Run(ctx, cfg.SampleInterval.Duration)

	reporter := sampler.NewReporter(session.Peaks, cfg.Peak.ReportInterval.Duration, func(s peak.Snapshot) {
		e.Logger.Info(s.Summary(peak.DefaultSummaryOptions()))
	})
	go reporter.Run(ctx)

	newServer(session).register(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			e.Logger.Errorf("Error shutting down: %v", err)
		}
	}()

	if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}
}

type server struct {
	session  *sampler.Session
	upgrader websocket.Upgrader
}

func newServer(session *sampler.Session) *server {
	return &server{
		session: session,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *server) register(e *echo.Echo) {
	e.GET("/api/latest", s.latestHandler)
	e.GET("/api/charts/:metric", s.chartHandler)
	e.GET("/api/stats", s.allStatsHandler)
	e.GET("/api/stats/:metric", s.statsHandler)
	e.GET("/api/peaks", s.peaksHandler)
	e.POST("/api/peaks/reset", s.peaksResetHandler)
	e.POST("/api/session/reset", s.sessionResetHandler)
	e.POST("/api/fps", s.fpsHandler)
	e.GET("/api/metrics/sse", s.apiMetricsSSEHandler)
	e.GET("/api/ws", s.peaksWebSocketHandler)
}

func metricParam(c echo.Context) (metrics.MetricType, error) {
	m, ok := metrics.ParseMetricType(c.Param("metric"))
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown metric %q", c.Param("metric")))
	}
	return m, nil
}

func (s *server) latestHandler(c echo.Context) error {
	sum, ok := s.session.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no sample yet")
	}
	return c.JSON(http.StatusOK, sum)
}

type chartResponse struct {
	chart.Series
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Average    float64   `json:"average"`
	Normalized []float64 `json:"normalized"`
}

func (s *server) chartHandler(c echo.Context) error {
	m, err := metricParam(c)
	if err != nil {
		return err
	}
	series := s.session.Charts.Series(m)
	return c.JSON(http.StatusOK, chartResponse{
		Series:     series,
		Min:        series.Min(),
		Max:        series.Max(),
		Average:    series.Average(),
		Normalized: s.session.Charts.Normalized(m),
	})
}

func (s *server) statsHandler(c echo.Context) error {
	m, err := metricParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.session.Windows.Stats(m))
}

func (s *server) allStatsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Windows.All())
}

type peaksResponse struct {
	peak.Snapshot
	Summary string `json:"summary"`
}

func (s *server) peaksHandler(c echo.Context) error {
	snap := s.session.Peaks.GetCurrentPeakStats()
	opts := peak.DefaultSummaryOptions()
	opts.FPS = c.QueryParam("fps") == "true"
	return c.JSON(http.StatusOK, peaksResponse{Snapshot: snap, Summary: snap.Summary(opts)})
}

func (s *server) peaksResetHandler(c echo.Context) error {
	s.session.Peaks.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (s *server) sessionResetHandler(c echo.Context) error {
	s.session.Reset()
	return c.NoContent(http.StatusNoContent)
}

type fpsRequest struct {
	Value     *float64 `json:"value"`
	Timestamp int64    `json:"timestamp"`
}

func (s *server) fpsHandler(c echo.Context) error {
	var req fpsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
	}
	if req.Value == nil || *req.Value < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "value must be a non-negative frame rate")
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	s.session.RecordFPS(*req.Value, req.Timestamp)
	return c.NoContent(http.StatusAccepted)
}

// apiMetricsSSEHandler streams one "stats" event per window statistics update.
// ?metric= limits the stream to a single metric.
func (s *server) apiMetricsSSEHandler(c echo.Context) error {
	c.Logger().Infof("SSE request received from %s", c.Request().RemoteAddr)

	var only metrics.MetricType
	if q := c.QueryParam("metric"); q != "" {
		m, ok := metrics.ParseMetricType(q)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown metric %q", q))
		}
		only = m
	}

	ctx := c.Request().Context()
	updates := s.session.Windows.Subscribe(ctx)

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("Access-Control-Allow-Origin", "*")
	resp.WriteHeader(http.StatusOK)

	fmt.Fprintf(resp.Writer, "event: connected\ndata: Connected to metrics stream\n\n")
	resp.Flush()

	for {
		select {
		case <-ctx.Done():
			c.Logger().Info("Client disconnected (context done)")
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if only != "" && st.Metric != only {
				continue
			}
			if err := writeStatsEvent(resp, st); err != nil {
				c.Logger().Errorf("Error sending stats update: %v", err)
				return nil
			}
		}
	}
}

func writeStatsEvent(resp *echo.Response, st window.Statistics) error {
	data, err := json.Marshal(st)
	if err != nil {
		_, werr := fmt.Fprintf(resp.Writer, "event: error\ndata: %s\n\n", err.Error())
		resp.Flush()
		return werr
	}
	if _, err := fmt.Fprintf(resp.Writer, "event: stats\ndata: %s\n\n", data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

// peaksWebSocketHandler pushes the current peak snapshot on connect and again
// after every change.
func (s *server) peaksWebSocketHandler(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		c.Logger().Errorf("WebSocket upgrade error: %v", err)
		return nil
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	updates := s.session.Peaks.Subscribe(ctx)

	// the client never sends anything useful; reading detects the close
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.Logger().Warnf("WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	if err := ws.WriteJSON(s.session.Peaks.GetCurrentPeakStats()); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(snap); err != nil {
				c.Logger().Warnf("WebSocket write error: %v", err)
				return nil
			}
		}
	}
}
