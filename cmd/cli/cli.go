package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"
	"golang.org/x/term"

	"github.com/jeffypooo/sysmetrics/internal/chart"
	"github.com/jeffypooo/sysmetrics/internal/config"
	"github.com/jeffypooo/sysmetrics/internal/metrics"
	"github.com/jeffypooo/sysmetrics/internal/peak"
	"github.com/jeffypooo/sysmetrics/internal/sampler"
	"github.com/jeffypooo/sysmetrics/internal/window"
)

type report struct {
	Summary sampler.Summary     `json:"summary"`
	Stats   []window.Statistics `json:"stats"`
	Peaks   peak.Snapshot       `json:"peaks"`
}

func main() {
	configPath := flag.String("config", "sysmetrics.yaml", "path to the YAML config file")
	interval := flag.Duration("interval", time.Second, "time between the two samples")
	asJSON := flag.Bool("json", false, "print JSON even on a terminal")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	// keep the table clean; only warnings and errors reach stderr
	cfg.LogLevel = "warn"

	session := sampler.Open(cfg)
	ctx := context.Background()
	if _, err := session.Tick(ctx); err != nil {
		log.Fatalf("Error getting baseline sample: %v", err)
	}
	time.Sleep(*interval)
	sum, err := session.Tick(ctx)
	if err != nil {
		log.Fatalf("Error getting sample: %v", err)
	}

	r := report{
		Summary: sum,
		Stats:   session.Windows.All(),
		Peaks:   session.Peaks.GetCurrentPeakStats(),
	}
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		out, err := json.MarshalIndent(r, "", " ")
		if err != nil {
			log.Fatalf("Error marshalling metrics: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(render(r, cfg.FPS.Floor))
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Bold(true).Width(18)
	cellStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
	mutedStyle = lipgloss.NewStyle().Faint(true)

	severityColors = map[string]lipgloss.Color{
		"green":  lipgloss.Color("2"),
		"yellow": lipgloss.Color("3"),
		"red":    lipgloss.Color("1"),
	}
)

func render(r report, fpsFloor int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s  %s", r.Summary.Text.CPU, r.Summary.Text.RAM, r.Summary.Source)))
	b.WriteString("\n\n")

	header := []string{"current", "avg 30s", "avg 1m", "avg 5m", "p95", "p99"}
	b.WriteString(labelStyle.Render(""))
	for _, h := range header {
		b.WriteString(cellStyle.Render(h))
	}
	b.WriteString("\n")

	for _, st := range r.Stats {
		if st.Timestamp == 0 {
			continue
		}
		sev := chart.Classify(st.Metric, st.Current, fpsFloor)
		current := cellStyle.Foreground(severityColors[sev.ColorName()]).Render(formatValue(st.Metric, st.Current))

		b.WriteString(labelStyle.Render(st.Metric.DisplayName()))
		b.WriteString(current)
		for _, v := range []float64{st.Avg30s, st.Avg1m, st.Avg5m, st.P95, st.P99} {
			b.WriteString(cellStyle.Render(formatValue(st.Metric, v)))
		}
		b.WriteString("\n")
	}

	net := r.Summary.Network
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("rx %s  tx %s  session rx %s  tx %s",
		r.Summary.Text.RxSpeed, r.Summary.Text.TxSpeed,
		bytes.Format(int64(net.SessionRxBytes)), bytes.Format(int64(net.SessionTxBytes)))))
	b.WriteString("\n\n")
	b.WriteString(r.Peaks.Summary(peak.DefaultSummaryOptions()))
	return b.String()
}

func formatValue(m metrics.MetricType, v float64) string {
	switch m {
	case metrics.MetricFPS:
		return fmt.Sprintf("%.0f", v)
	case metrics.MetricNetworkIngress, metrics.MetricNetworkEgress:
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
