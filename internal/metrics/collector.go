// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for coursebot. It renders the text exposition format without
// requiring the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
	disabled   atomic.Bool
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// SetEnabled turns the exposition on or off. Metrics are still recorded
// while disabled.
func (c *MetricsCollector) SetEnabled(on bool) { c.disabled.Store(!on) }

func (c *MetricsCollector) Enabled() bool { return !c.disabled.Load() }

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns or creates a counter with the given name and labels.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	k := key(name, labels)
	if v, ok := c.counters.Load(k); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(k, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and labels.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	k := key(name, labels)
	if v, ok := c.gauges.Load(k); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(k, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and labels.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	k := key(name, labels)
	if v, ok := c.histograms.Load(k); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	actual, _ := c.histograms.LoadOrStore(k, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// sortedKeys returns the keys of m in lexical order so output is stable.
func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// WriteText renders every metric in Prometheus text exposition format.
func (c *MetricsCollector) WriteText(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP coursebot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE coursebot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "coursebot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	helpWritten := make(map[string]bool)
	for _, k := range sortedKeys(&c.counters) {
		v, _ := c.counters.Load(k)
		ctr := v.(*Counter)
		if !helpWritten[ctr.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", ctr.name, ctr.help, ctr.name)
			helpWritten[ctr.name] = true
		}
		writeSample(&sb, ctr.name, ctr.labels, fmt.Sprintf("%d", ctr.Value()))
	}

	for _, k := range sortedKeys(&c.gauges) {
		v, _ := c.gauges.Load(k)
		g := v.(*Gauge)
		if !helpWritten[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			helpWritten[g.name] = true
		}
		writeSample(&sb, g.name, g.labels, fmt.Sprintf("%d", g.Value()))
	}

	for _, k := range sortedKeys(&c.histograms) {
		v, _ := c.histograms.Load(k)
		h := v.(*Histogram)
		h.mu.Lock()
		if !helpWritten[h.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			helpWritten[h.name] = true
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			labels := fmt.Sprintf(`le="%s"`, le)
			if h.labels != "" {
				labels = h.labels + "," + labels
			}
			writeSample(&sb, h.name+"_bucket", labels, fmt.Sprintf("%d", b.count))
		}
		writeSample(&sb, h.name+"_count", h.labels, fmt.Sprintf("%d", h.count))
		writeSample(&sb, h.name+"_sum", h.labels, fmt.Sprintf("%f", h.sum))
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeSample(sb *strings.Builder, name, labels, value string) {
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %s\n", name, labels, value)
		return
	}
	fmt.Fprintf(sb, "%s %s\n", name, value)
}

// --- Pre-defined metrics used across the application ---

var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	QueriesTotal  = Collector.Counter("coursebot_queries_total", "Total queries answered", "")
	QueryErrors   = Collector.Counter("coursebot_query_errors_total", "Queries that ended in an error", "")
	ModelRequests = Collector.Counter("coursebot_model_requests_total", "Total generative model requests", "")
	ModelErrors   = Collector.Counter("coursebot_model_errors_total", "Generative model requests that failed", "")
	TokensTotal   = Collector.Counter("coursebot_tokens_total", "Prompt plus completion tokens reported by providers", "")
	ToolRounds    = Collector.Counter("coursebot_tool_rounds_total", "Queries that used a tool round", "")
	ActiveSession = Collector.Gauge("coursebot_active_sessions", "Sessions currently held in memory", "")

	QueryLatency = Collector.Histogram("coursebot_query_latency_seconds", "End-to-end query latency in seconds", "", latencyBuckets)
	ModelLatency = Collector.Histogram("coursebot_model_latency_seconds", "Generative model request latency in seconds", "", latencyBuckets)
)

// ToolCalls returns the per-tool execution counter.
func ToolCalls(tool string) *Counter {
	return Collector.Counter("coursebot_tool_calls_total", "Tool executions by tool name", fmt.Sprintf(`tool=%q`, tool))
}

// ToolErrors returns the per-tool failure counter.
func ToolErrors(tool string) *Counter {
	return Collector.Counter("coursebot_tool_errors_total", "Tool executions that failed", fmt.Sprintf(`tool=%q`, tool))
}

// ToolLatency returns the per-tool latency histogram.
func ToolLatency(tool string) *Histogram {
	return Collector.Histogram("coursebot_tool_latency_seconds", "Tool execution latency in seconds", fmt.Sprintf(`tool=%q`, tool),
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5})
}
