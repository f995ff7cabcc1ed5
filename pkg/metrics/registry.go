// Package metrics is a small Prometheus-compatible registry exposing
// counters, gauges and histograms in the text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets (in seconds).
var DefaultBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks the distribution of observed values using fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64 // non-cumulative, one per bucket
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i := sort.SearchFloat64s(h.buckets, v); i < len(h.buckets) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() (buckets []float64, counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buckets, append([]uint64(nil), h.counts...), h.sum, h.count
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family groups every labelled series sharing a base name.
type family struct {
	kind   kind
	help   string
	series map[string]any // full name -> *Counter | *Gauge | *Histogram
}

// Registry holds named metrics.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates a new Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// lookup returns the series for name, creating it with mk when missing.
// Label pairs are part of name, as produced by WithLabels.
func (r *Registry) lookup(name, help string, k kind, mk func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := metricBaseName(name)
	f, ok := r.families[base]
	if !ok {
		f = &family{kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if help != "" {
		f.help = help
	}
	if s, ok := f.series[name]; ok {
		return s
	}
	s := mk()
	f.series[name] = s
	return s
}

// Counter returns (or creates) a counter.
func (r *Registry) Counter(name, help string) *Counter {
	return r.lookup(name, help, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns (or creates) a gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.lookup(name, help, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns (or creates) a histogram. nil buckets means DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return r.lookup(name, help, kindHistogram, func() any { return newHistogram(buckets) }).(*Histogram)
}

// WithLabels returns a metric name with labels appended, e.g.
// WithLabels("foo", "k", "v") => `foo{k="v"}`
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func metricBaseName(name string) string {
	if idx := strings.IndexByte(name, '{'); idx != -1 {
		return name[:idx]
	}
	return name
}

// labelsOf returns the inner label list of `foo{k="v"}`, i.e. `k="v"`.
func labelsOf(name string) string {
	idx := strings.IndexByte(name, '{')
	if idx == -1 {
		return ""
	}
	return name[idx+1 : len(name)-1]
}

// Render returns the Prometheus text exposition format output.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, base := range r.order {
		f := r.families[base]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, f.kind)

		names := make([]string, 0, len(f.series))
		for n := range f.series {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, n := range names {
			switch s := f.series[n].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s %d\n", n, s.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s %d\n", n, s.Value())
			case *Histogram:
				renderHistogram(&b, base, labelsOf(n), s)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, base, labels string, h *Histogram) {
	buckets, counts, sum, count := h.snapshot()
	sep, wrapped := "", ""
	if labels != "" {
		sep, wrapped = ","+labels, "{"+labels+"}"
	}
	var cumulative uint64
	for i, bk := range buckets {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", base, bk, sep, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, sep, count)
	fmt.Fprintf(b, "%s_sum%s %g\n", base, wrapped, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", base, wrapped, count)
}

// Handler returns an http.Handler that serves the registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}
