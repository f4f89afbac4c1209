// Package stats keeps execution-time statistics for instrumented methods.
//
// The Collector retains a sliding window of recent durations per method for
// in-process summaries and mirrors every observation into Prometheus
// metrics. MeterObserver publishes the same observations through an
// OpenTelemetry meter.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultWindow is the number of recent samples kept per method.
const DefaultWindow = 1000

// Observer receives the outcome of every completed instrumented call.
type Observer interface {
	ObserveCall(method string, elapsed time.Duration, failed bool)
}

// SinkFailureObserver is implemented by observers that also count sink
// failures.
type SinkFailureObserver interface {
	ObserveSinkFailure()
}

// Summary describes the durations of a set of calls.
type Summary struct {
	Count  int           `json:"count"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
}

// Summarize computes a Summary. The input is not modified.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Summary{
		Count:  n,
		Mean:   total / time.Duration(n),
		Median: median,
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

// MethodStats is the per-method view returned by Collector.Snapshot.
type MethodStats struct {
	Method   string  `json:"method"`
	Calls    uint64  `json:"calls"`
	Failures uint64  `json:"failures"`
	Window   Summary `json:"window"`
}

// Collector aggregates call durations per method.
type Collector struct {
	window int

	mu       sync.Mutex
	methods  map[string]*methodWindow
	sinkFail uint64

	calls        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	sinkFailures prometheus.Counter
}

type methodWindow struct {
	samples  []time.Duration
	next     int
	full     bool
	calls    uint64
	failures uint64
}

func (w *methodWindow) add(d time.Duration) {
	if !w.full && len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, d)
		if len(w.samples) == cap(w.samples) {
			w.full = true
		}
		return
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
}

// NewCollector returns a collector keeping window samples per method. When
// reg is non-nil the Prometheus metrics are registered with it; namespace
// prefixes their names.
func NewCollector(window int, namespace string, reg prometheus.Registerer) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	factory := promauto.With(reg)

	return &Collector{
		window:  window,
		methods: make(map[string]*methodWindow),
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calls",
				Name:      "total",
				Help:      "Total number of instrumented calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "calls",
				Name:      "duration_seconds",
				Help:      "Duration of instrumented calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		sinkFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "failures_total",
				Help:      "Total number of records a sink failed to write",
			},
		),
	}
}

// ObserveCall records one completed call.
func (c *Collector) ObserveCall(method string, elapsed time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	c.calls.WithLabelValues(method, outcome).Inc()
	c.duration.WithLabelValues(method).Observe(elapsed.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.methods[method]
	if !ok {
		w = &methodWindow{samples: make([]time.Duration, 0, c.window)}
		c.methods[method] = w
	}
	w.add(elapsed)
	w.calls++
	if failed {
		w.failures++
	}
}

// ObserveSinkFailure counts a record a sink failed to write.
func (c *Collector) ObserveSinkFailure() {
	c.sinkFailures.Inc()
	c.mu.Lock()
	c.sinkFail++
	c.mu.Unlock()
}

// SinkFailures returns the number of sink failures observed.
func (c *Collector) SinkFailures() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinkFail
}

// Summary returns the window summary for method.
func (c *Collector) Summary(method string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.methods[method]
	if !ok {
		return Summary{}, false
	}
	return Summarize(w.samples), true
}

// Methods returns the observed method names, sorted.
func (c *Collector) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns statistics for every observed method, sorted by name.
func (c *Collector) Snapshot() []MethodStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MethodStats, 0, len(c.methods))
	for name, w := range c.methods {
		out = append(out, MethodStats{
			Method:   name,
			Calls:    w.calls,
			Failures: w.failures,
			Window:   Summarize(w.samples),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// Multi fans observations out to several observers. Nil entries are
// skipped.
func Multi(observers ...Observer) Observer {
	kept := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			kept = append(kept, o)
		}
	}
	return kept
}

type multi []Observer

func (m multi) ObserveCall(method string, elapsed time.Duration, failed bool) {
	for _, o := range m {
		o.ObserveCall(method, elapsed, failed)
	}
}

func (m multi) ObserveSinkFailure() {
	for _, o := range m {
		if s, ok := o.(SinkFailureObserver); ok {
			s.ObserveSinkFailure()
		}
	}
}

var (
	_ Observer            = (*Collector)(nil)
	_ SinkFailureObserver = (*Collector)(nil)
	_ SinkFailureObserver = multi(nil)
)
