// Package metrics keeps in-process counters and timers for one run. The
// totals are logged as a summary when the run ends.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pipeline metric names
const (
	EntitiesFetched   = "entities_fetched"
	EntitiesNew       = "entities_new"
	EntitiesUpdated   = "entities_updated"
	EntitiesUnmatched = "entities_unmatched"
	TasksFailed       = "tasks_failed"
	ItemsEnqueued     = "queue_items_enqueued"
	ItemsDropped      = "queue_items_dropped"
	ItemsPublished    = "items_published"
	ItemsSkipped      = "items_skipped"
	PublishFailed     = "publish_failed"
	EntitiesArchived  = "entities_archived"
	PhaseDuration     = "phase_duration"
	QueueOccupancy    = "queue_occupancy"
)

// Metric is a counter or gauge value with its labels
type Metric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// TimerMetric stores timing information
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
}

// Snapshot is a point in time copy of the registry
type Snapshot struct {
	Counters map[string]Metric      `json:"counters"`
	Gauges   map[string]Metric      `json:"gauges"`
	Timers   map[string]TimerMetric `json:"timers"`
	UptimeMs int64                  `json:"uptime_ms"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.Mutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := r.counters[key]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[key] = &Metric{
		Name:       name,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// RecordTimer records a timing measurement
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	durationMs := float64(duration.Nanoseconds()) / 1e6

	timer, exists := r.timers[key]
	if !exists {
		r.timers[key] = &TimerMetric{
			Count:   1,
			Sum:     durationMs,
			Min:     durationMs,
			Max:     durationMs,
			Average: durationMs,
		}
		return
	}

	timer.Count++
	timer.Sum += durationMs
	if durationMs < timer.Min {
		timer.Min = durationMs
	}
	if durationMs > timer.Max {
		timer.Max = durationMs
	}
	timer.Average = timer.Sum / float64(timer.Count)
}

// Time measures the duration until the returned func is called.
//
//	defer reg.Time(metrics.PhaseDuration, map[string]string{"phase": "archive"})()
func (r *Registry) Time(name string, labels map[string]string) func() {
	start := time.Now()
	return func() { r.RecordTimer(name, time.Since(start), labels) }
}

// SetGauge sets a gauge metric value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:       name,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// Counter returns the current value of a counter, 0 if it was never touched.
func (r *Registry) Counter(name string, labels map[string]string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[metricKey(name, labels)]; ok {
		return c.Value
	}
	return 0
}

// Snapshot copies all metrics
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Counters: make(map[string]Metric, len(r.counters)),
		Gauges:   make(map[string]Metric, len(r.gauges)),
		Timers:   make(map[string]TimerMetric, len(r.timers)),
		UptimeMs: time.Since(r.startTime).Milliseconds(),
	}
	for key, counter := range r.counters {
		s.Counters[key] = *counter
	}
	for key, gauge := range r.gauges {
		s.Gauges[key] = *gauge
	}
	for key, timer := range r.timers {
		s.Timers[key] = *timer
	}
	return s
}

// Summary flattens the registry into log fields, one per counter and gauge
// plus the average of every timer.
func (r *Registry) Summary() logrus.Fields {
	s := r.Snapshot()
	fields := logrus.Fields{"uptime_ms": s.UptimeMs}
	for key, counter := range s.Counters {
		fields[key] = counter.Value
	}
	for key, gauge := range s.Gauges {
		fields[key] = gauge.Value
	}
	for key, timer := range s.Timers {
		fields[key+"_avg_ms"] = timer.Average
	}
	return fields
}

// metricKey generates a unique key for a metric with labels, independent of
// map iteration order
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(labels[k])
	}
	return b.String()
}

// copyLabels creates a copy of the labels map
func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}

	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
