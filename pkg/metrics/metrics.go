// Package metrics keeps in-process request and workflow counters exposed on
// /metrics as JSON.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const latencyWindow = 100

type Collector struct {
	mu        sync.RWMutex
	counters  map[string]map[string]int64
	latencies map[string][]time.Duration
	started   time.Time
}

func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]map[string]int64),
		latencies: make(map[string][]time.Duration),
		started:   time.Now(),
	}
}

// Inc bumps the counter for name under the given labels. Labels are folded
// into one sorted key such as "method:GET,status:200".
func (c *Collector) Inc(name string, labels map[string]string) {
	key := labelKey(labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters[name] == nil {
		c.counters[name] = make(map[string]int64)
	}
	c.counters[name][key]++
}

// Observe records a latency; only the last 100 samples per name are kept.
func (c *Collector) Observe(name string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := append(c.latencies[name], d)
	if len(samples) > latencyWindow {
		samples = samples[len(samples)-latencyWindow:]
	}
	c.latencies[name] = samples
}

func (c *Collector) Counters() map[string]map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]int64, len(c.counters))
	for name, byLabel := range c.counters {
		out[name] = make(map[string]int64, len(byLabel))
		for k, v := range byLabel {
			out[name][k] = v
		}
	}
	return out
}

// Latencies returns average and max milliseconds over the sample window.
func (c *Collector) Latencies() map[string]map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]float64, len(c.latencies))
	for name, samples := range c.latencies {
		if len(samples) == 0 {
			continue
		}
		var sum, max time.Duration
		for _, d := range samples {
			sum += d
			if d > max {
				max = d
			}
		}
		out[name] = map[string]float64{
			"avg_ms": float64(sum) / float64(len(samples)) / float64(time.Millisecond),
			"max_ms": float64(max) / float64(time.Millisecond),
		}
	}
	return out
}

// Snapshot is the /metrics payload.
func (c *Collector) Snapshot() map[string]any {
	return map[string]any{
		"uptime_seconds": int64(time.Since(c.started).Seconds()),
		"counters":       c.Counters(),
		"latencies":      c.Latencies(),
	}
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return "default"
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+":"+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
