package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector keeps process-local request counters for /metrics.
type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu       sync.Mutex
	byRoute  map[string]uint64
	byErrors map[string]uint64
	events   map[string]uint64
}

func New() *Collector {
	return &Collector{
		byRoute:  map[string]uint64{},
		byErrors: map[string]uint64{},
		events:   map[string]uint64{},
	}
}

func (c *Collector) Record(route string, status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
	if route == "" {
		return
	}
	c.mu.Lock()
	c.byRoute[route]++
	c.mu.Unlock()
}

// RecordError counts an error response by its code.
func (c *Collector) RecordError(code string) {
	c.mu.Lock()
	c.byErrors[code]++
	c.mu.Unlock()
}

// RecordEvent counts domain events such as finalizations and audits.
func (c *Collector) RecordEvent(name string) {
	c.mu.Lock()
	c.events[name]++
	c.mu.Unlock()
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"routes":           copyCounts(c.byRoute),
		"errorCodes":       copyCounts(c.byErrors),
		"events":           copyCounts(c.events),
	}
}

// TopRoutes returns up to n routes ordered by request count.
func (c *Collector) TopRoutes(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	routes := make([]string, 0, len(c.byRoute))
	for r := range c.byRoute {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool {
		if c.byRoute[routes[i]] != c.byRoute[routes[j]] {
			return c.byRoute[routes[i]] > c.byRoute[routes[j]]
		}
		return routes[i] < routes[j]
	})
	if n > 0 && len(routes) > n {
		routes = routes[:n]
	}
	return routes
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
