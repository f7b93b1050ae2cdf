// Package metrics collects per-handler request counters and latencies via
// middleware and exposes them on a scrape endpoint in Prometheus text format,
// together with basic system gauges.
package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Collector accumulates request counters. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	counts  map[sample]int64         // requests per handler and status code
	totals  map[string]int64         // requests per handler
	latency map[string]time.Duration // cumulative latency per handler
	started time.Time
}

type sample struct {
	handler string
	code    int
}

// New creates an empty collector
func New() *Collector {
	return &Collector{
		counts:  make(map[sample]int64),
		totals:  make(map[string]int64),
		latency: make(map[string]time.Duration),
		started: time.Now(),
	}
}

// Middleware instruments a route, counting requests by status code and
// accumulating latency under the given handler name
func (c *Collector) Middleware(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			c.observe(handler, ww.status, time.Since(st))
		})
	}
}

func (c *Collector) observe(handler string, code int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[sample{handler: handler, code: code}]++
	c.totals[handler]++
	c.latency[handler] += elapsed
}

// statusWriter captures the status code written by the handler
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler serves the scrape endpoint. Counter lines are sorted for stable output.
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	lines := make([]string, 0, len(c.counts)+2*len(c.totals))
	for s, n := range c.counts {
		lines = append(lines, fmt.Sprintf("tasklist_http_requests_total{handler=%q,code=\"%d\"} %d", s.handler, s.code, n))
	}
	for handler, n := range c.totals {
		lines = append(lines, fmt.Sprintf("tasklist_http_request_duration_seconds_count{handler=%q} %d", handler, n))
		lines = append(lines, fmt.Sprintf("tasklist_http_request_duration_seconds_sum{handler=%q} %.6f", handler, c.latency[handler].Seconds()))
	}
	uptime := time.Since(c.started).Seconds()
	c.mu.Unlock()

	sort.Strings(lines)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "tasklist_uptime_seconds %.3f\n", uptime)
	fmt.Fprintf(w, "tasklist_goroutines %d\n", runtime.NumGoroutine())
	writeSystemGauges(w)
}

// writeSystemGauges reports host-level gauges, each best-effort
func writeSystemGauges(w http.ResponseWriter) {
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		fmt.Fprintf(w, "tasklist_system_cpu_percent %.2f\n", cpuPercent[0])
	} else if err != nil {
		log.Printf("[WARN] failed to get CPU: %v", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(w, "tasklist_system_memory_used_percent %.2f\n", v.UsedPercent)
	} else {
		log.Printf("[WARN] failed to get memory: %v", err)
	}

	if loads, err := load.Avg(); err == nil {
		fmt.Fprintf(w, "tasklist_system_load1 %.2f\n", loads.Load1)
	} else {
		log.Printf("[WARN] failed to get load average: %v", err)
	}
}
