// Package healthcheck probes every configured upstream concurrently and
// folds the results into one aggregated report. A slow or dead upstream
// only affects its own record; the aggregation itself always completes
// within the bounded probe timeout.
package healthcheck

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"

	// StatusUnknown marks a probe that never completed, e.g. cut off by
	// the caller going away.
	StatusUnknown Status = "unknown"

	// StatusDegraded only ever applies to the aggregate, not a single
	// upstream.
	StatusDegraded Status = "degraded"
)

// Record is the probe result for one upstream.
type Record struct {
	Service   string    `json:"service"`
	Status    Status    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
	URL       string    `json:"url"`
	Error     string    `json:"error,omitempty"`
}

type Summary struct {
	Total            int     `json:"total_services"`
	Healthy          int     `json:"healthy_services"`
	Unhealthy        int     `json:"unhealthy_services"`
	HealthPercentage float64 `json:"health_percentage"`
}

// Report is the aggregated view over all upstreams.
type Report struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Record `json:"services"`
	Summary   Summary           `json:"summary"`
}

// Target is one upstream health endpoint to probe.
type Target struct {
	Name string
	URL  string
}

type Aggregator struct {
	mu       sync.Mutex
	targets  []Target
	timeout  time.Duration
	ttl      time.Duration
	client   *http.Client
	cached   *Report
	cachedAt time.Time
	now      func() time.Time
	stopChan chan struct{}
	running  bool
}

func NewAggregator(targets []Target, timeout, ttl time.Duration) *Aggregator {
	return &Aggregator{
		targets:  targets,
		timeout:  timeout,
		ttl:      ttl,
		client:   &http.Client{},
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Aggregate probes all targets in parallel and returns the combined
// report. Results are cached for the configured TTL so repeated gateway
// health checks don't hammer upstream health endpoints. A report cut
// short by the caller's context is returned but never cached, so one
// disconnecting client cannot serve every later caller a false
// all-down report for the whole TTL.
func (a *Aggregator) Aggregate(ctx context.Context) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && a.now().Sub(a.cachedAt) < a.ttl {
		return a.cached
	}

	report := a.probeAll(ctx)
	if ctx.Err() == nil {
		a.cached = report
		a.cachedAt = a.now()
	}

	return report
}

func (a *Aggregator) probeAll(ctx context.Context) *Report {
	records := make([]Record, len(a.targets))

	var wg sync.WaitGroup
	for i, target := range a.targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			records[i] = a.probe(ctx, t)
		}(i, target)
	}
	wg.Wait()

	services := make(map[string]Record, len(records))
	healthy := 0
	unhealthy := 0
	for _, rec := range records {
		services[rec.Service] = rec
		switch rec.Status {
		case StatusHealthy:
			healthy++
		case StatusUnhealthy:
			unhealthy++
		}
	}

	total := len(records)

	status := StatusHealthy
	if healthy == 0 {
		status = StatusUnhealthy
	} else if healthy < total {
		status = StatusDegraded
	}

	percentage := 0.0
	if total > 0 {
		percentage = math.Round(float64(healthy)/float64(total)*1000) / 10
	}

	return &Report{
		Status:    string(status),
		Timestamp: a.now(),
		Services:  services,
		Summary: Summary{
			Total:            total,
			Healthy:          healthy,
			Unhealthy:        unhealthy,
			HealthPercentage: percentage,
		},
	}
}

// probe checks one upstream with its own bounded timeout. Failures are
// folded into the record, never raised.
func (a *Aggregator) probe(ctx context.Context, target Target) Record {
	probeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	record := Record{
		Service:   target.Name,
		URL:       target.URL,
		CheckedAt: a.now(),
	}

	start := a.now()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.URL, nil)
	if err != nil {
		record.Status = StatusUnhealthy
		record.Error = err.Error()
		return record
	}

	resp, err := a.client.Do(req)
	record.LatencyMS = a.now().Sub(start).Milliseconds()
	if err != nil {
		// A probe cut off by the caller says nothing about the upstream.
		if errors.Is(err, context.Canceled) {
			record.Status = StatusUnknown
		} else {
			record.Status = StatusUnhealthy
		}
		record.Error = err.Error()
		return record
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		record.Status = StatusHealthy
	} else {
		record.Status = StatusUnhealthy
		record.Error = resp.Status
	}

	return record
}

// Start begins periodic background aggregation so the cache stays warm.
// Optional; with interval <= 0 probes happen on demand only.
func (a *Aggregator) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	log.Printf("Starting health aggregation for %d upstreams (interval: %v)", len(a.targets), interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.stopChan:
				return
			}
		}
	}()
}

func (a *Aggregator) refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cached = a.probeAll(context.Background())
	a.cachedAt = a.now()
}

// Stop halts background aggregation.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		close(a.stopChan)
		a.running = false
	}
}
