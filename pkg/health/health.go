// Package health runs background liveness and readiness probes and serves
// their state over HTTP.
//
// A probe flips to unhealthy only after failAfter consecutive failures and back
// to healthy after recoverAfter consecutive successes, so a single slow ping to
// the database does not take the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind tells whether a probe gates liveness or readiness.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Readiness {
		return "readiness"
	}
	return "liveness"
}

const (
	failAfter    = 3
	recoverAfter = 1
)

// probe is driven by exactly one goroutine; fails and oks need no locking.
// healthy and lastErr are read by HTTP handlers.
type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= recoverAfter {
		p.healthy.Store(true)
	}
}

// Monitor owns the probes of one process. It starts not ready; call
// SetReady(true) once wiring is complete.
type Monitor struct {
	ready   atomic.Bool
	started time.Time

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Monitor without probes.
func New() *Monitor {
	return &Monitor{started: time.Now()}
}

// Add registers a probe. Probes start healthy and must be registered before Start.
func (m *Monitor) Add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &probe{name: name, kind: kind, timeout: timeout, check: check}
	p.healthy.Store(true)
	m.probes = append(m.probes, p)
}

// Start runs every probe immediately and then once per interval until ctx is
// done or Stop is called.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	probes := append([]*probe(nil), m.probes...)
	m.mu.Unlock()

	for _, p := range probes {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.run(ctx)
		}
	}
}

// Stop halts the probe goroutines. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// SetReady toggles the manual readiness gate. The server clears it at the
// start of graceful shutdown.
func (m *Monitor) SetReady(ready bool) {
	m.ready.Store(ready)
}

// IsReady reports whether the gate is set and every readiness probe passes.
func (m *Monitor) IsReady() bool {
	return m.ready.Load() && len(failures(m.snapshot(), Readiness)) == 0
}

func (m *Monitor) snapshot() []*probe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*probe(nil), m.probes...)
}

func failures(probes []*probe, kind Kind) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if p.kind != kind || p.healthy.Load() {
			continue
		}
		if err := p.err(); err != nil {
			out[p.name] = err.Error()
		} else {
			out[p.name] = "failing"
		}
	}
	return out
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeLive answers /livez: 200 while all liveness probes pass, 503 otherwise.
func (m *Monitor) ServeLive(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, failures(m.snapshot(), Liveness))
}

// ServeReady answers /readyz: 200 when the gate is set and all readiness
// probes pass, 503 with the failing probes otherwise.
func (m *Monitor) ServeReady(w http.ResponseWriter, _ *http.Request) {
	failed := failures(m.snapshot(), Readiness)
	if !m.ready.Load() {
		failed["_ready"] = "not accepting traffic"
	}
	writeProbe(w, failed)
}

func writeProbe(w http.ResponseWriter, failed map[string]string) {
	resp := probeResponse{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp = probeResponse{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// CheckStatus is one probe in a Report.
type CheckStatus struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the body of /health.
type Report struct {
	Status string        `json:"status"`
	Ready  bool          `json:"ready"`
	Uptime string        `json:"uptime"`
	Checks []CheckStatus `json:"checks"`
}

// Report summarizes every probe. Status is "degraded" when any probe fails.
func (m *Monitor) Report() Report {
	probes := m.snapshot()
	r := Report{
		Status: "ok",
		Ready:  m.IsReady(),
		Uptime: time.Since(m.started).Truncate(time.Second).String(),
		Checks: make([]CheckStatus, 0, len(probes)),
	}
	for _, p := range probes {
		cs := CheckStatus{Name: p.name, Kind: p.kind.String(), Healthy: p.healthy.Load()}
		if !cs.Healthy {
			r.Status = "degraded"
			if err := p.err(); err != nil {
				cs.Error = err.Error()
			}
		}
		r.Checks = append(r.Checks, cs)
	}
	sort.Slice(r.Checks, func(i, j int) bool { return r.Checks[i].Name < r.Checks[j].Name })
	return r
}

// ServeReport answers /health with the full Report. It always returns 200 so
// that dashboards can read degraded states.
func (m *Monitor) ServeReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Report())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Status is already written; a failed encode means the client went away.
	_ = json.NewEncoder(w).Encode(v)
}
