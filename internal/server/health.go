package server

import (
	"context"
	"sync"
	"time"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Dependency is an external system the service talks to.
type Dependency struct {
	Name string
	// Critical dependencies make the service unhealthy when down. The
	// identity graph is not critical because resolution degrades to
	// fallback identities.
	Critical bool
	Ping     func(ctx context.Context) error
}

// DependencyHealth is the health of one dependency.
type DependencyHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	Critical  bool         `json:"critical"`
	LatencyMs int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// Monitor aggregates health status from dependencies.
type Monitor struct {
	deps       []Dependency
	timeout    time.Duration
	minPeriod  time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(deps ...Dependency) *Monitor {
	return &Monitor{
		deps:      deps,
		timeout:   2 * time.Second,
		minPeriod: 5 * time.Second,
	}
}

// CheckHealth pings every dependency. Results are reused for a short period
// to avoid hammering dependencies from frequent probes.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.minPeriod && m.lastReport.Dependencies != nil {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Dependencies: make(map[string]DependencyHealth, len(m.deps)),
		CheckedAt:    time.Now().UTC(),
	}

	for _, dep := range m.deps {
		pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		err := dep.Ping(pingCtx)
		cancel()

		h := DependencyHealth{
			Name:      dep.Name,
			Status:    StatusHealthy,
			Critical:  dep.Critical,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			h.Error = err.Error()
			h.Status = StatusDegraded
			if dep.Critical {
				h.Status = StatusCritical
			}
		}
		report.Dependencies[dep.Name] = h

		// Worst case wins
		if h.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if h.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
