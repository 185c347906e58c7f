package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency_ns"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitor runs registered component checks on demand.
type HealthMonitor struct {
	mu         sync.RWMutex
	startTime  time.Time
	timeout    time.Duration
	components map[string]HealthCheck
	breakers   *CircuitBreakerRegistry
}

// NewHealthMonitor creates a new health monitor. Each check is bounded by timeout.
func NewHealthMonitor(timeout time.Duration, breakers *CircuitBreakerRegistry) *HealthMonitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthMonitor{
		startTime:  time.Now(),
		timeout:    timeout,
		components: make(map[string]HealthCheck),
		breakers:   breakers,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status     HealthStatus          `json:"status"`
	Uptime     string                `json:"uptime"`
	Components []ComponentHealth     `json:"components"`
	Providers  []CircuitBreakerStats `json:"providers,omitempty"`
	Goroutines int                   `json:"goroutines"`
}

// Check runs every registered check concurrently and aggregates the result.
// An open provider circuit degrades the system but does not make it unhealthy.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.components))
	for name, check := range m.components {
		checks[name] = check
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make([]ComponentHealth, 0, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			h := check(ctx)
			if h.Name == "" {
				h.Name = name
			}
			resMu.Lock()
			results = append(results, h)
			resMu.Unlock()
		}(name, check)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	health := SystemHealth{
		Status:     HealthStatusHealthy,
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Components: results,
		Goroutines: runtime.NumGoroutine(),
	}
	for _, h := range results {
		health.Status = worse(health.Status, h.Status)
	}
	if m.breakers != nil {
		health.Providers = m.breakers.AllStats()
		for _, s := range health.Providers {
			if s.State != CircuitClosed {
				health.Status = worse(health.Status, HealthStatusDegraded)
			}
		}
	}
	return health
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// HealthHTTPHandler returns an HTTP handler for health checks.
func (m *HealthMonitor) HealthHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	}
}

// PingHealthCheck creates a health check from a ping function, such as a
// database or cache connection. Responses slower than slow are degraded.
func PingHealthCheck(name string, slow time.Duration, ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{
			Name:      name,
			LastCheck: time.Now(),
		}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		switch {
		case err != nil:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("ping failed: %v", err)
		case slow > 0 && health.Latency > slow:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("slow: %v", health.Latency.Round(time.Millisecond))
		default:
			health.Status = HealthStatusHealthy
		}
		return health
	}
}
