package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/blockwatch/internal/indexing/indexer"
)

// StatusSource reports the pipeline status.
type StatusSource interface {
	GetStatus() indexer.Status
}

// WatchCounter counts the active watches of one kind.
type WatchCounter func(ctx context.Context) (int, error)

// Pinger checks a dependency such as the database.
type Pinger func(ctx context.Context) error

// Monitor aggregates health status from various system components.
type Monitor struct {
	source     StatusSource
	watches    map[string]WatchCounter
	components map[string]Pinger
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(source StatusSource) *Monitor {
	return &Monitor{
		source:     source,
		watches:    make(map[string]WatchCounter),
		components: make(map[string]Pinger),
		cacheTTL:   10 * time.Second,
	}
}

// AddWatchCounter reports the active watch count of kind.
func (m *Monitor) AddWatchCounter(kind string, count WatchCounter) {
	m.watches[kind] = count
}

// AddComponent adds a dependency check. A failing component is critical.
func (m *Monitor) AddComponent(name string, ping Pinger) {
	m.components[name] = ping
}

// CheckHealth builds a report, reusing the previous one for cacheTTL.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid spamming the database
	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return m.lastReport
	}

	status := m.source.GetStatus()
	report := &HealthReport{
		Sync: SyncHealth{
			Status:       StatusHealthy,
			Running:      status.Running,
			CurrentBlock: status.CurrentBlock,
			LatestBlock:  status.LatestBlock,
			BlockLag:     status.Lag,
			Listeners:    status.Listeners,
			LastError:    status.LastError,
		},
		Watches:    make(map[string]int, len(m.watches)),
		Components: make(map[string]SystemStatus, len(m.components)),
	}

	// Evaluate sync status
	if !status.Running || status.Lag > 100 {
		report.Sync.Status = StatusCritical
	} else if status.Lag > 10 || status.LastError != "" {
		report.Sync.Status = StatusDegraded
	}
	report.SystemStatus = report.Sync.Status

	for kind, count := range m.watches {
		n, err := count(ctx)
		if err != nil {
			slog.Warn("Failed to count watches", "kind", kind, "error", err)
			report.Watches[kind] = -1
			report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
			continue
		}
		report.Watches[kind] = n
	}

	for name, ping := range m.components {
		if err := ping(ctx); err != nil {
			slog.Warn("Health check failed", "component", name, "error", err)
			report.Components[name] = StatusCritical
			report.SystemStatus = StatusCritical
			continue
		}
		report.Components[name] = StatusHealthy
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
