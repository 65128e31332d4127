// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SyncHealth describes how far the pipeline is behind the node.
type SyncHealth struct {
	Status       SystemStatus `json:"status"`
	Running      bool         `json:"running"`
	CurrentBlock int32        `json:"current_block"`
	LatestBlock  int32        `json:"latest_block"`
	BlockLag     int64        `json:"block_lag"`
	Listeners    []string     `json:"listeners"`
	LastError    string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Sync         SyncHealth              `json:"sync"`
	Watches      map[string]int          `json:"watches"`
	Components   map[string]SystemStatus `json:"components"`
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
