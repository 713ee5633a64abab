// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the oracle.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// OracleHealth contains health metrics for the running oracle.
type OracleHealth struct {
	Status             SystemStatus `json:"status"`
	SubscriptionActive bool         `json:"subscription_active"`
	Reconnects         uint64       `json:"reconnects"`
	LastScan           time.Time    `json:"last_scan"`
	SkippedScans       uint64       `json:"skipped_scans"`
	Admitted           uint64       `json:"admitted"`
	Confirmed          uint64       `json:"confirmed"`
	Failed             uint64       `json:"failed"`
}
