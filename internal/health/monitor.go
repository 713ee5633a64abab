package health

import (
	"context"
	"sync"
	"time"
)

// DetectionStatus exposes the detection side's liveness signals.
type DetectionStatus interface {
	Connected() bool
	Reconnects() uint64
	LastScan() time.Time
	SkippedScans() uint64
	Admitted() uint64
}

// FulfillmentStatus exposes the fulfillment side's counters.
type FulfillmentStatus interface {
	Confirmed() uint64
	Failed() uint64
}

// Monitor aggregates health status from the oracle's components.
type Monitor struct {
	detection    DetectionStatus
	fulfillment  FulfillmentStatus
	scanInterval time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport OracleHealth
}

// NewMonitor creates a new health monitor. scanInterval is used to judge
// scan staleness.
func NewMonitor(detection DetectionStatus, fulfillment FulfillmentStatus, scanInterval time.Duration) *Monitor {
	return &Monitor{
		detection:    detection,
		fulfillment:  fulfillment,
		scanInterval: scanInterval,
	}
}

// CheckHealth assembles the current health report. Checks are rate limited
// to once per 10s; callers in between get the cached report.
func (m *Monitor) CheckHealth(ctx context.Context) OracleHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := OracleHealth{
		Status:             StatusHealthy,
		SubscriptionActive: m.detection.Connected(),
		Reconnects:         m.detection.Reconnects(),
		LastScan:           m.detection.LastScan(),
		SkippedScans:       m.detection.SkippedScans(),
		Admitted:           m.detection.Admitted(),
		Confirmed:          m.fulfillment.Confirmed(),
		Failed:             m.fulfillment.Failed(),
	}

	scanStale := !report.LastScan.IsZero() && time.Since(report.LastScan) > 3*m.scanInterval

	// The scan covers for a dead subscription, so losing one channel is
	// degraded; losing both leaves no detection path at all.
	if !report.SubscriptionActive && scanStale {
		report.Status = StatusCritical
	} else if !report.SubscriptionActive || scanStale {
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
