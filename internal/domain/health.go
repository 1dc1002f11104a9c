package domain

import "time"

// HealthState classifies the outcome of a dependency probe.
type HealthState string

const (
	HealthStatusOK       HealthState = "ok"
	HealthStatusDegraded HealthState = "degraded"
	HealthStatusError    HealthState = "error"
)

// SystemHealthCheck records the result of probing a single dependency.
type SystemHealthCheck struct {
	Status    HealthState   `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	CheckedAt time.Time     `json:"checked_at"`
}

// SystemHealthReport aggregates dependency checks into one readiness verdict.
type SystemHealthReport struct {
	Status      HealthState                  `json:"status"`
	Checks      map[string]SystemHealthCheck `json:"checks"`
	Version     string                       `json:"version,omitempty"`
	Environment string                       `json:"environment,omitempty"`
	Uptime      time.Duration                `json:"uptime_ms,omitempty"`
	GeneratedAt time.Time                    `json:"generated_at"`
}
