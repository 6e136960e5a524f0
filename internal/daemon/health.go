package daemon

import (
	"context"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/repository"
	"git.home.luguber.info/inful/contentloader/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks runs every check. The daemon is unhealthy when it is
// not running or the repository is unreachable, and degraded while units
// wait for a content reader.
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{
		d.timed("daemon", func() (HealthStatus, string) {
			if s := d.GetStatus(); s != StatusRunning {
				return HealthStatusUnhealthy, "daemon is " + string(s)
			}
			return HealthStatusHealthy, ""
		}),
		d.timed("repository", func() (HealthStatus, string) {
			err := d.withSession(ctx, func(s repository.Session) error {
				_, err := s.ItemExists(ctx, repository.RootPath)
				return err
			})
			if err != nil {
				return HealthStatusUnhealthy, err.Error()
			}
			return HealthStatusHealthy, ""
		}),
		d.timed("deferred_units", func() (HealthStatus, string) {
			if n := len(d.engine.Deferred()); n > 0 {
				return HealthStatusDegraded, "units are waiting for a content reader"
			}
			return HealthStatusHealthy, ""
		}),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	return &HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    d.uptime().String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

func (d *Daemon) timed(name string, check func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := check()
	return HealthCheck{
		Name:        name,
		Status:      status,
		Message:     msg,
		Duration:    time.Since(start),
		LastChecked: start,
	}
}

func (d *Daemon) uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime).Truncate(time.Second)
}

// StatusSnapshot summarizes the running instance.
func (d *Daemon) StatusSnapshot() StatusResponse {
	return StatusResponse{
		Status:     d.GetStatus(),
		InstanceID: d.instanceID,
		Version:    version.Version,
		RootPath:   d.store.RootPath(),
		Units:      len(d.catalog.Units()),
		Deferred:   len(d.engine.Deferred()),
		Uptime:     d.uptime().String(),
	}
}
