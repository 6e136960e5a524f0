package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// Scheduler wraps a gocron scheduler for the daemon's periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create scheduler").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start(context.Context) {
	s.logger.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop(context.Context) error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval. Runs never overlap; a run that is
// due while the previous one is still going is skipped.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", errors.ValidationError("schedule interval must be positive").
			WithContext("job", name).WithContext("interval", interval.String()).Build()
	}
	return s.newJob(name, gocron.DurationJob(interval), fn)
}

// ScheduleCron runs fn on a standard five-field cron expression.
func (s *Scheduler) ScheduleCron(name, expr string, fn func()) (string, error) {
	return s.newJob(name, gocron.CronJob(expr, false), fn)
}

func (s *Scheduler) newJob(name string, def gocron.JobDefinition, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(def,
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "failed to schedule job").
			WithContext("job", name).Build()
	}
	s.logger.Debug("Scheduled job", slog.String("job", name), slog.String("id", job.ID().String()))
	return job.ID().String(), nil
}
