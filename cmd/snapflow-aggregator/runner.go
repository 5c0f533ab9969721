package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/observability"
)

// jobObserver is implemented by *observability.Metrics
type jobObserver interface {
	ObserveJob(job, status string, duration time.Duration)
}

// jobRunner runs one job with its own timeout, span, run id and panic guard.
// Errors are logged and counted here; callers may ignore them.
type jobRunner struct {
	logger   *observability.Logger
	observer jobObserver
	timeout  time.Duration
}

func (r *jobRunner) run(parent context.Context, job analytics.Job) (err error) {
	name := job.Name()
	runID := uuid.NewString()

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	ctx, span := observability.StartJobSpan(ctx, name, runID)
	ctx = observability.WithJob(observability.WithRunID(ctx, runID), name)
	ctx = observability.WithLogger(ctx, r.logger)
	logger := observability.UpdateLoggerWithTraceContext(ctx, observability.FromContext(ctx))

	start := time.Now()
	logger.Info("Job started")

	defer func() {
		duration := time.Since(start)
		status := observability.JobStatusSuccess
		var panicErr *observability.PanicError
		switch {
		case errors.As(err, &panicErr):
			status = observability.JobStatusPanic
		case err != nil:
			status = observability.JobStatusFailure
		}
		r.observer.ObserveJob(name, status, duration)
		observability.EndSpan(span, err)

		if err != nil {
			logger.WithError(err).WithField("duration", duration.String()).Error("Job failed")
			return
		}
		logger.WithField("duration", duration.String()).Info("Job finished")
	}()
	defer observability.RecoverToError(&err, logger, name)

	return job.Run(ctx)
}

// selectJobs returns the job called name, or every job for "all"
func selectJobs(jobs []analytics.Job, name string) ([]analytics.Job, error) {
	if name == "" || name == "all" {
		return jobs, nil
	}
	for _, job := range jobs {
		if job.Name() == name {
			return []analytics.Job{job}, nil
		}
	}
	known := make([]string, 0, len(jobs))
	for _, job := range jobs {
		known = append(known, job.Name())
	}
	return nil, fmt.Errorf("unknown job %q (known: %v)", name, known)
}

// runOnce runs jobs one after another and returns every failure
func (r *jobRunner) runOnce(ctx context.Context, jobs []analytics.Job) error {
	var errs []error
	for _, job := range jobs {
		if err := r.run(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// newScheduler builds a UTC cron scheduler that recovers panics and skips a
// job's tick while its previous run is still going. Jobs do not exclude
// each other.
func newScheduler(logger *observability.Logger) *cron.Cron {
	cl := cronLogger{logger: logger}
	return cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// scheduleJobs registers every job under its configured spec. Jobs without
// a spec are left unscheduled.
func scheduleJobs(ctx context.Context, c *cron.Cron, r *jobRunner, jobs []analytics.Job, schedules map[string]string) (int, error) {
	scheduled := 0
	for _, job := range jobs {
		spec, ok := schedules[job.Name()]
		if !ok || spec == "" {
			r.logger.WithField("job", job.Name()).Warn("No schedule configured, job disabled")
			continue
		}
		job := job
		if _, err := c.AddFunc(spec, func() { _ = r.run(ctx, job) }); err != nil {
			return scheduled, fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
		}
		r.logger.WithFields(map[string]interface{}{
			"job":      job.Name(),
			"schedule": spec,
		}).Info("Job scheduled")
		scheduled++
	}
	return scheduled, nil
}

// cronLogger adapts observability.Logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
