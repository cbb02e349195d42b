// Package scheduler implements the Scheduler component: cron-triggered
// dispatch to the daily-verse, cleanup, and metrics handlers (spec §4.10).
// The source dispatches on substrings of the cron string; this implementation
// wires each trigger to its handler by name instead (spec design note), using
// a hand-rolled field matcher since no cron library appears anywhere in the
// example pack. Grounded on the teacher's escalation/engine.go ticker-driven
// dispatch loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Job is a single named trigger: a cron expression and the handler it
// dispatches to. Dispatch is keyed on Name, never on the cron string's text.
type Job struct {
	Name    string
	Cron    string
	Handler func(ctx context.Context) error
}

// Scheduler polls once a minute and fires every job whose cron expression
// matches the current minute.
type Scheduler struct {
	jobs     []Job
	logger   *slog.Logger
	tickEvery time.Duration
	onRun    func(jobName string, err error)
}

// New creates a Scheduler. onRun, if set, observes every job completion
// (success or error) for telemetry purposes.
func New(logger *slog.Logger, onRun func(jobName string, err error)) *Scheduler {
	return &Scheduler{logger: logger, tickEvery: time.Minute, onRun: onRun}
}

// Register adds a job. Call before Run.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run blocks, firing matching jobs once per minute until ctx is cancelled.
// Errors are logged; the scheduler never retries automatically — the next
// scheduled fire is the retry (spec §4.10).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		if !matches(job.Cron, now) {
			continue
		}
		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) {
	err := job.Handler(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
	} else {
		s.logger.Info("scheduled job completed", "job", job.Name)
	}
	if s.onRun != nil {
		s.onRun(job.Name, err)
	}
}

// matches implements a standard 5-field cron matcher: minute hour
// day-of-month month day-of-week. Supports "*", a literal number, and
// comma-separated lists of literals — sufficient for the three fixed
// expressions this service schedules.
func matches(cron string, t time.Time) bool {
	fields := strings.Fields(cron)
	if len(fields) != 5 {
		return false
	}

	return fieldMatches(fields[0], t.Minute()) &&
		fieldMatches(fields[1], t.Hour()) &&
		fieldMatches(fields[2], t.Day()) &&
		fieldMatches(fields[3], int(t.Month())) &&
		fieldMatches(fields[4], int(t.Weekday()))
}

func fieldMatches(field string, value int) bool {
	if field == "*" {
		return true
	}
	for _, part := range strings.Split(field, ",") {
		if n, err := strconv.Atoi(part); err == nil && n == value {
			return true
		}
	}
	return false
}

// Describe renders a job's registration for startup logs.
func Describe(job Job) string {
	return fmt.Sprintf("%s (%s)", job.Name, job.Cron)
}
