// Package scheduler runs the periodic settlement jobs. Every run of a job
// is traced, and concurrent triggers of the same job in one process share a
// single run. Cross-process exclusion is left to the jobs' own row claims.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownJob is returned by Trigger for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// JobFunc performs one run and returns a report for the caller.
type JobFunc func(ctx context.Context) (any, error)

// Job is a named periodic task. A zero Every registers the job for manual
// triggers only.
type Job struct {
	Name  string
	Every time.Duration
	Run   JobFunc
}

type Scheduler struct {
	jobs     map[string]Job
	inflight singleflight.Group
	tracer   trace.Tracer
	logger   *slog.Logger
}

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		jobs:   make(map[string]Job, len(jobs)),
		tracer: otel.Tracer("github.com/amirasaad/settlement/pkg/scheduler"),
		logger: logger.With("component", "scheduler"),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

// Names lists the registered jobs in order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Trigger runs a job now. A trigger that arrives while the same job is
// running waits for that run and gets its result.
func (s *Scheduler) Trigger(ctx context.Context, name string) (any, error) {
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	res, err, shared := s.inflight.Do(name, func() (any, error) {
		return s.run(ctx, job)
	})
	if shared {
		s.logger.Debug("job run shared", "job", name)
	}
	return res, err
}

func (s *Scheduler) run(ctx context.Context, job Job) (any, error) {
	ctx, span := s.tracer.Start(ctx, "job."+job.Name, trace.WithAttributes(attribute.String("job.name", job.Name)))
	defer span.End()

	start := time.Now()
	res, err := job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("job failed", "job", job.Name, "elapsed", elapsed, "error", err)
		return res, err
	}
	s.logger.Debug("job finished", "job", job.Name, "elapsed", elapsed, "report", res)
	return res, nil
}

// Start runs every periodic job on its interval until ctx is cancelled. A
// failed run is logged and the job keeps its schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.Names() {
		job := s.jobs[name]
		if job.Every <= 0 {
			continue
		}
		g.Go(func() error {
			s.logger.Info("job scheduled", "job", job.Name, "every", job.Every)
			ticker := time.NewTicker(job.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					_, _ = s.Trigger(ctx, job.Name)
				}
			}
		})
	}
	return g.Wait()
}
