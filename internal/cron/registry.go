package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of scheduled maintenance run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs in registration order, each with its own cadence on
// top of the service tick. Cadence is tracked per process: after a lock
// handover the new holder runs every job on its first cycle.
type Registry struct {
	mu      sync.Mutex
	entries []*scheduled
}

// NewRegistry registers jobs to run on every cycle. Nil jobs are skipped; a
// duplicate name panics, the same way prometheus.MustRegister does.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Schedule(job, 0); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds job to run on every cycle.
func (r *Registry) Register(job Job) error {
	return r.Schedule(job, 0)
}

// Schedule adds job to run at most once per every. Names key logs, metrics
// and cadence, so they must be unique.
func (r *Registry) Schedule(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job required")
	}
	name := job.Name()
	if name == "" {
		return errors.New("job name required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.job.Name() == name {
			return fmt.Errorf("job %q already registered", name)
		}
	}
	r.entries = append(r.entries, &scheduled{job: job, every: every})
	return nil
}

// Due returns the jobs whose cadence has elapsed at now and stamps them as
// run, so callers must only ask once they are going to run them.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []Job
	for _, entry := range r.entries {
		if entry.every > 0 && !entry.lastRun.IsZero() && now.Before(entry.lastRun.Add(entry.every)) {
			continue
		}
		entry.lastRun = now
		due = append(due, entry.job)
	}
	return due
}

// Jobs returns every registered job regardless of cadence.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.entries))
	for _, entry := range r.entries {
		jobs = append(jobs, entry.job)
	}
	return jobs
}
