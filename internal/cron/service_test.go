package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type busyLock struct{}

func (busyLock) Acquire(context.Context) (bool, error) { return false, nil }
func (busyLock) Release(context.Context) error         { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(success, failure),
		Lock:     NewLocalLock(),
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failure.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	byJob := map[string]string{}
	for _, family := range families {
		if family.GetName() != "storefront_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			byJob[labels["job"]] = labels["result"]
		}
	}
	require.Equal(t, map[string]string{"success": metrics.JobResultSuccess, "fail": metrics.JobResultFailure}, byJob)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     busyLock{},
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     NewLocalLock(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
	require.Equal(t, 1, job.runs)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: NewLocalLock()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}

type panicJob struct{}

func (panicJob) Name() string              { return "panics" }
func (panicJob) Run(context.Context) error { panic("bad job") }

type deadlineJob struct{ deadline time.Duration }

func (d *deadlineJob) Name() string { return "deadline" }

func (d *deadlineJob) Run(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		d.deadline = time.Until(dl)
	}
	return nil
}

func TestRunOnceSurvivesPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(panicJob{}, after),
		Lock:     NewLocalLock(),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 1, after.runs)
}

func TestRunOnceBoundsJobsByTimeout(t *testing.T) {
	job := &deadlineJob{}
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   NewRegistry(job),
		Lock:       NewLocalLock(),
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Greater(t, job.deadline, 50*time.Second)
	require.LessOrEqual(t, job.deadline, time.Minute)
}

func TestRunOnceSkipsJobsNotYetDue(t *testing.T) {
	hourly := &testJob{name: "hourly"}
	registry := NewRegistry()
	require.NoError(t, registry.Schedule(hourly, time.Hour))
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     NewLocalLock(),
	})
	require.NoError(t, err)

	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.RunOnce(context.Background()))
	now = now.Add(10 * time.Minute)
	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 1, hourly.runs)

	now = now.Add(time.Hour)
	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 2, hourly.runs)
}
