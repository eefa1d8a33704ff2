package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry := NewRegistry(jobA, nil)
	require.Error(t, registry.Register(nil))
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Equal(t, []Job{jobA, jobB}, jobs)

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndUnnamedJobs(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "reaper"})
	require.Error(t, registry.Schedule(&stubJob{name: "reaper"}, time.Hour))
	require.Error(t, registry.Register(&stubJob{}))
	require.Len(t, registry.Jobs(), 1)

	require.Panics(t, func() { NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"}) })
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	everyCycle := &stubJob{name: "every-cycle"}
	hourly := &stubJob{name: "hourly"}
	registry := NewRegistry(everyCycle)
	require.NoError(t, registry.Schedule(hourly, time.Hour))

	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, []Job{everyCycle, hourly}, registry.Due(start))
	require.Equal(t, []Job{everyCycle}, registry.Due(start.Add(5*time.Minute)))
	require.Equal(t, []Job{everyCycle}, registry.Due(start.Add(59*time.Minute)))
	require.Equal(t, []Job{everyCycle, hourly}, registry.Due(start.Add(time.Hour)))
}
