package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRegisterJobRejectsDuplicates(t *testing.T) {
	s := NewService(arbor.NewLogger())

	require.NoError(t, s.RegisterJob("sweep", "@hourly", "test job", func() error { return nil }))
	err := s.RegisterJob("sweep", "@daily", "test job again", func() error { return nil })
	require.Error(t, err)
}

func TestRegisterJobRejectsBadSchedule(t *testing.T) {
	s := NewService(arbor.NewLogger())

	err := s.RegisterJob("sweep", "not a cron expression", "test job", func() error { return nil })
	require.Error(t, err)
}

func TestTriggerJobRunsImmediately(t *testing.T) {
	s := NewService(arbor.NewLogger())

	var runs atomic.Int32
	require.NoError(t, s.RegisterJob("sweep", "@daily", "test job", func() error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.TriggerJob("sweep"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTriggerUnknownJob(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.Error(t, s.TriggerJob("nope"))
}

func TestListJobsReportsLastError(t *testing.T) {
	s := NewService(arbor.NewLogger())

	done := make(chan struct{})
	require.NoError(t, s.RegisterJob("sweep", "@daily", "test job", func() error {
		defer close(done)
		return errors.New("upstream unreachable")
	}))

	require.NoError(t, s.TriggerJob("sweep"))
	<-done

	require.Eventually(t, func() bool {
		jobs := s.ListJobs()
		return len(jobs) == 1 && jobs[0].LastError == "upstream unreachable" && jobs[0].LastRun != nil
	}, time.Second, 10*time.Millisecond)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := NewService(arbor.NewLogger())

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.RegisterJob("sweep", "@daily", "test job", func() error {
		runs.Add(1)
		<-release
		return nil
	}))

	require.NoError(t, s.TriggerJob("sweep"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	// second trigger while the first is still in flight is dropped
	require.NoError(t, s.TriggerJob("sweep"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
}

func TestStartStop(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.RegisterJob("sweep", "@daily", "test job", func() error { return nil }))

	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.NotNil(t, jobs[0].NextRun)

	s.Stop()
	s.Stop()
}
