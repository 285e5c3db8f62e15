package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/cbio-forecast/pkg/config"
	"github.com/greenledger/cbio-forecast/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failures int
	calls    int
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(logger.Nop(), 0, 0)

	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 19 * * 1-5"}))
	assert.Error(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 19 * * 1-5"}), "duplicate name")
	assert.Error(t, s.AddJob(&countingJob{name: "b", schedule: "0 19 * * 1-5"}), "five fields are rejected")
	assert.Equal(t, []string{"a"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
}

func TestScheduler_RunJobRetries(t *testing.T) {
	s := New(logger.Nop(), 2, time.Millisecond)
	job := &countingJob{name: "retrain", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("retrain")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, job.calls)

	history, err := s.GetJobHistory("retrain")
	require.NoError(t, err)
	last, ok := history.Last()
	require.True(t, ok)
	assert.True(t, last.Success)
}

func TestScheduler_RunJobGivesUp(t *testing.T) {
	s := New(logger.Nop(), 1, time.Millisecond)
	job := &countingJob{name: "retrain", schedule: "@daily", failures: 5}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("retrain")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "transient", result.Error)
	assert.Equal(t, 2, job.calls)

	_, err = s.RunJob("missing")
	assert.Error(t, err)
}

func TestScheduler_NextRun(t *testing.T) {
	s := New(logger.Nop(), 0, 0)
	require.NoError(t, s.AddJob(&countingJob{name: "retrain", schedule: "@hourly"}))

	s.Start()
	defer s.Stop()

	next, err := s.NextRun("retrain")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Equal(t, 0.0, h.GetSuccessRate())

	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}

func TestScheduler_StopLogsJobSummary(t *testing.T) {
	var buf bytes.Buffer
	s := New(logger.NewWithWriter(&config.Config{Env: "test", LogLevel: "info"}, &buf), 0, 0)
	require.NoError(t, s.AddJob(&countingJob{name: "retrain", schedule: "@daily", failures: 1}))
	require.NoError(t, s.AddJob(&countingJob{name: "idle", schedule: "@daily"}))

	_, err := s.RunJob("retrain")
	require.NoError(t, err)
	_, err = s.RunJob("retrain")
	require.NoError(t, err)

	s.Start()
	s.Stop()

	var summaries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "Job summary" {
			summaries = append(summaries, entry)
		}
	}

	require.Len(t, summaries, 1, "jobs that never ran are skipped")
	assert.Equal(t, "retrain", summaries[0]["job"])
	assert.Equal(t, 2.0, summaries[0]["runs"])
	assert.InDelta(t, 0.5, summaries[0]["success_rate"], 1e-9)
	assert.Equal(t, true, summaries[0]["last_success"])
}
