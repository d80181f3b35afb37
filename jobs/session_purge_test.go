package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewSessionPurgeTask(t *testing.T) {
	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	task, err := NewSessionPurgeTask(at)
	require.NoError(t, err)
	require.Equal(t, TaskSessionPurge, task.Type())

	var payload SessionPurgePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.ScheduledFor.Equal(at))
}

func TestSessionPurgeSkipsCorruptPayload(t *testing.T) {
	job := NewSessionPurgeJob(nil, nil, nil, nil, nil)
	task := asynq.NewTask(TaskSessionPurge, []byte("{not json"))

	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
