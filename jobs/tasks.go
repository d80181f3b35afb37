package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge sweeps expired session audit rows and orphaned
	// credential keys.
	TaskSessionPurge = "sessions:purge"
)

// SessionPurgePayload carries scheduling metadata for the purge sweep.
type SessionPurgePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionPurgeTask constructs an Asynq task for the session sweep.
func NewSessionPurgeTask(at time.Time) (*asynq.Task, error) {
	payload := SessionPurgePayload{ScheduledFor: at}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, body, asynq.Queue(QueueDefault)), nil
}
