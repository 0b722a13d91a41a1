package jobs

import (
	"context"
	"time"
)

// Type enumerates the supported job variants.
type Type string

const (
	TypeFullIngestion      Type = "full_ingestion"
	TypeIncrementalRefresh Type = "incremental_refresh"
	TypeHistorical         Type = "historical_ingestion"
	TypeTrain              Type = "train"
	TypePredict            Type = "predict"
)

// Parameter names understood by the registered handlers.
const (
	ParamSeason  = "season"
	ParamVersion = "version"
)

// Status represents the lifecycle state for a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one submitted unit of work.
type Job struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	Params      map[string]string `json:"params,omitempty"`
	Status      Status            `json:"status"`
	Result      interface{}       `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	if j.Params != nil {
		cpy.Params = make(map[string]string, len(j.Params))
		for k, v := range j.Params {
			cpy.Params[k] = v
		}
	}
	return &cpy
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Handler performs a job. The returned value becomes the job's result.
type Handler func(ctx context.Context, params map[string]string) (interface{}, error)
