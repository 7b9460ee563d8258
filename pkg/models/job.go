package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeRescan = "rescan"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID         int         `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Type       string      `bun:",nullzero" json:"type"`
	Status     string      `bun:",nullzero" json:"status"`
	Data       string      `bun:",nullzero" json:"-"`
	DataParsed interface{} `bun:"-" json:"data"`
	ProcessID  *string     `json:"process_id,omitempty"`
	LibraryID  *int        `json:"library_id,omitempty"`
	// Error holds the failure message of a failed job.
	Error *string `json:"error,omitempty"`
}

// Finished reports whether the job has reached a terminal status.
func (job *Job) Finished() bool {
	return job.Status == JobStatusCompleted || job.Status == JobStatusFailed
}

// Fail marks the job failed with cause's message.
func (job *Job) Fail(cause error) {
	msg := cause.Error()
	job.Status = JobStatusFailed
	job.Error = &msg
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeRescan:
		job.DataParsed = &JobRescanData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// JobRescanData describes which library a rescan job walks. A nil LibraryID rescans every
// library.
type JobRescanData struct {
	LibraryID *int `json:"library_id,omitempty"`
}
