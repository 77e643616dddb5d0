package gateway

import (
	"time"

	"github.com/user/tiredmanhattan/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusDropped  RunStatus = "dropped"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks the handling of a single mention.
type Run struct {
	ID        types.RunID
	Mention   *types.Mention
	Status    RunStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	// DropReason is set when the mention was declined.
	DropReason string
	ReplyID    types.TweetID
}

// NewRun creates a Run in the Queued state for the given mention.
func NewRun(mention *types.Mention) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Mention:   mention,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	switch {
	case err != nil:
		r.Status = RunStatusFailed
	case r.DropReason != "":
		r.Status = RunStatusDropped
	default:
		r.Status = RunStatusComplete
	}
}
