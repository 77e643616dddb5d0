package state

import (
	"context"
	"sync"
	"time"

	"github.com/user/tiredmanhattan/internal/gateway"
	"github.com/user/tiredmanhattan/internal/types"
)

// DefaultCapacity is how many runs a RunLog keeps when none is given.
const DefaultCapacity = 200

// Record summarises one finished run. It carries no mention text.
type Record struct {
	Seq        int64         `json:"seq"`
	RunID      types.RunID   `json:"run_id"`
	TweetID    types.TweetID `json:"tweet_id"`
	Author     string        `json:"author"`
	Status     string        `json:"status"`
	DropReason string        `json:"drop_reason,omitempty"`
	ReplyID    types.TweetID `json:"reply_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   string        `json:"duration,omitempty"`
	At         time.Time     `json:"at"`
}

// RecordFromRun converts a finished gateway run.
func RecordFromRun(run *gateway.Run) *Record {
	rec := &Record{
		RunID:      run.ID,
		TweetID:    run.Mention.ID,
		Author:     run.Mention.AuthorHandle,
		Status:     string(run.Status),
		DropReason: run.DropReason,
		ReplyID:    run.ReplyID,
		At:         time.Now(),
	}
	if run.EndedAt != nil {
		rec.At = *run.EndedAt
		if run.StartedAt != nil {
			rec.Duration = run.EndedAt.Sub(*run.StartedAt).String()
		}
	}
	if run.Error != nil {
		rec.Error = run.Error.Error()
	}
	return rec
}

// RunLog is a fixed-size ring of the most recent run records.
type RunLog struct {
	mu      sync.Mutex
	records []*Record
	next    int
	full    bool
	seq     int64
}

// NewRunLog creates a RunLog holding up to capacity records.
func NewRunLog(capacity int) *RunLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RunLog{records: make([]*Record, capacity)}
}

// Append stores rec with the next sequence number, evicting the oldest
// record when the log is full.
func (l *RunLog) Append(_ context.Context, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec.Seq = l.seq
	l.records[l.next] = rec
	l.next = (l.next + 1) % len(l.records)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Tail returns up to limit of the newest records, oldest first. A limit of
// zero or less returns everything held.
func (l *RunLog) Tail(_ context.Context, limit int) ([]*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ordered []*Record
	if l.full {
		ordered = append(ordered, l.records[l.next:]...)
	}
	ordered = append(ordered, l.records[:l.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered, nil
}

// Len returns the number of records held.
func (l *RunLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.records)
	}
	return l.next
}
