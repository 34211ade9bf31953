package queue

import (
	"context"
	"time"
)

// Task kinds handled by the worker.
const (
	KindWorkbookImport  = "workbook_import"
	KindInboxSeed       = "inbox_seed"
	KindInboxSeedAll    = "inbox_seed_all"
	KindMessageDispatch = "message_dispatch"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// JobStatus tracks one enqueued task through its lifecycle.
type JobStatus struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	TargetID     string    `json:"targetId,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TaskQueue is the transport between the API and the worker. TargetID is
// kind-specific: a workbook ID for imports, a user ID for inbox seeding,
// a scheduled message ID for dispatch, empty for bulk seeding.
type TaskQueue interface {
	Enqueue(ctx context.Context, kind, targetID string) (JobStatus, error)
	GetJob(ctx context.Context, jobID string) (JobStatus, bool, error)
	Start(ctx context.Context, concurrency int, handler func(context.Context, JobStatus) error)
}

// ValidKind reports whether the worker knows how to run kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindWorkbookImport, KindInboxSeed, KindInboxSeedAll, KindMessageDispatch:
		return true
	}
	return false
}
