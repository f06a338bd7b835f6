package pipeline

import (
	"time"

	"anipipe/internal/queue"
)

// Stage names, in execution order.
const (
	StageFetch     = "fetch"
	StageTransform = "transform"
	StagePublish   = "publish"
	StageCleanup   = "cleanup"
)

// Result is the structured outcome of one pipeline pass over an item.
// Failures carry the failing stage and a classified reason; they never
// propagate as panics or process exits.
type Result struct {
	Identity       string
	RequestID      string
	Status         queue.Status
	FailedStage    string
	Reason         string
	Classification string
	Batches        int
	// BatchNames lists the batches completed in this pass, in order.
	BatchNames []string
	Frames     int
	BytesIn        int64
	BytesOut       int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Succeeded reports whether the item reached completed status.
func (r Result) Succeeded() bool {
	return r.Status == queue.StatusCompleted
}

// Duration is the wall time of the pass.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
