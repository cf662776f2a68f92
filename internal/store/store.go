// Package store is the local SQLite persistence layer for this service's
// own learning state and trajectory archive: the Adaptive Dispatcher's
// weight vector, the Health/Failure Ledger's per-tool health records
// (compacted snapshots, not the rolling in-memory windows), and completed
// task trajectories. It is deliberately narrow — it persists and reloads
// plain records, leaving the translation to/from live component state to
// the composition root.
package store

import (
	"context"
	"time"
)

// WeightsRecord is the persisted form of the Adaptive Dispatcher's scoring
// weight vector. There is exactly one row: the dispatcher's current state.
type WeightsRecord struct {
	Historical  float64   `json:"historical"`
	Performance float64   `json:"performance"`
	Context     float64   `json:"context"`
	Reliability float64   `json:"reliability"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HealthRecord is a compacted snapshot of one tool's Health/Failure Ledger
// state, persisted so reliability history survives a process restart.
type HealthRecord struct {
	ToolID              string    `json:"tool_id"`
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
	OfflineUntil        time.Time `json:"offline_until"`
	Reliability         float64   `json:"reliability"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TrajectoryRecord is an archived task trajectory: the serialized JSON
// document produced by internal/trajectory's Recorder.Serialize, plus the
// fields needed to list and filter the archive without deserializing it.
type TrajectoryRecord struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Document    []byte    `json:"document"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Store is the persistence interface for this service's learning state and
// trajectory archive.
type Store interface {
	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// SaveWeights upserts the singleton dispatcher weights row.
	SaveWeights(ctx context.Context, rec WeightsRecord) error

	// LoadWeights reads the singleton dispatcher weights row. Returns
	// ok=false when no weights have been saved yet.
	LoadWeights(ctx context.Context) (rec WeightsRecord, ok bool, err error)

	// SaveHealth upserts toolID's compacted health snapshot.
	SaveHealth(ctx context.Context, rec HealthRecord) error

	// LoadHealth reads toolID's compacted health snapshot. Returns
	// ok=false when toolID has no persisted snapshot.
	LoadHealth(ctx context.Context, toolID string) (rec HealthRecord, ok bool, err error)

	// ListHealth returns every persisted health snapshot.
	ListHealth(ctx context.Context) ([]HealthRecord, error)

	// ArchiveTrajectory upserts a completed trajectory's document.
	ArchiveTrajectory(ctx context.Context, rec TrajectoryRecord) error

	// GetTrajectory retrieves one archived trajectory by task ID.
	GetTrajectory(ctx context.Context, taskID string) (rec TrajectoryRecord, ok bool, err error)

	// ListTrajectories returns archived trajectories, newest first.
	ListTrajectories(ctx context.Context, limit, offset int) ([]TrajectoryRecord, error)
}
