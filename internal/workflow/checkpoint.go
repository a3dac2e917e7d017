package workflow

import (
	"context"
	"sync"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// CheckpointSink receives a state snapshot after every node. Sink
// failures are logged by the engine but never fail the run.
type CheckpointSink interface {
	// Save persists one snapshot. Snapshots are immutable: the engine
	// never mutates a snapshot after handing it over.
	Save(ctx context.Context, snapshot *ExecutionState) error

	// Latest returns the most recent snapshot for an execution, or a
	// not-found error.
	Latest(ctx context.Context, executionID types.ID) (*ExecutionState, error)
}

// MemoryCheckpointSink keeps the latest snapshot per execution in
// memory. The runner wraps it with database persistence.
type MemoryCheckpointSink struct {
	mu        sync.RWMutex
	snapshots map[types.ID]*ExecutionState
}

// NewMemoryCheckpointSink creates an empty in-memory sink.
func NewMemoryCheckpointSink() *MemoryCheckpointSink {
	return &MemoryCheckpointSink{
		snapshots: make(map[types.ID]*ExecutionState),
	}
}

// Save stores the snapshot, replacing any prior one for the execution.
func (s *MemoryCheckpointSink) Save(ctx context.Context, snapshot *ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.ExecutionID] = snapshot
	return nil
}

// Latest returns the stored snapshot for the execution.
func (s *MemoryCheckpointSink) Latest(ctx context.Context, executionID types.ID) (*ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[executionID]
	if !ok {
		return nil, types.NewError(types.EXECUTION_NOT_FOUND,
			"no checkpoint for execution "+executionID.String())
	}
	return snapshot, nil
}
