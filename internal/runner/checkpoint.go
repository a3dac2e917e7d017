package runner

import (
	"context"
	"encoding/json"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
	"github.com/kimjoonhwaan/metaworkflow/internal/workflow"
)

// daoCheckpointSink persists engine snapshots through the execution
// store so suspended runs survive process restarts.
type daoCheckpointSink struct {
	dao database.ExecutionDAO
}

func (s *daoCheckpointSink) Save(ctx context.Context, state *workflow.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return types.WrapError(types.INTERNAL_ERROR, "failed to serialize checkpoint", err)
	}
	return s.dao.SaveCheckpoint(ctx, state.ExecutionID, data)
}

func (s *daoCheckpointSink) Latest(ctx context.Context, executionID types.ID) (*workflow.ExecutionState, error) {
	data, err := s.dao.GetCheckpoint(ctx, executionID)
	if err != nil {
		return nil, err
	}
	state := &workflow.ExecutionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, types.WrapError(types.INTERNAL_ERROR, "failed to decode checkpoint", err)
	}
	return state, nil
}
