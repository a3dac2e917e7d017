package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// ExecutionDAO provides store operations for executions, their per-step
// records, and checkpoints.
type ExecutionDAO interface {
	// CreateExecution persists a new execution row.
	CreateExecution(ctx context.Context, exec *types.Execution) error

	// GetExecution loads one execution.
	GetExecution(ctx context.Context, id types.ID) (*types.Execution, error)

	// ListExecutions returns executions for a workflow, newest first.
	// limit <= 0 means no limit.
	ListExecutions(ctx context.Context, workflowID types.ID, limit int) ([]*types.Execution, error)

	// UpdateExecution writes status, final variables, error fields, and
	// completion time.
	UpdateExecution(ctx context.Context, exec *types.Execution) error

	// SaveCheckpoint stores the serialized engine snapshot for the
	// execution, replacing any prior one.
	SaveCheckpoint(ctx context.Context, executionID types.ID, snapshot []byte) error

	// GetCheckpoint returns the stored snapshot.
	GetCheckpoint(ctx context.Context, executionID types.ID) ([]byte, error)

	// UpsertStepExecution inserts or updates the per-step record keyed
	// by (execution_id, step_id).
	UpsertStepExecution(ctx context.Context, se *types.StepExecution) error

	// ListStepExecutions returns per-step records in insertion order.
	ListStepExecutions(ctx context.Context, executionID types.ID) ([]*types.StepExecution, error)
}

type executionDAO struct {
	db *DB
}

// NewExecutionDAO creates an ExecutionDAO.
func NewExecutionDAO(db *DB) ExecutionDAO {
	return &executionDAO{db: db}
}

func (d *executionDAO) CreateExecution(ctx context.Context, exec *types.Execution) error {
	if exec.ID == "" {
		exec.ID = types.NewID()
	}
	if exec.Status == "" {
		exec.Status = types.ExecutionStatusPending
	}

	input, err := toJSON(exec.InputVariables)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal input variables", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, input_variables, started_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		exec.ID, exec.WorkflowID, exec.Status.String(), input)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create execution", err)
	}
	return nil
}

func (d *executionDAO) GetExecution(ctx context.Context, id types.ID) (*types.Execution, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, input_variables, final_variables,
			error, error_step_id, started_at, completed_at
		FROM workflow_executions WHERE id = ?`, id)

	exec := &types.Execution{}
	var status string
	var input, final, errorStepID sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&exec.ID, &exec.WorkflowID, &status, &input, &final,
		&exec.Error, &errorStepID, &exec.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load execution", err)
	}

	exec.Status = types.ExecutionStatus(status)
	if errorStepID.Valid {
		stepID := types.ID(errorStepID.String)
		exec.ErrorStepID = &stepID
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	if err := fromJSON(input, &exec.InputVariables); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode input variables", err)
	}
	if err := fromJSON(final, &exec.FinalVariables); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode final variables", err)
	}
	return exec, nil
}

func (d *executionDAO) ListExecutions(ctx context.Context, workflowID types.ID, limit int) ([]*types.Execution, error) {
	query := `
		SELECT id FROM workflow_executions
		WHERE workflow_id = ? ORDER BY started_at DESC`
	args := []any{workflowID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list executions", err)
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan execution id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	executions := make([]*types.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := d.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, nil
}

func (d *executionDAO) UpdateExecution(ctx context.Context, exec *types.Execution) error {
	final, err := toJSON(exec.FinalVariables)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal final variables", err)
	}

	result, err := d.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = ?, final_variables = ?, error = ?, error_step_id = ?, completed_at = ?
		WHERE id = ?`,
		exec.Status.String(), final, exec.Error, nullableID(exec.ErrorStepID),
		nullableTime(exec.CompletedAt), exec.ID)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update execution", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s not found", exec.ID))
	}
	return nil
}

func (d *executionDAO) SaveCheckpoint(ctx context.Context, executionID types.ID, snapshot []byte) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE workflow_executions SET checkpoint = ? WHERE id = ?",
		string(snapshot), executionID)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to save checkpoint", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s not found", executionID))
	}
	return nil
}

func (d *executionDAO) GetCheckpoint(ctx context.Context, executionID types.ID) ([]byte, error) {
	var checkpoint sql.NullString
	err := d.db.QueryRowContext(ctx,
		"SELECT checkpoint FROM workflow_executions WHERE id = ?", executionID).
		Scan(&checkpoint)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s not found", executionID))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load checkpoint", err)
	}
	if !checkpoint.Valid || checkpoint.String == "" {
		return nil, types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s has no checkpoint", executionID))
	}
	return []byte(checkpoint.String), nil
}

func (d *executionDAO) UpsertStepExecution(ctx context.Context, se *types.StepExecution) error {
	if se.ID == "" {
		se.ID = types.NewID()
	}

	output, err := toJSON(se.Output)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal step output", err)
	}
	logs, err := toJSON(se.Logs)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal step logs", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO step_executions (id, execution_id, step_id, step_name, status,
			output, logs, error, retry_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, step_id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			logs = excluded.logs,
			error = excluded.error,
			retry_count = excluded.retry_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		se.ID, se.ExecutionID, se.StepID, se.StepName, se.Status.String(),
		output, logs, se.Error, se.RetryCount,
		nullableTime(se.StartedAt), nullableTime(se.CompletedAt))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to upsert step execution", err)
	}
	return nil
}

func (d *executionDAO) ListStepExecutions(ctx context.Context, executionID types.ID) ([]*types.StepExecution, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, execution_id, step_id, step_name, status, output, logs,
			error, retry_count, started_at, completed_at
		FROM step_executions WHERE execution_id = ? ORDER BY rowid`, executionID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list step executions", err)
	}
	defer rows.Close()

	var steps []*types.StepExecution
	for rows.Next() {
		se := &types.StepExecution{}
		var status string
		var output, logs sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&se.ID, &se.ExecutionID, &se.StepID, &se.StepName,
			&status, &output, &logs, &se.Error, &se.RetryCount,
			&startedAt, &completedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan step execution", err)
		}
		se.Status = types.StepStatus(status)
		if startedAt.Valid {
			se.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			se.CompletedAt = &completedAt.Time
		}
		if err := fromJSON(output, &se.Output); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode step output", err)
		}
		if err := fromJSON(logs, &se.Logs); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode step logs", err)
		}
		steps = append(steps, se)
	}
	return steps, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
