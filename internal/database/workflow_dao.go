package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// WorkflowDAO provides store operations for workflow definitions,
// their steps, versions, and folders.
type WorkflowDAO interface {
	// Create persists a new workflow with its steps at version 1.
	Create(ctx context.Context, wf *types.Workflow) error

	// GetByID loads a workflow with its steps in order.
	GetByID(ctx context.Context, id types.ID) (*types.Workflow, error)

	// List returns workflows without their steps, optionally filtered
	// by status and folder.
	List(ctx context.Context, status types.WorkflowStatus, folderID *types.ID) ([]*types.Workflow, error)

	// Update replaces the definition, allocating version+1 and
	// archiving the prior definition as a version record.
	Update(ctx context.Context, wf *types.Workflow, changeSummary, changedBy string) error

	// Delete removes the workflow; steps, executions, versions, and
	// triggers cascade.
	Delete(ctx context.Context, id types.ID) error

	// ListVersions returns archived versions, newest first.
	ListVersions(ctx context.Context, workflowID types.ID) ([]*types.WorkflowVersion, error)

	// GetVersion returns one archived version.
	GetVersion(ctx context.Context, workflowID types.ID, version int) (*types.WorkflowVersion, error)

	// CreateFolder persists a folder.
	CreateFolder(ctx context.Context, folder *types.Folder) error

	// ListFolders returns all folders by name.
	ListFolders(ctx context.Context) ([]*types.Folder, error)

	// DeleteFolder removes a folder; workflows keep a NULL folder.
	DeleteFolder(ctx context.Context, id types.ID) error
}

type workflowDAO struct {
	db *DB
}

// NewWorkflowDAO creates a WorkflowDAO.
func NewWorkflowDAO(db *DB) WorkflowDAO {
	return &workflowDAO{db: db}
}

func (d *workflowDAO) Create(ctx context.Context, wf *types.Workflow) error {
	if wf.ID == "" {
		wf.ID = types.NewID()
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowStatusDraft
	}
	wf.Version = 1
	if err := wf.Validate(); err != nil {
		return err
	}

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		tags, err := toJSON(wf.Tags)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal tags", err)
		}
		variables, err := toJSON(wf.Variables)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal variables", err)
		}
		metadata, err := toJSON(wf.Metadata)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal metadata", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflows (id, version, name, description, tags, folder_id,
				status, variables, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			wf.ID, wf.Version, wf.Name, wf.Description, tags, nullableID(wf.FolderID),
			wf.Status.String(), variables, metadata)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to insert workflow", err)
		}

		return insertSteps(ctx, tx, wf.ID, wf.Steps)
	})
}

func (d *workflowDAO) GetByID(ctx context.Context, id types.ID) (*types.Workflow, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, version, name, description, tags, folder_id, status,
			variables, metadata, created_at, updated_at
		FROM workflows WHERE id = ?`, id)

	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.WORKFLOW_NOT_FOUND,
			fmt.Sprintf("workflow %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load workflow", err)
	}

	steps, err := d.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps
	return wf, nil
}

func (d *workflowDAO) List(ctx context.Context, status types.WorkflowStatus, folderID *types.ID) ([]*types.Workflow, error) {
	query := `
		SELECT id, version, name, description, tags, folder_id, status,
			variables, metadata, created_at, updated_at
		FROM workflows WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status.String())
	}
	if folderID != nil {
		query += " AND folder_id = ?"
		args = append(args, folderID.String())
	}
	query += " ORDER BY updated_at DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list workflows", err)
	}
	defer rows.Close()

	var workflows []*types.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan workflow", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (d *workflowDAO) Update(ctx context.Context, wf *types.Workflow, changeSummary, changedBy string) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	prior, err := d.GetByID(ctx, wf.ID)
	if err != nil {
		return err
	}

	definition, err := json.Marshal(prior)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal prior definition", err)
	}

	wf.Version = prior.Version + 1

	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_versions (id, workflow_id, version, name,
				description, definition, change_summary, changed_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			types.NewID(), prior.ID, prior.Version, prior.Name,
			prior.Description, string(definition), changeSummary, changedBy)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to archive prior version", err)
		}

		tags, err := toJSON(wf.Tags)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal tags", err)
		}
		variables, err := toJSON(wf.Variables)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal variables", err)
		}
		metadata, err := toJSON(wf.Metadata)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal metadata", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE workflows SET version = ?, name = ?, description = ?, tags = ?,
				folder_id = ?, status = ?, variables = ?, metadata = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			wf.Version, wf.Name, wf.Description, tags, nullableID(wf.FolderID),
			wf.Status.String(), variables, metadata, wf.ID)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to update workflow", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM workflow_steps WHERE workflow_id = ?", wf.ID); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to replace steps", err)
		}
		return insertSteps(ctx, tx, wf.ID, wf.Steps)
	})
}

func (d *workflowDAO) Delete(ctx context.Context, id types.ID) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete workflow", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.WORKFLOW_NOT_FOUND,
			fmt.Sprintf("workflow %s not found", id))
	}
	return nil
}

func (d *workflowDAO) ListVersions(ctx context.Context, workflowID types.ID) ([]*types.WorkflowVersion, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, workflow_id, version, name, description, definition,
			change_summary, changed_by, created_at
		FROM workflow_versions WHERE workflow_id = ? ORDER BY version DESC`, workflowID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list versions", err)
	}
	defer rows.Close()

	var versions []*types.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (d *workflowDAO) GetVersion(ctx context.Context, workflowID types.ID, version int) (*types.WorkflowVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, version, name, description, definition,
			change_summary, changed_by, created_at
		FROM workflow_versions WHERE workflow_id = ? AND version = ?`,
		workflowID, version)

	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("workflow %s has no version %d", workflowID, version))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load version", err)
	}
	return v, nil
}

func (d *workflowDAO) CreateFolder(ctx context.Context, folder *types.Folder) error {
	if folder.ID == "" {
		folder.ID = types.NewID()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, description, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		folder.ID, folder.Name, folder.Description)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create folder", err)
	}
	return nil
}

func (d *workflowDAO) ListFolders(ctx context.Context) ([]*types.Folder, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, description, created_at FROM folders ORDER BY name")
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list folders", err)
	}
	defer rows.Close()

	var folders []*types.Folder
	for rows.Next() {
		folder := &types.Folder{}
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.Description, &folder.CreatedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan folder", err)
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

func (d *workflowDAO) DeleteFolder(ctx context.Context, id types.ID) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete folder", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.FOLDER_NOT_FOUND,
			fmt.Sprintf("folder %s not found", id))
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, workflowID types.ID, steps []types.Step) error {
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			step.ID = types.NewID()
		}
		step.WorkflowID = workflowID

		config, err := toJSON(step.Config)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal step config", err)
		}
		inputMapping, err := toJSON(step.InputMapping)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal input mapping", err)
		}
		outputMapping, err := toJSON(step.OutputMapping)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal output mapping", err)
		}
		var retryConfig sql.NullString
		if step.RetryConfig != nil {
			retryConfig, err = toJSON(step.RetryConfig)
			if err != nil {
				return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal retry config", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, step_order, name, step_type,
				config, code, input_mapping, output_mapping, retry_config, condition,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			step.ID, workflowID, step.Order, step.Name, step.Type.String(),
			config, step.Code, inputMapping, outputMapping, retryConfig, step.Condition)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("failed to insert step %q", step.Name), err)
		}
	}
	return nil
}

func (d *workflowDAO) loadSteps(ctx context.Context, workflowID types.ID) ([]types.Step, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, workflow_id, step_order, name, step_type, config, code,
			input_mapping, output_mapping, retry_config, condition,
			created_at, updated_at
		FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order, id`, workflowID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load steps", err)
	}
	defer rows.Close()

	var steps []types.Step
	for rows.Next() {
		var step types.Step
		var stepType string
		var config, inputMapping, outputMapping, retryConfig sql.NullString
		if err := rows.Scan(&step.ID, &step.WorkflowID, &step.Order, &step.Name,
			&stepType, &config, &step.Code, &inputMapping, &outputMapping,
			&retryConfig, &step.Condition, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan step", err)
		}
		step.Type = types.StepType(stepType)
		if err := fromJSON(config, &step.Config); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode step config", err)
		}
		if err := fromJSON(inputMapping, &step.InputMapping); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode input mapping", err)
		}
		if err := fromJSON(outputMapping, &step.OutputMapping); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode output mapping", err)
		}
		if retryConfig.Valid {
			step.RetryConfig = &types.RetryConfig{}
			if err := fromJSON(retryConfig, step.RetryConfig); err != nil {
				return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode retry config", err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*types.Workflow, error) {
	wf := &types.Workflow{}
	var status string
	var tags, variables, metadata sql.NullString
	var folderID sql.NullString

	err := row.Scan(&wf.ID, &wf.Version, &wf.Name, &wf.Description, &tags,
		&folderID, &status, &variables, &metadata, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}

	wf.Status = types.WorkflowStatus(status)
	if folderID.Valid {
		id := types.ID(folderID.String)
		wf.FolderID = &id
	}
	if err := fromJSON(tags, &wf.Tags); err != nil {
		return nil, err
	}
	if err := fromJSON(variables, &wf.Variables); err != nil {
		return nil, err
	}
	if err := fromJSON(metadata, &wf.Metadata); err != nil {
		return nil, err
	}
	return wf, nil
}

func scanVersion(row rowScanner) (*types.WorkflowVersion, error) {
	v := &types.WorkflowVersion{}
	var definition string
	err := row.Scan(&v.ID, &v.WorkflowID, &v.Version, &v.Name, &v.Description,
		&definition, &v.ChangeSummary, &v.ChangedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(definition), &v.Definition); err != nil {
		return nil, err
	}
	return v, nil
}

func nullableID(id *types.ID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
