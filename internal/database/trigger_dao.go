package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// TriggerDAO stores trigger bindings. The scheduler that fires them
// lives outside the core; this is the store plus fired-counters.
type TriggerDAO interface {
	// Create persists a trigger.
	Create(ctx context.Context, trigger *types.Trigger) error

	// GetByID loads one trigger.
	GetByID(ctx context.Context, id types.ID) (*types.Trigger, error)

	// ListByWorkflow returns a workflow's triggers.
	ListByWorkflow(ctx context.Context, workflowID types.ID) ([]*types.Trigger, error)

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, id types.ID, enabled bool) error

	// MarkFired bumps the counter and records the firing time plus the
	// next scheduled one.
	MarkFired(ctx context.Context, id types.ID, next *time.Time) error

	// Delete removes a trigger.
	Delete(ctx context.Context, id types.ID) error
}

type triggerDAO struct {
	db *DB
}

// NewTriggerDAO creates a TriggerDAO.
func NewTriggerDAO(db *DB) TriggerDAO {
	return &triggerDAO{db: db}
}

func (d *triggerDAO) Create(ctx context.Context, trigger *types.Trigger) error {
	if trigger.ID == "" {
		trigger.ID = types.NewID()
	}
	if !trigger.Type.IsValid() {
		return types.NewError(types.VALIDATION_ERROR,
			fmt.Sprintf("invalid trigger type %q", trigger.Type))
	}

	config, err := toJSON(trigger.Config)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to marshal trigger config", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO triggers (id, workflow_id, trigger_type, config, enabled,
			next_trigger_at, trigger_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)`,
		trigger.ID, trigger.WorkflowID, trigger.Type.String(), config,
		trigger.Enabled, nullableTime(trigger.NextTriggerAt))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create trigger", err)
	}
	return nil
}

func (d *triggerDAO) GetByID(ctx context.Context, id types.ID) (*types.Trigger, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_type, config, enabled,
			last_triggered_at, next_trigger_at, trigger_count, created_at
		FROM triggers WHERE id = ?`, id)

	trigger, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.TRIGGER_NOT_FOUND,
			fmt.Sprintf("trigger %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load trigger", err)
	}
	return trigger, nil
}

func (d *triggerDAO) ListByWorkflow(ctx context.Context, workflowID types.ID) ([]*types.Trigger, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_type, config, enabled,
			last_triggered_at, next_trigger_at, trigger_count, created_at
		FROM triggers WHERE workflow_id = ? ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list triggers", err)
	}
	defer rows.Close()

	var triggers []*types.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan trigger", err)
		}
		triggers = append(triggers, trigger)
	}
	return triggers, rows.Err()
}

func (d *triggerDAO) SetEnabled(ctx context.Context, id types.ID, enabled bool) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE triggers SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update trigger", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.TRIGGER_NOT_FOUND,
			fmt.Sprintf("trigger %s not found", id))
	}
	return nil
}

func (d *triggerDAO) MarkFired(ctx context.Context, id types.ID, next *time.Time) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE triggers
		SET trigger_count = trigger_count + 1,
			last_triggered_at = CURRENT_TIMESTAMP,
			next_trigger_at = ?
		WHERE id = ?`, nullableTime(next), id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to mark trigger fired", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.TRIGGER_NOT_FOUND,
			fmt.Sprintf("trigger %s not found", id))
	}
	return nil
}

func (d *triggerDAO) Delete(ctx context.Context, id types.ID) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete trigger", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return types.NewError(types.TRIGGER_NOT_FOUND,
			fmt.Sprintf("trigger %s not found", id))
	}
	return nil
}

func scanTrigger(row rowScanner) (*types.Trigger, error) {
	trigger := &types.Trigger{}
	var triggerType string
	var config sql.NullString
	var lastTriggered, nextTrigger sql.NullTime

	err := row.Scan(&trigger.ID, &trigger.WorkflowID, &triggerType, &config,
		&trigger.Enabled, &lastTriggered, &nextTrigger, &trigger.TriggerCount,
		&trigger.CreatedAt)
	if err != nil {
		return nil, err
	}

	trigger.Type = types.TriggerType(triggerType)
	if lastTriggered.Valid {
		trigger.LastTriggeredAt = &lastTriggered.Time
	}
	if nextTrigger.Valid {
		trigger.NextTriggerAt = &nextTrigger.Time
	}
	if err := fromJSON(config, &trigger.Config); err != nil {
		return nil, err
	}
	return trigger, nil
}
