package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qritwik/n8n-saas/internal/models"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

type WorkflowRepository struct {
	db *sql.DB
}

func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a new workflow record and fills in its id and timestamps.
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	query := `
		INSERT INTO workflows (user_id, gmail_credential_id, n8n_workflow_id, workflow_name, workflow_status, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		wf.UserID,
		wf.GmailCredentialID,
		wf.N8NWorkflowID,
		wf.Name,
		wf.RunStatus,
		wf.Status,
	).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// ActiveByUser returns the user's most recently updated active workflow.
func (r *WorkflowRepository) ActiveByUser(ctx context.Context, userID int64) (*models.Workflow, error) {
	query := `
		SELECT id, user_id, gmail_credential_id, n8n_workflow_id, workflow_name, workflow_status, status, created_at, updated_at
		FROM workflows
		WHERE user_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, models.WorkflowStatusActive))
}

// ActiveAll returns every active workflow record, for reconciliation.
func (r *WorkflowRepository) ActiveAll(ctx context.Context) ([]models.Workflow, error) {
	query := `
		SELECT id, user_id, gmail_credential_id, n8n_workflow_id, workflow_name, workflow_status, status, created_at, updated_at
		FROM workflows
		WHERE status = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, models.WorkflowStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var workflows []models.Workflow
	for rows.Next() {
		var wf models.Workflow
		if err := rows.Scan(
			&wf.ID,
			&wf.UserID,
			&wf.GmailCredentialID,
			&wf.N8NWorkflowID,
			&wf.Name,
			&wf.RunStatus,
			&wf.Status,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return workflows, nil
}

// UpdateProvision refreshes the remote workflow id and run status after an
// upsert against the n8n instance.
func (r *WorkflowRepository) UpdateProvision(ctx context.Context, workflowID int64, n8nWorkflowID, runStatus string) error {
	query := `
		UPDATE workflows
		SET n8n_workflow_id = $1, workflow_status = $2, updated_at = $3
		WHERE id = $4
	`

	_, err := r.db.ExecContext(ctx, query, n8nWorkflowID, runStatus, time.Now(), workflowID)
	if err != nil {
		return fmt.Errorf("failed to update workflow provision: %w", err)
	}
	return nil
}

// UpdateRunStatus updates only the run status of a workflow record.
func (r *WorkflowRepository) UpdateRunStatus(ctx context.Context, workflowID int64, runStatus string) error {
	query := `
		UPDATE workflows
		SET workflow_status = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, runStatus, time.Now(), workflowID)
	if err != nil {
		return fmt.Errorf("failed to update workflow run status: %w", err)
	}
	return nil
}

// DeleteByUser removes all workflow records of the user. Deleting a user
// with no workflows is not an error.
func (r *WorkflowRepository) DeleteByUser(ctx context.Context, userID int64) error {
	query := `DELETE FROM workflows WHERE user_id = $1`

	_, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete workflows: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) scanOne(row *sql.Row) (*models.Workflow, error) {
	var wf models.Workflow
	err := row.Scan(
		&wf.ID,
		&wf.UserID,
		&wf.GmailCredentialID,
		&wf.N8NWorkflowID,
		&wf.Name,
		&wf.RunStatus,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	return &wf, nil
}
