package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/qritwik/n8n-saas/internal/models"
	"github.com/qritwik/n8n-saas/internal/service"
)

// WorkflowStore interface for dependency injection
type WorkflowStore interface {
	ActiveAll(ctx context.Context) ([]models.Workflow, error)
	UpdateRunStatus(ctx context.Context, workflowID int64, runStatus string) error
}

// AutomationLister lists the workflows on the n8n instance.
type AutomationLister interface {
	ListWorkflows(ctx context.Context) ([]service.RemoteWorkflow, error)
}

// Watcher periodically reconciles local workflow run status with the n8n
// instance: a workflow that was deleted or deactivated remotely is marked
// inactive locally, so the dashboard reflects reality. Best effort only, a
// failed listing is logged and retried on the next tick.
type Watcher struct {
	interval   time.Duration
	workflows  WorkflowStore
	automation AutomationLister
	logger     *slog.Logger
}

func New(interval time.Duration, workflows WorkflowStore, automation AutomationLister, logger *slog.Logger) *Watcher {
	return &Watcher{
		interval:   interval,
		workflows:  workflows,
		automation: automation,
		logger:     logger,
	}
}

// Start runs the reconcile loop until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("starting workflow run-status reconciler", "interval", w.interval)

	w.reconcile(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciler shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *Watcher) reconcile(ctx context.Context) {
	remote, err := w.automation.ListWorkflows(ctx)
	if err != nil {
		w.logger.Warn("failed to list remote workflows, skipping reconcile", "error", err)
		return
	}

	remoteByID := make(map[string]service.RemoteWorkflow, len(remote))
	for _, rw := range remote {
		remoteByID[rw.ID] = rw
	}

	local, err := w.workflows.ActiveAll(ctx)
	if err != nil {
		w.logger.Warn("failed to load local workflows, skipping reconcile", "error", err)
		return
	}

	for _, wf := range local {
		if wf.N8NWorkflowID == nil {
			continue
		}

		want := models.RunStatusInactive
		if rw, ok := remoteByID[*wf.N8NWorkflowID]; ok && rw.Active {
			want = models.RunStatusActive
		}
		if wf.RunStatus == want {
			continue
		}

		if err := w.workflows.UpdateRunStatus(ctx, wf.ID, want); err != nil {
			w.logger.Warn("failed to update workflow run status",
				"workflow_id", wf.ID, "run_status", want, "error", err)
			continue
		}
		w.logger.Info("reconciled workflow run status",
			"workflow_id", wf.ID, "n8n_workflow_id", *wf.N8NWorkflowID, "run_status", want)
	}
}
