package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qritwik/n8n-saas/internal/models"
	"github.com/qritwik/n8n-saas/internal/service"
)

type mockWorkflowStore struct {
	activeAllFunc       func(ctx context.Context) ([]models.Workflow, error)
	updateRunStatusFunc func(ctx context.Context, workflowID int64, runStatus string) error
}

func (m *mockWorkflowStore) ActiveAll(ctx context.Context) ([]models.Workflow, error) {
	if m.activeAllFunc != nil {
		return m.activeAllFunc(ctx)
	}
	return nil, nil
}

func (m *mockWorkflowStore) UpdateRunStatus(ctx context.Context, workflowID int64, runStatus string) error {
	if m.updateRunStatusFunc != nil {
		return m.updateRunStatusFunc(ctx, workflowID, runStatus)
	}
	return nil
}

type mockAutomationLister struct {
	listWorkflowsFunc func(ctx context.Context) ([]service.RemoteWorkflow, error)
}

func (m *mockAutomationLister) ListWorkflows(ctx context.Context) ([]service.RemoteWorkflow, error) {
	if m.listWorkflowsFunc != nil {
		return m.listWorkflowsFunc(ctx)
	}
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcile_MarksVanishedWorkflowInactive(t *testing.T) {
	remoteID := "wf-gone"
	updates := map[int64]string{}

	workflows := &mockWorkflowStore{
		activeAllFunc: func(ctx context.Context) ([]models.Workflow, error) {
			return []models.Workflow{
				{ID: 1, N8NWorkflowID: &remoteID, RunStatus: models.RunStatusActive},
			}, nil
		},
		updateRunStatusFunc: func(ctx context.Context, workflowID int64, runStatus string) error {
			updates[workflowID] = runStatus
			return nil
		},
	}
	automation := &mockAutomationLister{
		listWorkflowsFunc: func(ctx context.Context) ([]service.RemoteWorkflow, error) {
			return []service.RemoteWorkflow{}, nil // remote workflow is gone
		},
	}

	w := New(time.Minute, workflows, automation, testLogger())
	w.reconcile(context.Background())

	if updates[1] != models.RunStatusInactive {
		t.Errorf("expected workflow 1 marked inactive, got %q", updates[1])
	}
}

func TestReconcile_ReactivatesMatchingWorkflow(t *testing.T) {
	remoteID := "wf-1"
	updates := map[int64]string{}

	workflows := &mockWorkflowStore{
		activeAllFunc: func(ctx context.Context) ([]models.Workflow, error) {
			return []models.Workflow{
				{ID: 1, N8NWorkflowID: &remoteID, RunStatus: models.RunStatusInactive},
			}, nil
		},
		updateRunStatusFunc: func(ctx context.Context, workflowID int64, runStatus string) error {
			updates[workflowID] = runStatus
			return nil
		},
	}
	automation := &mockAutomationLister{
		listWorkflowsFunc: func(ctx context.Context) ([]service.RemoteWorkflow, error) {
			return []service.RemoteWorkflow{{ID: "wf-1", Name: "one", Active: true}}, nil
		},
	}

	w := New(time.Minute, workflows, automation, testLogger())
	w.reconcile(context.Background())

	if updates[1] != models.RunStatusActive {
		t.Errorf("expected workflow 1 marked active, got %q", updates[1])
	}
}

func TestReconcile_SkipsOnListingFailure(t *testing.T) {
	workflows := &mockWorkflowStore{
		updateRunStatusFunc: func(ctx context.Context, workflowID int64, runStatus string) error {
			t.Error("no updates may happen when the remote listing fails")
			return nil
		},
	}
	automation := &mockAutomationLister{
		listWorkflowsFunc: func(ctx context.Context) ([]service.RemoteWorkflow, error) {
			return nil, errors.New("n8n unreachable")
		},
	}

	w := New(time.Minute, workflows, automation, testLogger())
	w.reconcile(context.Background())
}

func TestReconcile_LeavesMatchingStatusAlone(t *testing.T) {
	remoteID := "wf-1"
	workflows := &mockWorkflowStore{
		activeAllFunc: func(ctx context.Context) ([]models.Workflow, error) {
			return []models.Workflow{
				{ID: 1, N8NWorkflowID: &remoteID, RunStatus: models.RunStatusActive},
			}, nil
		},
		updateRunStatusFunc: func(ctx context.Context, workflowID int64, runStatus string) error {
			t.Error("no update expected when local and remote state agree")
			return nil
		},
	}
	automation := &mockAutomationLister{
		listWorkflowsFunc: func(ctx context.Context) ([]service.RemoteWorkflow, error) {
			return []service.RemoteWorkflow{{ID: "wf-1", Name: "one", Active: true}}, nil
		},
	}

	w := New(time.Minute, workflows, automation, testLogger())
	w.reconcile(context.Background())
}
