package service

import "github.com/qritwik/n8n-saas/internal/models"

// DeleteResult reports what a best-effort remote delete actually did.
// A failed delete is a non-nil error alongside DeleteUnknown.
type DeleteResult int

const (
	DeleteUnknown DeleteResult = iota
	Deleted
	AlreadyAbsent
)

func (d DeleteResult) String() string {
	switch d {
	case Deleted:
		return "deleted"
	case AlreadyAbsent:
		return "already absent"
	default:
		return "unknown"
	}
}

// WorkflowUpsertResult is the outcome of a create-or-update against the
// automation service. Active is false when the workflow exists but could
// not be activated.
type WorkflowUpsertResult struct {
	RemoteID string
	Name     string
	Active   bool
}

// RemoteWorkflow is one entry of the automation service's workflow listing.
type RemoteWorkflow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ConnectedState is what a successful connect or resume leaves behind.
type ConnectedState struct {
	Credential *models.GmailCredential
	Workflow   *models.Workflow
}

// DashboardState aggregates the user's connection state. Both fields are nil
// when the user has nothing provisioned.
type DashboardState struct {
	Credential *models.GmailCredential
	Workflow   *models.Workflow
}
