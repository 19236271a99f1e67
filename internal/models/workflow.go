package models

import "time"

const (
	WorkflowStatusActive   = "active"
	WorkflowStatusArchived = "archived"
)

const (
	RunStatusActive   = "active"
	RunStatusInactive = "inactive"
)

// Workflow is the local record of one provisioned mail-to-telegram workflow.
// It always references a GmailCredential of the same user, and is torn down
// before that credential is.
type Workflow struct {
	ID                int64
	UserID            int64
	GmailCredentialID int64

	// N8NWorkflowID is the workflow resource id on the n8n instance.
	// Nil until the workflow has been created there.
	N8NWorkflowID *string

	Name string

	// RunStatus mirrors the remote activation state (active/inactive),
	// Status is the local lifecycle (active/archived).
	RunStatus string
	Status    string

	CreatedAt time.Time
	UpdatedAt time.Time
}
