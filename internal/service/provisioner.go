package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qritwik/n8n-saas/internal/models"
	"github.com/qritwik/n8n-saas/internal/repository"
)

var (
	// ErrNotConnected is returned by Resume when no gmail credential exists.
	ErrNotConnected = errors.New("no gmail account connected")

	// ErrAlreadyProvisioned is returned by Resume when a workflow already exists.
	ErrAlreadyProvisioned = errors.New("workflow already provisioned")
)

// CredentialStore interface for dependency injection
type CredentialStore interface {
	Upsert(ctx context.Context, userID int64, gmailEmail, accessToken, refreshToken string) (*models.GmailCredential, error)
	SetN8NCredentialID(ctx context.Context, credentialID int64, n8nCredentialID string) error
	ActiveByUser(ctx context.Context, userID int64) (*models.GmailCredential, error)
	ByEmail(ctx context.Context, gmailEmail string) (*models.GmailCredential, error)
	DeleteByUser(ctx context.Context, userID int64) error
}

// WorkflowStore interface for dependency injection
type WorkflowStore interface {
	Create(ctx context.Context, wf *models.Workflow) error
	ActiveByUser(ctx context.Context, userID int64) (*models.Workflow, error)
	UpdateProvision(ctx context.Context, workflowID int64, n8nWorkflowID, runStatus string) error
	DeleteByUser(ctx context.Context, userID int64) error
}

// IdentityClient performs the OAuth code exchange and owner lookup.
type IdentityClient interface {
	ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, err error)
	ResolveEmail(ctx context.Context, accessToken string) (string, error)
}

// AutomationClient manages credential and workflow resources on the n8n
// instance.
type AutomationClient interface {
	CreateCredential(ctx context.Context, gmailEmail, accessToken, refreshToken string) (string, error)
	UpsertWorkflow(ctx context.Context, gmailEmail, n8nCredentialID string) (*WorkflowUpsertResult, error)
	DeleteWorkflow(ctx context.Context, n8nWorkflowID string) (DeleteResult, error)
	DeleteCredential(ctx context.Context, n8nCredentialID string) (DeleteResult, error)
}

// Provisioner sequences the identity provider, the local store and the
// automation service for the connect, resume and teardown flows.
type Provisioner struct {
	credentials CredentialStore
	workflows   WorkflowStore
	identity    IdentityClient
	automation  AutomationClient
	logger      *slog.Logger
}

func NewProvisioner(credentials CredentialStore, workflows WorkflowStore, identity IdentityClient, automation AutomationClient, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		credentials: credentials,
		workflows:   workflows,
		identity:    identity,
		automation:  automation,
		logger:      logger,
	}
}

// Connect exchanges the authorization code, saves the credential and
// provisions the workflow. The credential row is committed before any
// automation-service call, so a remote failure leaves a resumable
// "credential saved, workflow missing" state instead of losing the tokens.
func (p *Provisioner) Connect(ctx context.Context, userID int64, code string) (*ConnectedState, error) {
	accessToken, refreshToken, err := p.identity.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	gmailEmail, err := p.identity.ResolveEmail(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve gmail address: %w", err)
	}

	// Reject early when the address belongs to someone else, before any
	// mutation. The upsert below re-verifies ownership atomically, so a
	// race here can only turn into an upsert conflict, never a stolen row.
	existing, err := p.credentials.ByEmail(ctx, gmailEmail)
	if err == nil && existing.UserID != userID {
		return nil, fmt.Errorf("%s: %w", gmailEmail, repository.ErrOwnershipConflict)
	}
	if err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, fmt.Errorf("check credential ownership: %w", err)
	}

	cred, err := p.credentials.Upsert(ctx, userID, gmailEmail, accessToken, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("save gmail credential: %w", err)
	}

	p.logger.Info("gmail credential saved", "user_id", userID, "gmail_email", gmailEmail)

	return p.provision(ctx, cred)
}

// Resume continues a connect flow that failed after the credential was
// saved. It is only valid while no workflow exists for the user.
func (p *Provisioner) Resume(ctx context.Context, userID int64) (*ConnectedState, error) {
	cred, err := p.credentials.ActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load gmail credential: %w", err)
	}

	_, err = p.workflows.ActiveByUser(ctx, userID)
	if err == nil {
		return nil, ErrAlreadyProvisioned
	}
	if !errors.Is(err, repository.ErrWorkflowNotFound) {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	return p.provision(ctx, cred)
}

// provision registers the credential with the automation service if needed,
// then upserts the workflow there and records it locally.
func (p *Provisioner) provision(ctx context.Context, cred *models.GmailCredential) (*ConnectedState, error) {
	// A stored n8n credential id means registration already succeeded on an
	// earlier attempt; re-registering would leak a remote resource.
	if cred.N8NCredentialID == nil {
		n8nCredID, err := p.automation.CreateCredential(ctx, cred.GmailEmail, cred.AccessToken, cred.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("register credential for %s: %w", cred.GmailEmail, err)
		}
		if err := p.credentials.SetN8NCredentialID(ctx, cred.ID, n8nCredID); err != nil {
			return nil, fmt.Errorf("store n8n credential id %s: %w", n8nCredID, err)
		}
		cred.N8NCredentialID = &n8nCredID
		p.logger.Info("n8n credential registered", "gmail_email", cred.GmailEmail, "n8n_credential_id", n8nCredID)
	}

	result, err := p.automation.UpsertWorkflow(ctx, cred.GmailEmail, *cred.N8NCredentialID)
	if err != nil {
		return nil, fmt.Errorf("provision workflow for %s: %w", cred.GmailEmail, err)
	}

	runStatus := models.RunStatusInactive
	if result.Active {
		runStatus = models.RunStatusActive
	}

	wf, err := p.workflows.ActiveByUser(ctx, cred.UserID)
	switch {
	case err == nil:
		// Reconnect for an already provisioned user: the remote upsert
		// updated the workflow in place, refresh the existing row.
		if err := p.workflows.UpdateProvision(ctx, wf.ID, result.RemoteID, runStatus); err != nil {
			return nil, fmt.Errorf("update workflow record: %w", err)
		}
		wf.N8NWorkflowID = &result.RemoteID
		wf.RunStatus = runStatus
	case errors.Is(err, repository.ErrWorkflowNotFound):
		wf = &models.Workflow{
			UserID:            cred.UserID,
			GmailCredentialID: cred.ID,
			N8NWorkflowID:     &result.RemoteID,
			Name:              result.Name,
			RunStatus:         runStatus,
			Status:            models.WorkflowStatusActive,
		}
		if err := p.workflows.Create(ctx, wf); err != nil {
			return nil, fmt.Errorf("create workflow record: %w", err)
		}
	default:
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	p.logger.Info("workflow provisioned",
		"user_id", cred.UserID,
		"gmail_email", cred.GmailEmail,
		"n8n_workflow_id", result.RemoteID,
		"run_status", runStatus,
	)

	return &ConnectedState{Credential: cred, Workflow: wf}, nil
}

// Teardown removes the user's workflow and credential, remotely and locally.
// The workflow always goes first so no workflow row ever references a deleted
// credential. Remote deletes are best effort: a missing remote resource or an
// unreachable n8n never blocks local deletion. Teardown of a user with
// nothing connected is a no-op success.
func (p *Provisioner) Teardown(ctx context.Context, userID int64) error {
	wf, err := p.workflows.ActiveByUser(ctx, userID)
	switch {
	case err == nil:
		if wf.N8NWorkflowID != nil {
			p.deleteRemote(ctx, "workflow", *wf.N8NWorkflowID, p.automation.DeleteWorkflow)
		}
		if err := p.workflows.DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete workflow records: %w", err)
		}
	case errors.Is(err, repository.ErrWorkflowNotFound):
		// nothing to tear down
	default:
		return fmt.Errorf("load workflow: %w", err)
	}

	cred, err := p.credentials.ActiveByUser(ctx, userID)
	switch {
	case err == nil:
		if cred.N8NCredentialID != nil {
			p.deleteRemote(ctx, "credential", *cred.N8NCredentialID, p.automation.DeleteCredential)
		}
		if err := p.credentials.DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete credential records: %w", err)
		}
	case errors.Is(err, repository.ErrCredentialNotFound):
		// nothing to tear down
	default:
		return fmt.Errorf("load gmail credential: %w", err)
	}

	p.logger.Info("teardown completed", "user_id", userID)
	return nil
}

func (p *Provisioner) deleteRemote(ctx context.Context, kind, remoteID string, del func(context.Context, string) (DeleteResult, error)) {
	result, err := del(ctx, remoteID)
	switch {
	case err != nil:
		p.logger.Warn("remote delete failed, removing local record anyway",
			"kind", kind, "remote_id", remoteID, "error", err)
	case result == AlreadyAbsent:
		p.logger.Info("remote resource already absent", "kind", kind, "remote_id", remoteID)
	default:
		p.logger.Info("remote resource deleted", "kind", kind, "remote_id", remoteID)
	}
}

// Dashboard returns the user's current credential and workflow, either of
// which may be nil.
func (p *Provisioner) Dashboard(ctx context.Context, userID int64) (*DashboardState, error) {
	state := &DashboardState{}

	cred, err := p.credentials.ActiveByUser(ctx, userID)
	switch {
	case err == nil:
		state.Credential = cred
	case !errors.Is(err, repository.ErrCredentialNotFound):
		return nil, fmt.Errorf("load gmail credential: %w", err)
	}

	wf, err := p.workflows.ActiveByUser(ctx, userID)
	switch {
	case err == nil:
		state.Workflow = wf
	case !errors.Is(err, repository.ErrWorkflowNotFound):
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	return state, nil
}
