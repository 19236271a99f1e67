package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/qritwik/n8n-saas/internal/service"
)

// WorkflowProvisionError means a workflow listing, create or update call
// against the n8n instance failed.
type WorkflowProvisionError struct {
	Op  string
	Err error
}

func (e *WorkflowProvisionError) Error() string {
	return fmt.Sprintf("workflow provisioning failed (%s): %v", e.Op, e.Err)
}

func (e *WorkflowProvisionError) Unwrap() error { return e.Err }

// Config for the n8n client
type Config struct {
	BaseURL string // e.g. https://n8n.example.com
	APIKey  string

	// Google client credentials embedded into gmail credential resources.
	GoogleClientID     string
	GoogleClientSecret string

	// Shared Telegram bot credential on the n8n instance.
	TelegramChatID string
	TelegramCredID string

	Timeout time.Duration
}

// Client is an n8n REST API client
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// CreateCredential registers a gmail OAuth credential resource and returns
// its id. Every call creates a new remote resource; callers must keep the
// returned id to avoid registering twice.
func (c *Client) CreateCredential(ctx context.Context, gmailEmail, accessToken, refreshToken string) (string, error) {
	payload := map[string]any{
		"name": "Gmail - " + gmailEmail,
		"type": "gmailOAuth2",
		"data": map[string]any{
			"clientId":                     c.cfg.GoogleClientID,
			"clientSecret":                 c.cfg.GoogleClientSecret,
			"sendAdditionalBodyProperties": false,
			"additionalBodyProperties":     map[string]any{},
			"oauthTokenData": map[string]any{
				"access_token":  accessToken,
				"refresh_token": refreshToken,
				"scope":         "https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/gmail.send",
				"token_type":    "Bearer",
				// already expired, so n8n refreshes before first use
				"expiry_date": time.Now().UnixMilli(),
			},
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/credentials", payload, &created); err != nil {
		return "", fmt.Errorf("failed to create credential: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("credential response missing id")
	}
	return created.ID, nil
}

// UpsertWorkflow creates or updates the mail-to-telegram workflow for a
// gmail address and activates it. The workflow name is a pure function of
// the address, and the lookup-by-name makes repeated provisioning update the
// same remote workflow instead of creating duplicates. An activation failure
// is logged but not fatal: the workflow exists, it just stays inactive.
func (c *Client) UpsertWorkflow(ctx context.Context, gmailEmail, n8nCredentialID string) (*service.WorkflowUpsertResult, error) {
	name := WorkflowName(gmailEmail)

	existing, err := c.findWorkflowByName(ctx, name)
	if err != nil {
		return nil, &WorkflowProvisionError{Op: "list workflows", Err: err}
	}

	payload := c.workflowPayload(name, gmailEmail, n8nCredentialID)

	var saved struct {
		ID string `json:"id"`
	}
	if existing != nil {
		c.logger.Info("updating existing workflow", "name", name, "n8n_workflow_id", existing.ID)
		err = c.do(ctx, http.MethodPut, "/api/v1/workflows/"+existing.ID, payload, &saved)
	} else {
		c.logger.Info("creating new workflow", "name", name)
		err = c.do(ctx, http.MethodPost, "/api/v1/workflows", payload, &saved)
	}
	if err != nil {
		return nil, &WorkflowProvisionError{Op: "save workflow", Err: err}
	}
	if saved.ID == "" {
		return nil, &WorkflowProvisionError{Op: "save workflow", Err: fmt.Errorf("response missing id")}
	}

	active := true
	if err := c.do(ctx, http.MethodPost, "/api/v1/workflows/"+saved.ID+"/activate", nil, nil); err != nil {
		c.logger.Warn("workflow activation failed, workflow stays inactive", "n8n_workflow_id", saved.ID, "error", err)
		active = false
	}

	return &service.WorkflowUpsertResult{
		RemoteID: saved.ID,
		Name:     name,
		Active:   active,
	}, nil
}

// ListWorkflows returns all workflows on the instance. The API returns
// either a bare list or an envelope with a "data" list; both are handled.
func (c *Client) ListWorkflows(ctx context.Context) ([]service.RemoteWorkflow, error) {
	body, err := c.doRaw(ctx, http.MethodGet, "/api/v1/workflows", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var envelope struct {
		Data []service.RemoteWorkflow `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var list []service.RemoteWorkflow
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse workflow listing: %w", err)
	}
	return list, nil
}

// DeleteWorkflow deletes a workflow resource. A resource that is already
// gone counts as success.
func (c *Client) DeleteWorkflow(ctx context.Context, n8nWorkflowID string) (service.DeleteResult, error) {
	return c.deleteResource(ctx, "/api/v1/workflows/"+n8nWorkflowID)
}

// DeleteCredential deletes a credential resource. A resource that is
// already gone counts as success.
func (c *Client) DeleteCredential(ctx context.Context, n8nCredentialID string) (service.DeleteResult, error) {
	return c.deleteResource(ctx, "/api/v1/credentials/"+n8nCredentialID)
}

func (c *Client) deleteResource(ctx context.Context, path string) (service.DeleteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+path, nil)
	if err != nil {
		return service.DeleteUnknown, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return service.DeleteUnknown, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return service.Deleted, nil
	case http.StatusNotFound:
		return service.AlreadyAbsent, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return service.DeleteUnknown, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
}

func (c *Client) findWorkflowByName(ctx context.Context, name string) (*service.RemoteWorkflow, error) {
	workflows, err := c.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workflows {
		if workflows[i].Name == name {
			return &workflows[i], nil
		}
	}
	return nil, nil
}

// do issues a JSON request and decodes the response body into out when out
// is non-nil. Non-2xx statuses are errors.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := c.doRaw(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-N8N-API-KEY", c.cfg.APIKey)
}
