package n8n

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qritwik/n8n-saas/internal/service"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:            baseURL,
		APIKey:             "test-api-key",
		GoogleClientID:     "google-client-id",
		GoogleClientSecret: "google-client-secret",
		TelegramChatID:     "chat-42",
		TelegramCredID:     "telegram-cred-1",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWorkflowName(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"user@example.com", "gmail_telegram_user_example_com"},
		{"a@x.com", "gmail_telegram_a_x_com"},
		{"first.last+tag@mail.example.org", "gmail_telegram_first_last_tag_mail_example_org"},
		{"User123@Example.com", "gmail_telegram_User123_Example_com"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := WorkflowName(tt.email); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCreateCredential(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/credentials" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-N8N-API-KEY") != "test-api-key" {
			t.Errorf("missing API key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "cred-123"}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	id, err := client.CreateCredential(t.Context(), "a@x.com", "access", "refresh")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "cred-123" {
		t.Errorf("expected cred-123, got %s", id)
	}
	if gotPayload["name"] != "Gmail - a@x.com" {
		t.Errorf("unexpected credential name: %v", gotPayload["name"])
	}
	if gotPayload["type"] != "gmailOAuth2" {
		t.Errorf("unexpected credential type: %v", gotPayload["type"])
	}
}

func TestUpsertWorkflow_CreatesWhenAbsent(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/workflows":
			w.Write([]byte(`{"data": []}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Fatalf("failed to decode payload: %v", err)
			}
			w.Write([]byte(`{"id": "wf-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows/wf-1/activate":
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	result, err := client.UpsertWorkflow(t.Context(), "a@x.com", "cred-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.RemoteID != "wf-1" {
		t.Errorf("expected wf-1, got %s", result.RemoteID)
	}
	if result.Name != "gmail_telegram_a_x_com" {
		t.Errorf("unexpected workflow name: %s", result.Name)
	}
	if !result.Active {
		t.Error("expected workflow to be active")
	}
	if created["name"] != "gmail_telegram_a_x_com" {
		t.Errorf("unexpected payload name: %v", created["name"])
	}
	nodes, ok := created["nodes"].([]any)
	if !ok || len(nodes) != 2 {
		t.Fatalf("expected 2 nodes in payload, got %v", created["nodes"])
	}
}

func TestUpsertWorkflow_UpdatesByNameMatch(t *testing.T) {
	updated := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/workflows":
			// bare list format, no data envelope
			w.Write([]byte(`[{"id": "wf-9", "name": "gmail_telegram_a_x_com", "active": true}]`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/workflows/wf-9":
			updated = true
			w.Write([]byte(`{"id": "wf-9"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows/wf-9/activate":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
			t.Error("must update the existing workflow, not create a duplicate")
			w.WriteHeader(http.StatusBadRequest)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	result, err := client.UpsertWorkflow(t.Context(), "a@x.com", "cred-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated {
		t.Error("expected a PUT to the existing workflow")
	}
	if result.RemoteID != "wf-9" {
		t.Errorf("expected wf-9, got %s", result.RemoteID)
	}
}

func TestUpsertWorkflow_ActivationFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/workflows":
			w.Write([]byte(`[]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
			w.Write([]byte(`{"id": "wf-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows/wf-1/activate":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	result, err := client.UpsertWorkflow(t.Context(), "a@x.com", "cred-123")
	if err != nil {
		t.Fatalf("activation failure must not fail the upsert, got %v", err)
	}
	if result.Active {
		t.Error("expected workflow to stay inactive after activation failure")
	}
}

func TestUpsertWorkflow_ListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	_, err := client.UpsertWorkflow(t.Context(), "a@x.com", "cred-123")
	if err == nil {
		t.Fatal("expected error when the listing call fails")
	}
	var provisionErr *WorkflowProvisionError
	if !errors.As(err, &provisionErr) {
		t.Fatalf("expected WorkflowProvisionError, got %T: %v", err, err)
	}
}

func TestListWorkflows_BothFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare list", `[{"id": "wf-1", "name": "one", "active": true}]`},
		{"data envelope", `{"data": [{"id": "wf-1", "name": "one", "active": true}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := testClient(srv.URL)

			workflows, err := client.ListWorkflows(t.Context())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(workflows) != 1 || workflows[0].ID != "wf-1" || !workflows[0].Active {
				t.Errorf("unexpected listing: %+v", workflows)
			}
		})
	}
}

func TestDeleteWorkflow_TriState(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected service.DeleteResult
		wantErr  bool
	}{
		{"deleted", http.StatusOK, service.Deleted, false},
		{"deleted no content", http.StatusNoContent, service.Deleted, false},
		{"already absent", http.StatusNotFound, service.AlreadyAbsent, false},
		{"server error", http.StatusInternalServerError, service.DeleteUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("expected DELETE, got %s", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := testClient(srv.URL)

			result, err := client.DeleteWorkflow(t.Context(), "wf-1")
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
