package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/qritwik/n8n-saas/internal/googleauth"
	"github.com/qritwik/n8n-saas/internal/models"
	"github.com/qritwik/n8n-saas/internal/n8n"
	"github.com/qritwik/n8n-saas/internal/repository"
	"github.com/qritwik/n8n-saas/internal/service"
)

// Provisioner interface for dependency injection
type Provisioner interface {
	Connect(ctx context.Context, userID int64, code string) (*service.ConnectedState, error)
	Resume(ctx context.Context, userID int64) (*service.ConnectedState, error)
	Teardown(ctx context.Context, userID int64) error
	Dashboard(ctx context.Context, userID int64) (*service.DashboardState, error)
}

// Registrar creates user accounts.
type Registrar interface {
	Register(ctx context.Context, username, password string, email *string) (*models.User, error)
}

// AuthURLProvider builds the OAuth consent URL.
type AuthURLProvider interface {
	AuthURL(state string) string
}

// Server is the HTTP layer over the provisioner. It performs no session
// authentication: the account id is taken from the X-User-ID header, or from
// the OAuth state parameter on the redirect callback.
type Server struct {
	provisioner Provisioner
	registrar   Registrar
	auth        AuthURLProvider
	logger      *slog.Logger
	mux         *http.ServeMux
}

func New(provisioner Provisioner, registrar Registrar, auth AuthURLProvider, logger *slog.Logger) *Server {
	s := &Server{
		provisioner: provisioner,
		registrar:   registrar,
		auth:        auth,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("GET /auth", s.handleAuthRedirect)
	s.mux.HandleFunc("GET /login/callback", s.handleCallback)
	s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("POST /api/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "gmail-telegram-automation",
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string  `json:"username"`
		Password string  `json:"password"`
		Email    *string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.registrar.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		s.logger.Error("registration failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

// handleAuthRedirect sends the user to the Google consent screen. The
// account id rides the OAuth state parameter so the callback knows whose
// connect flow this is.
func (s *Server) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, s.auth.AuthURL(strconv.FormatInt(userID, 10)), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, "authorization error: "+errParam)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "no authorization code received")
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("state"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}

	state, err := s.provisioner.Connect(r.Context(), userID, code)
	if err != nil {
		s.writeFlowError(w, "connect", userID, err)
		return
	}

	writeJSON(w, http.StatusOK, connectedView(state))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	state, err := s.provisioner.Dashboard(r.Context(), userID)
	if err != nil {
		s.logger.Error("dashboard lookup failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"credential": credentialView(state.Credential),
		"workflow":   workflowView(state.Workflow),
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	state, err := s.provisioner.Resume(r.Context(), userID)
	if err != nil {
		s.writeFlowError(w, "resume", userID, err)
		return
	}

	writeJSON(w, http.StatusOK, connectedView(state))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	if err := s.provisioner.Teardown(r.Context(), userID); err != nil {
		s.writeFlowError(w, "disconnect", userID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid user id")
		return 0, false
	}
	return userID, true
}

// writeFlowError maps orchestrator errors onto HTTP statuses. The local
// store is always queryable afterwards, so the dashboard can show how far
// the flow got regardless of the error returned here.
func (s *Server) writeFlowError(w http.ResponseWriter, flow string, userID int64, err error) {
	s.logger.Error(flow+" failed", "user_id", userID, "error", err)

	var exchangeErr *googleauth.TokenExchangeError
	var lookupErr *googleauth.IdentityLookupError
	var provisionErr *n8n.WorkflowProvisionError

	switch {
	case errors.Is(err, repository.ErrOwnershipConflict):
		writeError(w, http.StatusConflict, "this gmail address is already connected to another account")
	case errors.Is(err, service.ErrAlreadyProvisioned):
		writeError(w, http.StatusConflict, "workflow already provisioned")
	case errors.Is(err, service.ErrNotConnected):
		writeError(w, http.StatusBadRequest, "no gmail account connected")
	case errors.As(err, &exchangeErr), errors.As(err, &lookupErr), errors.As(err, &provisionErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, flow+" failed")
	}
}

func connectedView(state *service.ConnectedState) map[string]any {
	return map[string]any{
		"credential": credentialView(state.Credential),
		"workflow":   workflowView(state.Workflow),
	}
}

// credentialView deliberately omits the OAuth tokens.
func credentialView(cred *models.GmailCredential) map[string]any {
	if cred == nil {
		return nil
	}
	return map[string]any{
		"id":                cred.ID,
		"gmail_email":       cred.GmailEmail,
		"n8n_credential_id": cred.N8NCredentialID,
		"status":            cred.Status,
		"created_at":        cred.CreatedAt.Format(time.RFC3339),
		"updated_at":        cred.UpdatedAt.Format(time.RFC3339),
	}
}

func workflowView(wf *models.Workflow) map[string]any {
	if wf == nil {
		return nil
	}
	return map[string]any{
		"id":              wf.ID,
		"name":            wf.Name,
		"n8n_workflow_id": wf.N8NWorkflowID,
		"run_status":      wf.RunStatus,
		"status":          wf.Status,
		"created_at":      wf.CreatedAt.Format(time.RFC3339),
		"updated_at":      wf.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
