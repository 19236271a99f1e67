package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qritwik/n8n-saas/internal/models"
)

var (
	ErrCredentialNotFound = errors.New("gmail credential not found")
	ErrOwnershipConflict  = errors.New("gmail address already connected to another account")
)

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert inserts or updates the credential for a gmail address. The write is
// a single statement: the ON CONFLICT update only fires when the existing row
// belongs to the same user, so the ownership check cannot race with the
// insert. Zero rows back means the address is owned by a different user.
func (r *CredentialRepository) Upsert(ctx context.Context, userID int64, gmailEmail, accessToken, refreshToken string) (*models.GmailCredential, error) {
	query := `
		INSERT INTO gmail_credentials (user_id, gmail_email, access_token, refresh_token, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (gmail_email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			status = EXCLUDED.status,
			updated_at = now()
		WHERE gmail_credentials.user_id = EXCLUDED.user_id
		RETURNING id, n8n_gmail_credential, created_at, updated_at
	`

	cred := models.GmailCredential{
		UserID:       userID,
		GmailEmail:   gmailEmail,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Status:       models.CredentialStatusActive,
	}
	err := r.db.QueryRowContext(ctx, query, userID, gmailEmail, accessToken, refreshToken, models.CredentialStatusActive).
		Scan(&cred.ID, &cred.N8NCredentialID, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", gmailEmail, ErrOwnershipConflict)
		}
		return nil, fmt.Errorf("failed to upsert credential: %w", err)
	}
	return &cred, nil
}

// SetN8NCredentialID stores the n8n credential resource id on the row.
func (r *CredentialRepository) SetN8NCredentialID(ctx context.Context, credentialID int64, n8nCredentialID string) error {
	query := `
		UPDATE gmail_credentials
		SET n8n_gmail_credential = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, n8nCredentialID, time.Now(), credentialID)
	if err != nil {
		return fmt.Errorf("failed to set n8n credential id: %w", err)
	}
	return nil
}

// ActiveByUser returns the user's most recently updated active credential.
func (r *CredentialRepository) ActiveByUser(ctx context.Context, userID int64) (*models.GmailCredential, error) {
	query := `
		SELECT id, user_id, gmail_email, access_token, refresh_token, n8n_gmail_credential, status, created_at, updated_at
		FROM gmail_credentials
		WHERE user_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, models.CredentialStatusActive))
}

// ByEmail returns the active credential for a gmail address, whoever owns it.
func (r *CredentialRepository) ByEmail(ctx context.Context, gmailEmail string) (*models.GmailCredential, error) {
	query := `
		SELECT id, user_id, gmail_email, access_token, refresh_token, n8n_gmail_credential, status, created_at, updated_at
		FROM gmail_credentials
		WHERE gmail_email = $1 AND status = $2
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, gmailEmail, models.CredentialStatusActive))
}

// DeleteByUser removes all credentials of the user. Deleting a user with no
// credentials is not an error.
func (r *CredentialRepository) DeleteByUser(ctx context.Context, userID int64) error {
	query := `DELETE FROM gmail_credentials WHERE user_id = $1`

	_, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepository) scanOne(row *sql.Row) (*models.GmailCredential, error) {
	var cred models.GmailCredential
	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.GmailEmail,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.N8NCredentialID,
		&cred.Status,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	return &cred, nil
}
