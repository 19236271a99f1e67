package models

import "time"

const (
	CredentialStatusActive  = "active"
	CredentialStatusRevoked = "revoked"
)

// GmailCredential holds the OAuth tokens for one gmail address. A gmail
// address belongs to at most one user at a time (unique on gmail_email).
type GmailCredential struct {
	ID         int64
	UserID     int64
	GmailEmail string

	AccessToken  string
	RefreshToken string

	// N8NCredentialID is the credential resource id on the n8n instance.
	// Nil until the credential has been registered there.
	N8NCredentialID *string

	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
