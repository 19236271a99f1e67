package googleauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	scopeGmailReadonly = "https://www.googleapis.com/auth/gmail.readonly"
	scopeUserinfoEmail = "https://www.googleapis.com/auth/userinfo.email"
)

var (
	errNoRefreshToken = errors.New("no refresh token in provider response")
	errNoEmail        = errors.New("no email in userinfo response")
)

// TokenExchangeError means the provider rejected the authorization code
// (expired, already used, wrong redirect). Not retryable within a request.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return "token exchange failed: " + e.Err.Error()
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// IdentityLookupError means the provider rejected the access token during
// the owner-email lookup.
type IdentityLookupError struct {
	Err error
}

func (e *IdentityLookupError) Error() string {
	return "identity lookup failed: " + e.Err.Error()
}

func (e *IdentityLookupError) Unwrap() error { return e.Err }

// Client performs the Google OAuth authorization-code grant and resolves
// the mailbox identity behind an access token.
type Client struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{scopeGmailReadonly, scopeUserinfoEmail},
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthURL returns the Google consent-screen URL. The state parameter is
// round-tripped through the redirect and carries the caller's account id.
// Offline access with a forced consent prompt guarantees a refresh token.
func (c *Client) AuthURL(state string) string {
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode trades the authorization code for an access and refresh
// token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return "", "", &TokenExchangeError{Err: err}
	}
	if token.RefreshToken == "" {
		return "", "", &TokenExchangeError{Err: errNoRefreshToken}
	}
	return token.AccessToken, token.RefreshToken, nil
}

// ResolveEmail looks up the mailbox address the access token belongs to.
func (c *Client) ResolveEmail(ctx context.Context, accessToken string) (string, error) {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	svc, err := goauth2.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return "", &IdentityLookupError{Err: err}
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", &IdentityLookupError{Err: err}
	}
	if info.Email == "" {
		return "", &IdentityLookupError{Err: errNoEmail}
	}
	return info.Email, nil
}
