package auth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Provider is the authorization server the TokenManager talks to.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	DeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error)
	DeviceAccessToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error)
}

type OAuthProvider struct {
	cfg *oauth2.Config
}

// NewMicrosoftProvider configures a public client against the Microsoft identity platform.
func NewMicrosoftProvider(clientID, tenant string, scopes []string) *OAuthProvider {
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	endpoint.DeviceAuthURL = "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/devicecode"
	// Public clients have no secret to put into a basic auth header.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return NewOAuthProvider(&oauth2.Config{
		ClientID: clientID,
		Endpoint: endpoint,
		Scopes:   scopes,
	})
}

func NewOAuthProvider(cfg *oauth2.Config) *OAuthProvider {
	return &OAuthProvider{cfg: cfg}
}

func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// An empty access token forces the token source to use the refresh grant.
	return p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

func (p *OAuthProvider) DeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	return p.cfg.DeviceAuth(ctx)
}

func (p *OAuthProvider) DeviceAccessToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	return p.cfg.DeviceAccessToken(ctx, da)
}

// describe extracts the provider supplied error description when there is one.
func describe(err error) string {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorDescription != "" {
			return rerr.ErrorDescription
		}
		if rerr.ErrorCode != "" {
			return rerr.ErrorCode
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "device authorization timed out"
	}

	return err.Error()
}
