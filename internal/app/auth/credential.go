package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// expirySkew is subtracted from the token expiry so that a token is not handed
// to a transport moments before the provider stops accepting it.
const expirySkew = 60 * time.Second

// Credential is the delegated mailbox access persisted in the cache file.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Account      string    `json:"account,omitempty"`
}

// Valid reports whether the access token can be used without contacting the provider.
// Credentials without a known expiry are trusted as long as a token is present.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}

	return now.Add(expirySkew).Before(c.Expiry)
}

// CanRefresh reports whether a silent refresh can be attempted.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

func credentialFromToken(tok *oauth2.Token, account string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Account:      account,
	}
}
