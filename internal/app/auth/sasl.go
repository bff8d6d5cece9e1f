package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-sasl"
)

// Credentials authenticate the mailbox account against IMAP and SMTP.
type Credentials interface {
	Username() string
	SASLClient(ctx context.Context) (sasl.Client, error)
	// Rejected is called when the server refused the credentials.
	Rejected(ctx context.Context)
}

type PasswordCredentials struct {
	username string
	password string
}

func NewPasswordCredentials(username, password string) *PasswordCredentials {
	return &PasswordCredentials{username: username, password: password}
}

func (c *PasswordCredentials) Username() string { return c.username }

func (c *PasswordCredentials) Password() string { return c.password }

func (c *PasswordCredentials) SASLClient(context.Context) (sasl.Client, error) {
	return sasl.NewPlainClient("", c.username, c.password), nil
}

func (c *PasswordCredentials) Rejected(context.Context) {}

// TokenSource is the part of the TokenManager the transports depend on.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// TokenCredentials authenticate with SASL XOAUTH2 using delegated access tokens.
type TokenCredentials struct {
	username string
	tokens   TokenSource
	logger   *slog.Logger
}

func NewTokenCredentials(username string, tokens TokenSource, logger *slog.Logger) *TokenCredentials {
	return &TokenCredentials{username: username, tokens: tokens, logger: logger}
}

func (c *TokenCredentials) Username() string { return c.username }

func (c *TokenCredentials) SASLClient(ctx context.Context) (sasl.Client, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire access token: %w", err)
	}

	return NewXOAuth2Client(c.username, token), nil
}

func (c *TokenCredentials) Rejected(ctx context.Context) {
	if err := c.tokens.Invalidate(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate rejected token", slog.Any("error", err))
	}
}

// xoauth2Client implements the non-standard XOAUTH2 mechanism used by
// Microsoft and Google mail servers.
type xoauth2Client struct {
	username string
	token    string
}

func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next answers the error challenge with an empty response, after which the
// server reports the failure.
func (c *xoauth2Client) Next([]byte) ([]byte, error) {
	return []byte{}, nil
}
