package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrInteractiveAuth is returned when the device authorization flow fails or times out.
	ErrInteractiveAuth = errors.New("interactive authorization failed")
	// ErrNoCredential is returned when the provider answers without an access token.
	ErrNoCredential = errors.New("provider returned no access token")
)

// TokenManager produces a usable access token for the mailbox account,
// preferring the cache, then a silent refresh, then the device flow.
//
// Acquisitions are serialized, so at most one flow is in progress per process.
type TokenManager struct {
	account  string
	store    CredentialStore
	provider Provider
	prompter Prompter
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewTokenManager(
	account string,
	store CredentialStore,
	provider Provider,
	prompter Prompter,
	deviceFlowTimeout time.Duration,
	logger *slog.Logger,
) *TokenManager {
	return &TokenManager{
		account:  account,
		store:    store,
		provider: provider,
		prompter: prompter,
		timeout:  deviceFlowTimeout,
		now:      time.Now,
		logger:   logger,
	}
}

// AccessToken returns an access token for the managed account.
//
// Execution flow:
//  1. Load the cached credential; unreadable or foreign caches count as absent.
//  2. Return the cached token when it is present and not about to expire.
//  3. Refresh silently when the cache holds a refresh token.
//  4. Fall back to the device authorization flow, blocking until the operator
//     completes it, the provider rejects it or the timeout elapses.
//
// Every newly acquired credential overwrites the cache.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached := m.loadCached(ctx)
	if cached.Valid(m.now()) {
		m.logger.DebugContext(ctx, "using cached access token")
		return cached.AccessToken, nil
	}

	if cached.CanRefresh() {
		cred, err := m.refresh(ctx, cached)
		if err == nil {
			return cred.AccessToken, nil
		}
		m.logger.WarnContext(ctx, "silent token refresh failed", slog.Any("error", err))
	}

	cred, err := m.interactive(ctx)
	if err != nil {
		return "", err
	}

	return cred.AccessToken, nil
}

// Login runs the device authorization flow regardless of the cache state.
func (m *TokenManager) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.interactive(ctx)
	return err
}

// Invalidate marks the cached access token as expired after a transport
// rejected it. The refresh token is kept, so the next acquisition refreshes.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached := m.loadCached(ctx)
	if cached == nil {
		return nil
	}

	cached.Expiry = m.now().Add(-time.Second)
	if err := m.store.Save(cached); err != nil {
		return fmt.Errorf("save invalidated credential: %w", err)
	}
	m.logger.InfoContext(ctx, "cached access token invalidated")

	return nil
}

func (m *TokenManager) loadCached(ctx context.Context) *Credential {
	cred, err := m.store.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m.logger.DebugContext(ctx, "no cached credential")
		return nil
	case err != nil:
		m.logger.WarnContext(ctx, "ignoring unreadable credential cache", slog.Any("error", err))
		return nil
	}

	if cred.Account != "" && cred.Account != m.account {
		m.logger.WarnContext(ctx, "ignoring credential cached for another account",
			slog.String("cached_account", cred.Account))
		return nil
	}

	return cred
}

func (m *TokenManager) refresh(ctx context.Context, cached *Credential) (*Credential, error) {
	m.logger.InfoContext(ctx, "refreshing access token")

	tok, err := m.provider.Refresh(ctx, cached.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: %s", describe(err))
	}

	// Providers may omit the refresh token when it was not rotated.
	if tok != nil && tok.RefreshToken == "" {
		tok.RefreshToken = cached.RefreshToken
	}

	return m.accept(ctx, tok)
}

func (m *TokenManager) interactive(ctx context.Context) (*Credential, error) {
	m.logger.InfoContext(ctx, "interactive authorization required")

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	da, err := m.provider.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: start device flow: %s", ErrInteractiveAuth, describe(err))
	}
	if da.UserCode == "" {
		return nil, fmt.Errorf("%w: device flow returned no user code", ErrInteractiveAuth)
	}

	m.prompter.Prompt(ctx, DeviceCode{
		VerificationURI: da.VerificationURI,
		UserCode:        da.UserCode,
		Expiry:          da.Expiry,
	})

	tok, err := m.provider.DeviceAccessToken(ctx, da)
	if err != nil {
		m.logger.ErrorContext(ctx, "interactive authorization failed", slog.String("reason", describe(err)))
		return nil, fmt.Errorf("%w: %s", ErrInteractiveAuth, describe(err))
	}

	cred, err := m.accept(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInteractiveAuth, err)
	}
	m.logger.InfoContext(ctx, "interactive authorization succeeded")

	return cred, nil
}

// accept turns a provider token into the new authoritative credential.
func (m *TokenManager) accept(ctx context.Context, tok *oauth2.Token) (*Credential, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrNoCredential
	}

	cred := credentialFromToken(tok, m.account)
	m.persist(ctx, cred)

	return cred, nil
}

// persist logs instead of failing: a token that could not be cached is still usable.
func (m *TokenManager) persist(ctx context.Context, cred *Credential) {
	if err := m.store.Save(cred); err != nil {
		m.logger.ErrorContext(ctx, "failed to save credential cache", slog.Any("error", err))
		return
	}
	m.logger.DebugContext(ctx, "credential cache updated")
}
