package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("EMAIL_ADDRESS", "bot@example.com")
	t.Setenv("EMAIL_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bot@example.com", cfg.EmailAddress)
	assert.Equal(t, AuthMethodPassword, cfg.AuthMethod)
	assert.False(t, cfg.UsesOAuth())
	assert.Equal(t, "outlook.office365.com:993", cfg.IMAPServer)
	assert.Equal(t, "smtp.office365.com:587", cfg.SMTPServer)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.AIModel)
	assert.InDelta(t, 0.7, cfg.AITemperature, 0.0001)
	assert.Equal(t, 500, cfg.AIMaxTokens)
	assert.Equal(t, time.Minute, cfg.PollInterval())
	assert.Equal(t, 60*time.Second, cfg.RetryCooldown)
	assert.Equal(t, 2*time.Second, cfg.ReplyDelay)
	assert.Equal(t, "zh-CN", cfg.ReplyLanguage)
	assert.Equal(t, "outlook_token.json", cfg.OAuth.TokenFile)
	assert.Len(t, cfg.OAuth.Scopes, 3)
	assert.Equal(t, 15*time.Minute, cfg.OAuth.DeviceFlowTimeout)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("EMAIL_ADDRESS", "")
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("EMAIL_ADDRESS")
	os.Unsetenv("OPENAI_API_KEY")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_ADDRESS")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadOAuthWithoutPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("EMAIL_PASSWORD", "")
	t.Setenv("AUTH_METHOD", "oauth2")
	t.Setenv("OAUTH_TOKEN_FILE", "/tmp/token.json")
	t.Setenv("CHECK_INTERVAL", "15")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.UsesOAuth())
	assert.Equal(t, "/tmp/token.json", cfg.OAuth.TokenFile)
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
}

func TestLoadEnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("REPLY_LANGUAGE", "")
	os.Unsetenv("REPLY_LANGUAGE")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REPLY_LANGUAGE=en\nAI_MODEL=gpt-4o-mini\n"), 0o600))
	t.Setenv("AI_MODEL", "gpt-4o")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.ReplyLanguage)
	// Exported variables win over the file.
	assert.Equal(t, "gpt-4o", cfg.AIModel)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			EmailAddress:  "bot@example.com",
			EmailPassword: "secret",
			AuthMethod:    AuthMethodPassword,
			CheckInterval: 60,
			RetryCooldown: time.Minute,
			ReplyDelay:    2 * time.Second,
			AITemperature: 0.7,
			AIMaxTokens:   500,
			OAuth:         OAuthConfig{ClientID: "id", TokenFile: "token.json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "password method without password",
			mutate:  func(c *Config) { c.EmailPassword = "" },
			wantErr: "EMAIL_PASSWORD is required",
		},
		{
			name:    "unknown auth method",
			mutate:  func(c *Config) { c.AuthMethod = "kerberos" },
			wantErr: "AUTH_METHOD must be",
		},
		{
			name:    "oauth without token file",
			mutate:  func(c *Config) { c.AuthMethod = AuthMethodOAuth2; c.OAuth.TokenFile = "" },
			wantErr: "OAUTH_TOKEN_FILE is required",
		},
		{
			name:    "malformed address",
			mutate:  func(c *Config) { c.EmailAddress = "bot" },
			wantErr: "is not an email address",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.CheckInterval = 0 },
			wantErr: "CHECK_INTERVAL must be positive",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.AITemperature = 3 },
			wantErr: "AI_TEMPERATURE must be within",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
