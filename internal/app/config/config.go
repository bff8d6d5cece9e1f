package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AuthMethodPassword = "password"
	AuthMethodOAuth2   = "oauth2"
)

type Config struct {
	EmailAddress  string `env:"EMAIL_ADDRESS,required"`   // Mailbox login, also used as reply sender.
	EmailPassword string `env:"EMAIL_PASSWORD"`           // Mailbox password, optional when OAuth2 is used.
	AuthMethod    string `env:"AUTH_METHOD" envDefault:"password"`

	IMAPServer      string        `env:"IMAP_SERVER" envDefault:"outlook.office365.com:993"`
	SMTPServer      string        `env:"SMTP_SERVER" envDefault:"smtp.office365.com:587"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	OpenAIAPIKey  string  `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AIModel       string  `env:"AI_MODEL" envDefault:"gpt-3.5-turbo"`
	AITemperature float32 `env:"AI_TEMPERATURE" envDefault:"0.7"`
	AIMaxTokens   int     `env:"AI_MAX_TOKENS" envDefault:"500"`

	CheckInterval int           `env:"CHECK_INTERVAL" envDefault:"60"` // Seconds between mailbox checks.
	RetryCooldown time.Duration `env:"RETRY_COOLDOWN" envDefault:"60s"` // Pause after a failed cycle.
	ReplyDelay    time.Duration `env:"REPLY_DELAY" envDefault:"2s"`     // Pause between sent replies.
	ReplyLanguage string        `env:"REPLY_LANGUAGE" envDefault:"zh-CN"`
	PromptsFile   string        `env:"PROMPTS_FILE"`

	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
	LogFile   string `env:"LOG_FILE"`
}

type OAuthConfig struct {
	ClientID          string        `env:"CLIENT_ID" envDefault:"d3590ed6-52b3-4102-aeff-aad2292ab01c"`
	Tenant            string        `env:"TENANT" envDefault:"common"`
	Scopes            []string      `env:"SCOPES" envSeparator:"," envDefault:"https://outlook.office365.com/IMAP.AccessAsUser.All,https://outlook.office365.com/SMTP.Send,offline_access"`
	TokenFile         string        `env:"TOKEN_FILE" envDefault:"outlook_token.json"`
	DeviceFlowTimeout time.Duration `env:"DEVICE_FLOW_TIMEOUT" envDefault:"15m"`
}

// PollInterval returns the pause between two successful processing cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// UsesOAuth reports whether mailbox access goes through the delegated token flow.
func (c *Config) UsesOAuth() bool {
	return c.AuthMethod == AuthMethodOAuth2
}

// Load reads configuration from environment variables. Variables found in envFilepath
// are loaded first when the file exists; already exported variables take precedence.
func Load(envFilepath string) (*Config, error) {
	if envFilepath != "" {
		if _, err := os.Stat(envFilepath); err == nil {
			if err = godotenv.Load(envFilepath); err != nil {
				return nil, fmt.Errorf("unable to load environment variables from file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that struct tags can not express.
func (c *Config) Validate() error {
	var errs []error

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.EmailPassword == "" {
			errs = append(errs, errors.New(`EMAIL_PASSWORD is required when AUTH_METHOD is "password"`))
		}
	case AuthMethodOAuth2:
		if c.OAuth.ClientID == "" {
			errs = append(errs, errors.New(`OAUTH_CLIENT_ID is required when AUTH_METHOD is "oauth2"`))
		}
		if c.OAuth.TokenFile == "" {
			errs = append(errs, errors.New(`OAUTH_TOKEN_FILE is required when AUTH_METHOD is "oauth2"`))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_METHOD must be %q or %q, got %q", AuthMethodPassword, AuthMethodOAuth2, c.AuthMethod))
	}

	if !strings.Contains(c.EmailAddress, "@") {
		errs = append(errs, fmt.Errorf("EMAIL_ADDRESS %q is not an email address", c.EmailAddress))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("CHECK_INTERVAL must be positive, got %d", c.CheckInterval))
	}
	if c.RetryCooldown <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_COOLDOWN must be positive, got %s", c.RetryCooldown))
	}
	if c.ReplyDelay < 0 {
		errs = append(errs, fmt.Errorf("REPLY_DELAY must not be negative, got %s", c.ReplyDelay))
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		errs = append(errs, fmt.Errorf("AI_TEMPERATURE must be within [0, 2], got %v", c.AITemperature))
	}
	if c.AIMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", c.AIMaxTokens))
	}

	return errors.Join(errs...)
}
