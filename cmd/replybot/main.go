package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hickar/replybot/internal/app/auth"
	"github.com/hickar/replybot/internal/app/completion"
	"github.com/hickar/replybot/internal/app/config"
	"github.com/hickar/replybot/internal/app/daemon"
	"github.com/hickar/replybot/internal/app/mailer"
	"github.com/hickar/replybot/internal/app/prompt"
	"github.com/hickar/replybot/internal/app/retriever"
	"github.com/hickar/replybot/internal/app/sender"
	"github.com/hickar/replybot/internal/pkg/logger"
)

var (
	envFilepath = flag.String("env-file", "./.env", "Filepath to environment variables file. Default is '.env'")
	loginOnly   = flag.Bool("login", false, "Run the OAuth2 device authorization flow, store the token and exit")
	runOnce     = flag.Bool("once", false, "Process unread mail once and exit")
)

func main() {
	flag.Parse()

	if err := run(*envFilepath, *loginOnly, *runOnce); err != nil {
		log.Printf("email assistant exited with error: %s", err)
		os.Exit(1)
	}
}

// run wires the application and blocks until it stops. Every exit path goes
// through the deferred cleanups, so the log file is always flushed and closed.
func run(envFile string, login, once bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	appLogger := logger.New(out, cfg.LogLevel, cfg.LogFormat, cfg.LogFile == "")
	mainLogger := appLogger.With(slog.String("module", "main"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var creds auth.Credentials
	if cfg.UsesOAuth() {
		tokens := auth.NewTokenManager(
			cfg.EmailAddress,
			auth.NewFileStore(cfg.OAuth.TokenFile),
			auth.NewMicrosoftProvider(cfg.OAuth.ClientID, cfg.OAuth.Tenant, cfg.OAuth.Scopes),
			auth.NewConsolePrompter(os.Stdout, appLogger.With(slog.String("module", "prompter"))),
			cfg.OAuth.DeviceFlowTimeout,
			appLogger.With(slog.String("module", "token_manager")),
		)

		if login {
			if err = tokens.Login(ctx); err != nil {
				mainLogger.Error("authorization failed", slog.Any("error", err))
				return err
			}
			mainLogger.Info("authorization succeeded", slog.String("token_file", cfg.OAuth.TokenFile))
			return nil
		}

		creds = auth.NewTokenCredentials(cfg.EmailAddress, tokens, appLogger.With(slog.String("module", "token_credentials")))
	} else {
		if login {
			return fmt.Errorf("-login requires AUTH_METHOD=%s", config.AuthMethodOAuth2)
		}
		creds = auth.NewPasswordCredentials(cfg.EmailAddress, cfg.EmailPassword)
	}

	prompts, err := prompt.Load(cfg.PromptsFile, cfg.ReplyLanguage)
	if err != nil {
		mainLogger.Error("failed to load prompts", slog.Any("error", err))
		return err
	}

	runner := mailer.NewRunner(
		cfg,
		retriever.NewIMAPMailbox(
			cfg.IMAPServer,
			creds,
			retriever.NewTLSDialer(cfg.IMAPDialTimeout),
			appLogger.With(slog.String("module", "retriever")),
		),
		sender.NewSMTPSender(cfg.SMTPServer, creds, appLogger.With(slog.String("module", "sender"))),
		completion.NewClient(completion.Settings{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.AIModel,
			Temperature: cfg.AITemperature,
			MaxTokens:   cfg.AIMaxTokens,
		}, appLogger.With(slog.String("module", "completion"))),
		prompts,
		appLogger.With(slog.String("module", "runner")),
	)

	if once {
		if _, err = runner.RunCycle(ctx); err != nil {
			mainLogger.Error("processing cycle failed", slog.Any("error", err))
			return err
		}
		return nil
	}

	assistant := daemon.NewDaemon(
		cfg,
		daemon.NewScheduler(),
		runner,
		appLogger.With(slog.String("module", "daemon")),
	)

	if err = assistant.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		mainLogger.Error(fmt.Sprintf("Application exited with error: %s", err))
		return err
	}
	mainLogger.Info("email assistant stopped")

	return nil
}
