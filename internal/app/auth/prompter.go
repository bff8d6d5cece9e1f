package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/browser"
)

// DeviceCode is what the operator needs to authorize the agent out-of-band.
type DeviceCode struct {
	VerificationURI string
	UserCode        string
	Expiry          time.Time
}

type Prompter interface {
	Prompt(ctx context.Context, code DeviceCode)
}

// ConsolePrompter prints the device code banner and tries to open a browser.
type ConsolePrompter struct {
	out         io.Writer
	openBrowser func(url string) error
	logger      *slog.Logger
}

func NewConsolePrompter(out io.Writer, logger *slog.Logger) *ConsolePrompter {
	return &ConsolePrompter{
		out:         out,
		openBrowser: browser.OpenURL,
		logger:      logger,
	}
}

func (p *ConsolePrompter) Prompt(ctx context.Context, code DeviceCode) {
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintln(&b, "Mailbox authorization required")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "\nVisit:      %s\n", code.VerificationURI)
	fmt.Fprintf(&b, "Enter code: %s\n", code.UserCode)
	if !code.Expiry.IsZero() {
		fmt.Fprintf(&b, "Expires:    %s\n", code.Expiry.Format(time.DateTime))
	}
	fmt.Fprintf(&b, "\nSign in with the mailbox account and grant access.\n%s\n\n", rule)
	_, _ = io.WriteString(p.out, b.String())

	if p.openBrowser == nil {
		return
	}
	if err := p.openBrowser(code.VerificationURI); err != nil {
		p.logger.DebugContext(ctx, "unable to open browser", slog.Any("error", err))
	}
}
