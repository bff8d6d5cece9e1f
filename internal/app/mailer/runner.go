package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hickar/replybot/internal/app/config"
	"github.com/hickar/replybot/internal/pkg/logger"
)

// ErrMailboxUnavailable marks failures that abort a whole cycle.
var ErrMailboxUnavailable = errors.New("mailbox unavailable")

type Mailbox interface {
	// Open connects, authenticates and selects the inbox.
	Open(context.Context) (MailboxSession, error)
}

type MailboxSession interface {
	ListUnseen(context.Context) ([]MessageRef, error)
	Fetch(context.Context, MessageRef) (RawMessage, error)
	MarkSeen(context.Context, MessageRef) error
	Close() error
}

type Sender interface {
	Send(context.Context, ReplyMessage) error
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Prompt struct {
	System string
	User   string
}

type PromptBuilder interface {
	Build(InboundMessage) (Prompt, error)
	// Fallback is sent whenever no reply could be generated.
	Fallback() string
}

type Runner struct {
	cfg       *config.Config
	mailbox   Mailbox
	sender    Sender
	completer Completer
	prompts   PromptBuilder
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error
}

func NewRunner(
	cfg *config.Config,
	mailbox Mailbox,
	sender Sender,
	completer Completer,
	prompts PromptBuilder,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		mailbox:   mailbox,
		sender:    sender,
		completer: completer,
		prompts:   prompts,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// RunCycle replies to every unseen message in the inbox.
//
// Only failures to open the mailbox or to list its messages are returned as
// errors. Everything that goes wrong with a single message is recorded in its
// Outcome and does not affect the remaining messages.
//
// Cancelling ctx never interrupts a message that is being processed: the cycle
// stops before the next message or during the delay between replies.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	ctx = logger.WithAttrs(ctx, slog.String("account", r.cfg.EmailAddress))

	session, err := r.mailbox.Open(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrMailboxUnavailable, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.WarnContext(ctx, "failed to close mailbox session", slog.Any("error", err))
		}
	}()

	refs, err := session.ListUnseen(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list unseen: %w", ErrMailboxUnavailable, err)
	}
	if len(refs) == 0 {
		r.logger.InfoContext(ctx, "no unread messages")
		return report, nil
	}
	r.logger.InfoContext(ctx, fmt.Sprintf("found %d unread messages", len(refs)))

	// Items run to completion once started; cancellation is honoured between them.
	itemCtx := context.WithoutCancel(ctx)

	for i, ref := range refs {
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "cycle interrupted, remaining messages stay unread",
				slog.Int("remaining", len(refs)-i))
			break
		}

		outcome := r.process(itemCtx, session, ref)
		report.Outcomes = append(report.Outcomes, outcome)

		if !outcome.Sent() || i == len(refs)-1 {
			continue
		}
		// Spread replies out instead of bursting the send transport.
		if err = r.sleep(ctx, r.cfg.ReplyDelay); err != nil {
			r.logger.InfoContext(ctx, "cycle interrupted, remaining messages stay unread",
				slog.Int("remaining", len(refs)-i-1))
			break
		}
	}

	r.logger.InfoContext(ctx, "mail processing finished",
		slog.Int("replied", report.Count(StatusReplied)),
		slog.Int("send_failed", report.Count(StatusSendFailed)),
		slog.Int("mark_failed", report.Count(StatusMarkFailed)),
		slog.Int("failed", report.Count(StatusFailed)),
	)

	return report, nil
}

func (r *Runner) process(ctx context.Context, session MailboxSession, ref MessageRef) (outcome Outcome) {
	ctx = logger.WithAttrs(ctx, slog.Uint64("uid", uint64(ref.UID)))
	outcome.Ref = ref

	defer func() {
		if p := recover(); p != nil {
			outcome.Status = StatusFailed
			outcome.Err = fmt.Errorf("panic: %v", p)
			r.logger.ErrorContext(ctx, "message processing panicked", slog.Any("error", outcome.Err))
		}
	}()

	raw, err := session.Fetch(ctx, ref)
	if err != nil {
		return r.failed(ctx, outcome, StatusFailed, fmt.Errorf("fetch: %w", err))
	}

	in, err := Decode(raw)
	if err != nil {
		return r.failed(ctx, outcome, StatusFailed, fmt.Errorf("decode: %w", err))
	}
	outcome.From, outcome.Subject = in.From, in.Subject
	ctx = logger.WithAttrs(ctx, slog.String("from", in.From))
	r.logger.InfoContext(ctx, "processing message", slog.String("subject", in.Subject))

	body, fallback := r.compose(ctx, in)
	outcome.Fallback = fallback

	reply := NewReply(r.cfg.EmailAddress, in, body)
	if err = r.sender.Send(ctx, reply); err != nil {
		return r.failed(ctx, outcome, StatusSendFailed, fmt.Errorf("send reply: %w", err))
	}
	r.logger.InfoContext(ctx, "reply sent", slog.String("to", reply.To))

	if err = session.MarkSeen(ctx, ref); err != nil {
		return r.failed(ctx, outcome, StatusMarkFailed, fmt.Errorf("mark seen: %w", err))
	}
	outcome.Status = StatusReplied

	return outcome
}

// compose asks the completion service for a reply body. A broken completion
// backend never prevents a reply: the fallback text is used instead.
func (r *Runner) compose(ctx context.Context, in InboundMessage) (string, bool) {
	prompt, err := r.prompts.Build(in)
	if err != nil {
		r.logger.WarnContext(ctx, "prompt rendering failed, using fallback reply", slog.Any("error", err))
		return r.prompts.Fallback(), true
	}

	text, err := r.completer.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		r.logger.WarnContext(ctx, "reply generation failed, using fallback reply", slog.Any("error", err))
		return r.prompts.Fallback(), true
	}

	text = strings.TrimSpace(text)
	if text == "" {
		r.logger.WarnContext(ctx, "completion returned empty reply, using fallback reply")
		return r.prompts.Fallback(), true
	}
	r.logger.DebugContext(ctx, "reply generated", slog.Int("length", len(text)))

	return text, false
}

func (r *Runner) failed(ctx context.Context, outcome Outcome, status Status, err error) Outcome {
	outcome.Status = status
	outcome.Err = err
	r.logger.ErrorContext(ctx, "message processing failed",
		slog.String("status", status.String()),
		slog.Any("error", err),
	)

	return outcome
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
