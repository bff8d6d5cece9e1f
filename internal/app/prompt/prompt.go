package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hickar/replybot/internal/app/mailer"
)

const (
	defaultSystemTemplate = `You are a professional email assistant who writes courteous, well-judged replies.`

	defaultUserTemplate = `Write a reply to the email below.

From: {{ .From }}
Subject: {{ .Subject }}
Body:
{{ truncate .Body 8000 }}

Write the reply in {{ .Language }}. The reply should be polite and professional,
address the content of the email directly and stay between 100 and 300 words.
Return only the body of the reply, without greeting or signature.`
)

var (
	fallbackReplies = map[string]string{
		"zh": "感谢您的来信。我已收到您的邮件，稍后会给您详细回复。",
		"en": "Thank you for your email. I have received it and will get back to you with a detailed reply soon.",
	}

	templateFuncs = template.FuncMap{
		"truncate":  truncate,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
	}
)

// File is the layout of the optional prompt override file. Empty fields keep the defaults.
type File struct {
	System   string `yaml:"system"`
	User     string `yaml:"user"`
	Fallback string `yaml:"fallback"`
}

type templateData struct {
	From     string
	Subject  string
	Body     string
	Language string
}

// Templates renders completion prompts for inbound messages.
type Templates struct {
	system   *template.Template
	user     *template.Template
	fallback string
	language string
}

func New(language string, overrides File) (*Templates, error) {
	system, user := defaultSystemTemplate, defaultUserTemplate
	if overrides.System != "" {
		system = overrides.System
	}
	if overrides.User != "" {
		user = overrides.User
	}

	systemTmpl, err := template.New("system").Funcs(templateFuncs).Parse(system)
	if err != nil {
		return nil, fmt.Errorf("parse system template: %w", err)
	}
	userTmpl, err := template.New("user").Funcs(templateFuncs).Parse(user)
	if err != nil {
		return nil, fmt.Errorf("parse user template: %w", err)
	}

	fallback := overrides.Fallback
	if fallback == "" {
		fallback = FallbackFor(language)
	}

	return &Templates{
		system:   systemTmpl,
		user:     userTmpl,
		fallback: fallback,
		language: language,
	}, nil
}

// Load builds Templates, applying the override file at path when it is set.
func Load(path, language string) (*Templates, error) {
	var overrides File
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		if err = yaml.Unmarshal(content, &overrides); err != nil {
			return nil, fmt.Errorf("decode prompts file: %w", err)
		}
	}

	return New(language, overrides)
}

func (t *Templates) Build(in mailer.InboundMessage) (mailer.Prompt, error) {
	data := templateData{
		From:     in.From,
		Subject:  in.Subject,
		Body:     in.Body,
		Language: t.language,
	}

	system, err := execute(t.system, data)
	if err != nil {
		return mailer.Prompt{}, err
	}
	user, err := execute(t.user, data)
	if err != nil {
		return mailer.Prompt{}, err
	}

	return mailer.Prompt{System: system, User: user}, nil
}

func (t *Templates) Fallback() string {
	return t.fallback
}

// FallbackFor returns the acknowledgement sent when no reply could be generated.
// Languages are matched by their primary subtag; unknown ones get English.
func FallbackFor(language string) string {
	primary, _, _ := strings.Cut(strings.ToLower(language), "-")
	if reply, ok := fallbackReplies[primary]; ok {
		return reply
	}

	return fallbackReplies["en"]
}

func execute(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", tmpl.Name(), err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "…"
}
