package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"
)

// SMTPConfig holds mail alert settings.
type SMTPConfig struct {
	Host string
	Port int
	From string
	To   []string

	// Kinds limits which events are mailed; empty means fatal and failures only.
	Kinds []Kind
}

// SMTPNotifier mails selected events to operators.
type SMTPNotifier struct {
	cfg   SMTPConfig
	kinds map[Kind]bool
	send  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates a mail notifier.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	kinds := map[Kind]bool{}
	if len(cfg.Kinds) == 0 {
		kinds[KindFatal] = true
		kinds[KindActionFailed] = true
	}
	for _, k := range cfg.Kinds {
		kinds[k] = true
	}
	return &SMTPNotifier{cfg: cfg, kinds: kinds, send: smtp.SendMail}
}

// Notify implements Notifier. Events of unselected kinds are ignored.
func (n *SMTPNotifier) Notify(ctx context.Context, e Event) error {
	if !n.kinds[e.Kind] {
		return nil
	}
	if n.cfg.Host == "" || len(n.cfg.To) == 0 {
		return fmt.Errorf("smtp notifier: host or recipients not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := render(e)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		n.cfg.From, strings.Join(n.cfg.To, ","), subject, body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, nil, n.cfg.From, n.cfg.To, []byte(msg)); err != nil {
		return fmt.Errorf("smtp notifier: %w", err)
	}
	return nil
}

func render(e Event) (string, string) {
	subject := fmt.Sprintf("[engagement] %s", e.Kind)
	if e.TenantID != "" {
		subject += " " + e.TenantID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Kind:     %s\n", e.Kind)
	fmt.Fprintf(&b, "Time:     %s\n", e.At.Format(time.RFC3339))
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%-9s %s\n", label+":", v)
		}
	}
	line("Tenant", e.TenantID)
	line("Action", e.ActionType)
	line("Account", e.AccountID)
	line("Source", e.SourceID)
	line("Error", e.ErrorKind)
	line("Message", e.Message)
	line("Preview", e.Preview)

	if len(e.Counts) > 0 {
		keys := make([]string, 0, len(e.Counts))
		for k := range e.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nCounts:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %-10s %d\n", k, e.Counts[k])
		}
	}
	b.WriteString("\n---\nAutomated alert from the engagement engine.\n")
	return subject, b.String()
}
