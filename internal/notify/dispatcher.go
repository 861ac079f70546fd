// Package notify composes the download notification and delivers it through
// a freshly created provider, reporting the outcome as a tagged Result.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shineum/form-mailer/internal/config"
	"github.com/shineum/form-mailer/internal/provider"
)

// Kind classifies the outcome of a dispatch.
type Kind int

const (
	// Sent means the provider accepted the message.
	Sent Kind = iota
	// NotConfigured means mandatory transport settings are missing. No
	// provider was created and nothing was sent.
	NotConfigured
	// Failed means the provider could not be created or rejected the message.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Sent:
		return "sent"
	case NotConfigured:
		return "not_configured"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one dispatch. MessageID is set for Sent, Reason
// for NotConfigured and Failed.
type Result struct {
	Kind      Kind
	MessageID string
	Reason    string
}

// Factory creates the provider used for a single delivery.
type Factory func(ctx context.Context, cfg *config.Config) (provider.Provider, error)

const redacted = "[REDACTED]"

// Dispatcher sends the notification email. It holds no per-request state
// and is safe for concurrent use.
type Dispatcher struct {
	cfg     *config.Config
	factory Factory
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil factory selects provider.New and
// a nil logger selects slog.Default().
func NewDispatcher(cfg *config.Config, factory Factory, logger *slog.Logger) *Dispatcher {
	if factory == nil {
		factory = provider.New
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, factory: factory, log: logger}
}

// Dispatch sends the notification to recipient in a single attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient string) Result {
	if err := d.cfg.DeliveryConfigured(); err != nil {
		d.log.ErrorContext(ctx, "email service not configured",
			"kind", "config",
			"provider", d.cfg.Provider,
			"error", err,
		)
		return Result{Kind: NotConfigured, Reason: err.Error()}
	}

	downloadURL := DownloadURL(d.cfg.Site.URL)
	msg := Compose(d.cfg.Email.User, recipient, downloadURL)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout())
	defer cancel()

	p, err := d.factory(ctx, d.cfg)
	if err != nil {
		reason := d.redact(err.Error())
		d.log.ErrorContext(ctx, "failed to create provider",
			"kind", "delivery",
			"provider", d.cfg.Provider,
			"error", reason,
		)
		return Result{Kind: Failed, Reason: reason}
	}

	id, err := p.Send(ctx, msg)
	if err != nil {
		reason := d.redact(err.Error())
		d.log.ErrorContext(ctx, "failed to send email",
			"kind", "delivery",
			"provider", p.Name(),
			"to", recipient,
			"error", reason,
		)
		return Result{Kind: Failed, Reason: reason}
	}

	d.log.InfoContext(ctx, "email sent",
		"provider", p.Name(),
		"to", recipient,
		"message_id", id,
		"download_url", downloadURL,
	)
	return Result{Kind: Sent, MessageID: id}
}

// redact removes the transport password from text that may leave the process.
// Only whole-token occurrences are replaced, so a short password cannot
// mangle the surrounding words.
func (d *Dispatcher) redact(s string) string {
	secret := d.cfg.Email.Pass
	if secret == "" {
		return s
	}

	var b strings.Builder
	last := 0
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], secret)
		if i < 0 {
			break
		}
		i += from
		end := i + len(secret)
		if !standsAlone(s, secret, i, end) {
			_, size := utf8.DecodeRuneInString(s[i:])
			from = i + size
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(redacted)
		last, from = end, end
	}
	b.WriteString(s[last:])
	return b.String()
}

// standsAlone reports whether s[i:end], an occurrence of secret, is not
// glued to letters or digits on a side where secret itself starts or ends
// with one.
func standsAlone(s, secret string, i, end int) bool {
	if first, _ := utf8.DecodeRuneInString(secret); isWordRune(first) && i > 0 {
		if prev, _ := utf8.DecodeLastRuneInString(s[:i]); isWordRune(prev) {
			return false
		}
	}
	if last, _ := utf8.DecodeLastRuneInString(secret); isWordRune(last) && end < len(s) {
		if next, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
