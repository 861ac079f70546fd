package mailsink

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/oklog/ulid/v2"

	"github.com/shineum/form-mailer/internal/email"
)

// errAuthRequired uses 530 (RFC 4954) rather than the library's 502.
var errAuthRequired = &smtp.SMTPError{
	Code:         530,
	EnhancedCode: smtp.EnhancedCode{5, 7, 0},
	Message:      "Authentication required",
}

// session holds the state of one SMTP connection.
type session struct {
	sink   *Sink
	remote string
	tls    bool
	authed bool

	from string
	to   []string
}

// AuthMechanisms implements smtp.AuthSession.
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth implements smtp.AuthSession.
func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if s.sink.authRequired() && !s.sink.checkCredentials(username, password) {
			slog.Warn("mail sink authentication failed", "remote", s.remote, "username", username)
			return smtp.ErrAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.sink.authRequired() && !s.authed {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	msg := Message{
		ID:         ulid.Make().String(),
		ReceivedAt: time.Now().UTC(),
		RemoteAddr: s.remote,
		TLS:        s.tls,
		From:       s.from,
		To:         append([]string(nil), s.to...),
		Raw:        raw,
	}

	parsed, err := email.Parse(bytes.NewReader(raw))
	if err != nil {
		slog.Warn("mail sink could not parse message", "id", msg.ID, "error", err)
	} else {
		msg.Parsed = parsed
	}

	s.sink.store(msg)

	attrs := []any{
		"id", msg.ID,
		"from", msg.From,
		"to", msg.To,
		"size", len(raw),
		"tls", msg.TLS,
	}
	if parsed != nil {
		attrs = append(attrs,
			"subject", parsed.Subject,
			"message_id", parsed.MessageID,
			"has_text", parsed.TextBody != "",
			"has_html", parsed.HtmlBody != "",
		)
	}
	slog.Info("mail sink accepted message", attrs...)

	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
