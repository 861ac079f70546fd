// Package mailsink implements a development SMTP server that accepts and
// records every message submitted to it. It stands in for a real relay so
// the form mailer can be exercised end to end without sending mail.
package mailsink

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/roadrunner-server/errors"

	"github.com/shineum/form-mailer/internal/email"
)

const (
	defaultMaxMessageBytes = 10 * 1024 * 1024
	defaultMaxRecipients   = 50
	defaultTimeout         = 60 * time.Second
)

// Config holds the configuration for a Sink.
type Config struct {
	// Addr is the address to listen on (e.g., ":2525").
	Addr string

	// Domain is announced in the greeting and EHLO response.
	Domain string

	// Username and Password enable AUTH PLAIN. When both are empty,
	// any client may submit without authenticating.
	Username string
	Password string

	// TLSConfig enables STARTTLS, or implicit TLS when ImplicitTLS is set.
	TLSConfig   *tls.Config
	ImplicitTLS bool

	MaxMessageBytes int64
	MaxRecipients   int
}

// Message is a message accepted by the sink.
type Message struct {
	ID         string
	ReceivedAt time.Time
	RemoteAddr string
	TLS        bool
	From       string
	To         []string
	Raw        []byte

	// Parsed is nil when the data could not be read as a MIME message.
	Parsed *email.Email
}

// Sink is an SMTP server that keeps accepted messages in memory.
type Sink struct {
	cfg      Config
	srv      *smtp.Server
	listener net.Listener

	mu       sync.Mutex
	messages []Message
}

// New validates cfg and creates a Sink.
func New(cfg Config) (*Sink, error) {
	const op = errors.Op("mailsink_new")

	if cfg.Addr == "" {
		return nil, errors.E(op, errors.Str("empty listen address"))
	}
	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, errors.E(op, errors.Str("username and password must be set together"))
	}
	if cfg.ImplicitTLS && cfg.TLSConfig == nil {
		return nil, errors.E(op, errors.Str("implicit TLS requires a TLS configuration"))
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = defaultMaxRecipients
	}

	s := &Sink{cfg: cfg}

	srv := smtp.NewServer(s)
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = defaultTimeout
	srv.WriteTimeout = defaultTimeout
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = cfg.MaxRecipients
	// Development sink: AUTH is allowed on plaintext connections.
	srv.AllowInsecureAuth = true
	if !cfg.ImplicitTLS {
		srv.TLSConfig = cfg.TLSConfig
	}
	s.srv = srv

	return s, nil
}

// Listen binds the listening socket. It is called by ListenAndServe, and
// may be called first when the bound address is needed before serving.
func (s *Sink) Listen() error {
	const op = errors.Op("mailsink_listen")

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.E(op, err)
	}
	if s.cfg.ImplicitTLS {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.listener = ln
	return nil
}

// ListenAndServe accepts connections until ctx is cancelled.
func (s *Sink) ListenAndServe(ctx context.Context) error {
	const op = errors.Op("mailsink_serve")

	if err := s.Listen(); err != nil {
		return err
	}

	slog.Info("mail sink listening",
		"addr", s.Addr(),
		"auth_enabled", s.authRequired(),
		"tls_enabled", s.cfg.TLSConfig != nil,
		"implicit_tls", s.cfg.ImplicitTLS,
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down mail sink")
		s.srv.Close()
		s.listener.Close()
	}()

	if err := s.srv.Serve(s.listener); err != nil {
		select {
		case <-ctx.Done():
			return nil
		default:
			return errors.E(op, err)
		}
	}
	return nil
}

// Addr returns the listener address, or empty string if not listening.
func (s *Sink) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Messages returns a snapshot of the accepted messages in arrival order.
func (s *Sink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// NewSession implements smtp.Backend.
func (s *Sink) NewSession(c *smtp.Conn) (smtp.Session, error) {
	_, secure := c.TLSConnectionState()
	return &session{
		sink:   s,
		remote: c.Conn().RemoteAddr().String(),
		tls:    secure,
	}, nil
}

func (s *Sink) authRequired() bool {
	return s.cfg.Username != ""
}

func (s *Sink) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	return userOK && passOK
}

func (s *Sink) store(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}
