// Package smtp implements a Provider that submits email to an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/form-mailer/internal/email"
)

// defaultTimeout bounds one submission when none is configured.
const defaultTimeout = 30 * time.Second

// Config holds the configuration for creating a Provider.
type Config struct {
	Host     string
	Port     int
	Secure   bool // implicit TLS; otherwise STARTTLS is used when offered
	Username string
	Password string
	Timeout  time.Duration

	// TLSConfig is cloned for every connection. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// Provider submits each message over a fresh SMTP connection.
type Provider struct {
	cfg Config
}

// New creates a new SMTP Provider with the given configuration.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{cfg: cfg}
}

// Send renders msg, opens a connection, authenticates, and submits the
// message in a single attempt. It returns the message's Message-ID.
//
// Timeout bounds the whole submission, not each command.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (id string, err error) {
	out := *msg
	if out.MessageID == "" {
		out.MessageID = email.NewMessageID(out.From)
	}

	var buf bytes.Buffer
	if err := email.Render(&buf, &out); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	c, err := p.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return "", fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := c.Mail(out.From, nil); err != nil {
		return "", fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range out.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return "", fmt.Errorf("RCPT TO <%s> rejected: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write message data: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("message rejected: %w", err)
	}

	// The message is accepted once DATA completes; a failed QUIT only
	// leaves the connection to be closed.
	if err := c.Quit(); err != nil {
		c.Close()
	}

	return out.MessageID, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// connect returns a client ready for AUTH. With Secure the connection uses
// implicit TLS. Otherwise a first connection reads the EHLO reply, and when
// STARTTLS is advertised the client reconnects and upgrades before use.
func (p *Provider) connect(ctx context.Context) (*smtp.Client, error) {
	if p.cfg.Secure {
		conn, err := p.dial(ctx, true)
		if err != nil {
			return nil, err
		}
		return p.newClient(conn), nil
	}

	conn, err := p.dial(ctx, false)
	if err != nil {
		return nil, err
	}
	c := p.newClient(conn)
	// A failed EHLO reports no extensions; the error resurfaces on the
	// next command.
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, nil
	}
	if err := c.Quit(); err != nil {
		c.Close()
	}

	conn, err = p.dial(ctx, false)
	if err != nil {
		return nil, err
	}
	c, err = smtp.NewClientStartTLS(conn, p.tlsConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	setTimeouts(c, p.cfg.Timeout)
	// The TLS handshake runs with the first EHLO after the upgrade.
	if err := c.Hello("localhost"); err != nil {
		c.Close()
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return c, nil
}

// dial opens a TCP connection to the relay, wrapped in TLS when implicit
// is set. The connection is closed once ctx is done.
func (p *Provider) dial(ctx context.Context, implicit bool) (net.Conn, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := &net.Dialer{}

	var (
		conn net.Conn
		err  error
	)
	if implicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return conn, nil
}

func (p *Provider) newClient(conn net.Conn) *smtp.Client {
	c := smtp.NewClient(conn)
	setTimeouts(c, p.cfg.Timeout)
	return c
}

func setTimeouts(c *smtp.Client, d time.Duration) {
	c.CommandTimeout = d
	c.SubmissionTimeout = d
}

func (p *Provider) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if p.cfg.TLSConfig != nil {
		cfg = p.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.cfg.Host
	}
	return cfg
}
