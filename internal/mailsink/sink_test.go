package mailsink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/shineum/form-mailer/internal/email"
	mailtls "github.com/shineum/form-mailer/internal/tls"
)

// startSink starts a sink on a random local port and stops it when the test ends.
func startSink(t *testing.T, cfg Config) *Sink {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.ListenAndServe(ctx); err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("sink did not stop")
		}
	})
	return s
}

// client is a minimal line-oriented SMTP client for driving the sink.
type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	c := &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
	if code, _ := c.reply(); code != "220" {
		t.Fatalf("greeting: got %s, want 220", code)
	}
	return c
}

// reply reads a possibly multi-line reply and returns its code and text lines.
func (c *client) reply() (string, []string) {
	c.t.Helper()
	var lines []string
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("failed to read reply: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			c.t.Fatalf("short reply line %q", line)
		}
		lines = append(lines, line[4:])
		if line[3] == ' ' {
			return line[:3], lines
		}
	}
}

func (c *client) cmd(format string, args ...any) (string, []string) {
	c.t.Helper()
	if _, err := fmt.Fprintf(c.conn, format+"\r\n", args...); err != nil {
		c.t.Fatalf("failed to write command: %v", err)
	}
	return c.reply()
}

func plainToken(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte("\x00" + user + "\x00" + pass))
}

func renderTestMessage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := email.Render(&buf, &email.Email{
		FromName:  "The Ghosts We Carry",
		From:      "author@example.com",
		To:        []string{"reader@example.com"},
		Subject:   "Your Copy",
		TextBody:  "Plain text body",
		HtmlBody:  "<p>HTML body</p>",
		MessageID: "<abc@example.com>",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.Bytes()
}

func (c *client) submit(data []byte) string {
	c.t.Helper()
	if code, _ := c.cmd("MAIL FROM:<author@example.com>"); code != "250" {
		c.t.Fatalf("MAIL FROM: got %s, want 250", code)
	}
	if code, _ := c.cmd("RCPT TO:<reader@example.com>"); code != "250" {
		c.t.Fatalf("RCPT TO: got %s, want 250", code)
	}
	if code, _ := c.cmd("DATA"); code != "354" {
		c.t.Fatalf("DATA: got %s, want 354", code)
	}
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("failed to write data: %v", err)
	}
	code, _ := c.cmd(".")
	return code
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "minimal", cfg: Config{Addr: ":2525"}},
		{name: "empty address", cfg: Config{}, wantErr: true},
		{name: "username without password", cfg: Config{Addr: ":2525", Username: "u"}, wantErr: true},
		{name: "password without username", cfg: Config{Addr: ":2525", Password: "p"}, wantErr: true},
		{name: "implicit TLS without config", cfg: Config{Addr: ":2525", ImplicitTLS: true}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New: err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_MessageSizeLimit(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Addr: "127.0.0.1:0", MaxMessageBytes: 4096})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.srv.MaxMessageBytes != 4096 {
		t.Errorf("MaxMessageBytes: got %d, want 4096", s.srv.MaxMessageBytes)
	}

	s, err = New(Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.srv.MaxMessageBytes != defaultMaxMessageBytes {
		t.Errorf("MaxMessageBytes: got %d, want default %d", s.srv.MaxMessageBytes, defaultMaxMessageBytes)
	}
}

func TestSink_AcceptsWithoutAuth(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{})
	c := dial(t, s.Addr())

	if code, _ := c.cmd("EHLO client.test"); code != "250" {
		t.Fatalf("EHLO: got %s, want 250", code)
	}
	if code := c.submit(append(renderTestMessage(t), []byte("\r\n")...)); code != "250" {
		t.Fatalf("end of data: got %s, want 250", code)
	}
	c.cmd("QUIT")

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages: got %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID == "" {
		t.Error("message ID should be set")
	}
	if !strings.HasPrefix(m.RemoteAddr, "127.0.0.1:") {
		t.Errorf("RemoteAddr: got %q, want the client's loopback address", m.RemoteAddr)
	}
	if m.TLS {
		t.Error("plaintext session should not be reported as TLS")
	}
	if m.From != "author@example.com" {
		t.Errorf("From: got %q", m.From)
	}
	if len(m.To) != 1 || m.To[0] != "reader@example.com" {
		t.Errorf("To: got %v", m.To)
	}
	if m.Parsed == nil {
		t.Fatal("message should have been parsed")
	}
	if m.Parsed.Subject != "Your Copy" {
		t.Errorf("Subject: got %q", m.Parsed.Subject)
	}
	if m.Parsed.MessageID != "<abc@example.com>" {
		t.Errorf("MessageID: got %q", m.Parsed.MessageID)
	}
	if !strings.Contains(m.Parsed.HtmlBody, "HTML body") {
		t.Errorf("HtmlBody: got %q", m.Parsed.HtmlBody)
	}
}

func TestSink_AdvertisesCapabilities(t *testing.T) {
	t.Parallel()

	cert, err := mailtls.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	s := startSink(t, Config{
		Username:  "user",
		Password:  "secret",
		TLSConfig: mailtls.ServerConfig(*cert),
	})
	c := dial(t, s.Addr())

	code, lines := c.cmd("EHLO client.test")
	if code != "250" {
		t.Fatalf("EHLO: got %s, want 250", code)
	}
	caps := strings.Join(lines, "\n")
	if !strings.Contains(caps, "STARTTLS") {
		t.Errorf("capabilities %q should include STARTTLS", caps)
	}
	if !strings.Contains(caps, "AUTH PLAIN") {
		t.Errorf("capabilities %q should include AUTH PLAIN", caps)
	}
}

func TestSink_RequiresAuth(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{Username: "user", Password: "secret"})
	c := dial(t, s.Addr())
	c.cmd("EHLO client.test")

	if code, _ := c.cmd("MAIL FROM:<author@example.com>"); code != "530" {
		t.Errorf("MAIL FROM without auth: got %s, want 530", code)
	}
	if len(s.Messages()) != 0 {
		t.Error("no message should be stored")
	}
}

func TestSink_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{Username: "user", Password: "secret"})
	c := dial(t, s.Addr())
	c.cmd("EHLO client.test")

	if code, _ := c.cmd("AUTH PLAIN %s", plainToken("user", "wrong")); code != "535" {
		t.Errorf("AUTH with wrong password: got %s, want 535", code)
	}
	if code, _ := c.cmd("MAIL FROM:<author@example.com>"); code != "530" {
		t.Errorf("MAIL FROM after failed auth: got %s, want 530", code)
	}
}

func TestSink_AcceptsAfterAuth(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{Username: "user", Password: "secret"})
	c := dial(t, s.Addr())
	c.cmd("EHLO client.test")

	if code, _ := c.cmd("AUTH PLAIN %s", plainToken("user", "secret")); code != "235" {
		t.Fatalf("AUTH: got %s, want 235", code)
	}
	if code := c.submit(append(renderTestMessage(t), []byte("\r\n")...)); code != "250" {
		t.Fatalf("end of data: got %s, want 250", code)
	}
	if len(s.Messages()) != 1 {
		t.Errorf("messages: got %d, want 1", len(s.Messages()))
	}
}

func TestSink_KeepsUnparseableData(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{})
	c := dial(t, s.Addr())
	c.cmd("EHLO client.test")

	if code := c.submit([]byte("not a header line\r\n\r\nbody\r\n")); code != "250" {
		t.Fatalf("end of data: got %s, want 250", code)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages: got %d, want 1", len(msgs))
	}
	if msgs[0].Parsed != nil {
		t.Error("Parsed should be nil for unparseable data")
	}
	if !bytes.Contains(msgs[0].Raw, []byte("body")) {
		t.Errorf("Raw: got %q", msgs[0].Raw)
	}
}

func TestSink_ResetClearsEnvelope(t *testing.T) {
	t.Parallel()

	s := startSink(t, Config{})
	c := dial(t, s.Addr())
	c.cmd("EHLO client.test")

	c.cmd("MAIL FROM:<first@example.com>")
	c.cmd("RCPT TO:<dropped@example.com>")
	if code, _ := c.cmd("RSET"); code != "250" {
		t.Fatalf("RSET: got %s, want 250", code)
	}
	if code := c.submit(append(renderTestMessage(t), []byte("\r\n")...)); code != "250" {
		t.Fatalf("end of data: got %s, want 250", code)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages: got %d, want 1", len(msgs))
	}
	if len(msgs[0].To) != 1 || msgs[0].To[0] != "reader@example.com" {
		t.Errorf("To: got %v, want only the recipient after RSET", msgs[0].To)
	}
}
