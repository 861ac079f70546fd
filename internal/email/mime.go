package email

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Render writes msg as an RFC 5322 message. Text and HTML bodies become the
// two alternatives of a multipart/alternative entity, text first.
func Render(w io.Writer, msg *Email) error {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if msg.MessageID != "" {
		h.SetMessageID(strings.Trim(msg.MessageID, "<>"))
	}

	mw, err := mail.CreateInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}

	if msg.TextBody != "" || msg.HtmlBody == "" {
		if err := writeInlinePart(mw, "text/plain", msg.TextBody); err != nil {
			return err
		}
	}
	if msg.HtmlBody != "" {
		if err := writeInlinePart(mw, "text/html", msg.HtmlBody); err != nil {
			return err
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return nil
}

func writeInlinePart(mw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

// Parse reads an RFC 5322 message into an Email. Only the first text/plain
// and text/html inline parts are kept; attachments are skipped.
func Parse(r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	msg := &Email{}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromName = from[0].Name
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s part: %w", contentType, err)
		}

		switch contentType {
		case "text/plain":
			if msg.TextBody == "" {
				msg.TextBody = string(body)
			}
		case "text/html":
			if msg.HtmlBody == "" {
				msg.HtmlBody = string(body)
			}
		}
	}

	return msg, nil
}
