// Package email defines the outbound message model and its MIME encoding.
package email

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Email represents a single outbound message with parallel text and HTML bodies.
type Email struct {
	FromName  string
	From      string
	To        []string
	Subject   string
	TextBody  string
	HtmlBody  string
	MessageID string
}

// NewMessageID returns a globally unique Message-ID, angle brackets included,
// whose domain part is taken from the sender address.
func NewMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
