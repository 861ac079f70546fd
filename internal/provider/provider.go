// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/form-mailer/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// A Provider makes exactly one delivery attempt per Send call.
type Provider interface {
	// Send delivers an email message through this provider and returns the
	// identifier the backend assigned to it.
	Send(ctx context.Context, msg *email.Email) (string, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
