// Package form extracts the visitor's email address from a form-submission
// webhook request.
package form

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

// MaxBodyBytes is the largest request body the normalizer will decode.
const MaxBodyBytes = 1 << 20

var (
	// ErrMethodNotAllowed is returned for any method other than POST.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrMalformedBody is returned when the body is not valid JSON, is
	// JSON null, or exceeds MaxBodyBytes.
	ErrMalformedBody = errors.New("invalid request body")

	// ErrEmailNotFound is returned when no rule yields an email address.
	ErrEmailNotFound = errors.New("email not found in request")
)

// rule looks up an email address in a decoded body.
type rule func(body map[string]any) (string, bool)

// field returns a rule that follows path through nested objects and
// matches a non-empty string at its end.
func field(path ...string) rule {
	return func(body map[string]any) (string, bool) {
		var cur any = body
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur = obj[key]
		}
		s, ok := cur.(string)
		return s, ok && s != ""
	}
}

// rules are applied in order; the first match wins. Form-submission
// webhooks wrap the submitted fields one or two levels deep.
var rules = []rule{
	field("payload", "email"),
	field("data", "email"),
	field("email"),
}

// Extract validates the request method and returns the email address found
// in body. Errors are ErrMethodNotAllowed, ErrMalformedBody, or
// ErrEmailNotFound.
func Extract(method string, body []byte) (string, error) {
	if method != http.MethodPost {
		return "", ErrMethodNotAllowed
	}
	if len(body) > MaxBodyBytes {
		return "", ErrMalformedBody
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil || decoded == nil {
		return "", ErrMalformedBody
	}

	// Valid JSON that is not an object simply has no email field.
	obj, ok := decoded.(map[string]any)
	if !ok {
		return "", ErrEmailNotFound
	}

	for _, r := range rules {
		if email, ok := r(obj); ok {
			return email, nil
		}
	}
	return "", ErrEmailNotFound
}
