// Package redact removes configured secrets from free-form text before it is
// logged. Upstream error bodies frequently echo request parameters, so every
// message that may contain one has to pass through a Redactor first.
package redact

import "strings"

const placeholder = "***REDACTED***"

// Redactor replaces known secret values with a placeholder.
type Redactor struct {
	secrets []string
}

// New builds a Redactor from the given secret values. Empty values are
// ignored.
func New(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

// Redact replaces every occurrence of a configured secret in message.
func (r *Redactor) Redact(message string) string {
	for _, s := range r.secrets {
		message = strings.ReplaceAll(message, s, placeholder)
	}
	return message
}

// RedactErr is a convenience for redacting an error's text. Returns an empty
// string for a nil error.
func (r *Redactor) RedactErr(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}
