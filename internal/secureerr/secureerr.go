// Package secureerr turns internal errors into text that is safe to send
// to end users.
package secureerr

import "strings"

const DefaultFallback = "An error occurred. Please try again."

var sensitivePatterns = []string{
	"database",
	"sql",
	"connection",
	"timeout",
	"internal",
	"server error",
	"authentication failed",
	"invalid session",
	"token",
	"unauthorized",
}

// Sanitizer decides how much of an error message reaches the client.
// With ShowDetails unset every error collapses to the fallback.
type Sanitizer struct {
	ShowDetails bool
}

// Message returns err's text when details are enabled and the text holds
// nothing that looks like infrastructure or auth internals.
func (s Sanitizer) Message(err error, fallback string) string {
	if fallback == "" {
		fallback = DefaultFallback
	}
	if err == nil || !s.ShowDetails {
		return fallback
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, p := range sensitivePatterns {
		if strings.Contains(lower, p) {
			return fallback
		}
	}
	if msg == "" {
		return fallback
	}
	return msg
}

// Sanitize is the production behaviour: the fallback, always.
func Sanitize(err error, fallback string) string {
	return Sanitizer{}.Message(err, fallback)
}

const authFallback = "Authentication failed. Please try again."

// Checked in order; the first phrase found in the message wins.
var authMessages = []struct {
	phrase  string
	message string
}{
	{"invalid login credentials", "Invalid email or password."},
	{"email not confirmed", "Please check your email and click the confirmation link."},
	{"user already registered", "An account with this email already exists."},
	{"weak password", "Password is too weak. Please use a stronger password."},
	{"invalid email", "Please enter a valid email address."},
	{"signup disabled", "Account registration is currently disabled."},
	{"too many requests", "Too many attempts. Please wait before trying again."},
}

// SanitizeAuth maps errors reported by the identity provider to a fixed
// set of user facing messages.
func SanitizeAuth(err error) string {
	if err == nil {
		return authFallback
	}
	lower := strings.ToLower(err.Error())
	for _, m := range authMessages {
		if strings.Contains(lower, m.phrase) {
			return m.message
		}
	}
	return authFallback
}
