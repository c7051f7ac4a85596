// Package sasl implements client-side SASL mechanisms for SMTP
// authentication (RFC 4954).
package sasl

import (
	"errors"
)

var (
	// ErrUnexpectedChallenge is returned when the server issues more
	// challenges than the mechanism's exchange defines.
	ErrUnexpectedChallenge = errors.New("sasl: unexpected server challenge")
)

// Credentials holds the identity to authenticate as.
type Credentials struct {
	// Username is the identity being authenticated (authcid).
	Username string

	// Password is the shared secret.
	Password string
}

// Client is a client-side SASL mechanism. The engine announces the
// mechanism with "AUTH <name>" and calls Respond once for every 334
// challenge the server issues, writing the returned response verbatim.
type Client interface {
	// Name returns the SASL mechanism name, e.g. "PLAIN".
	Name() string

	// Respond produces the base64-encoded reply to a server challenge.
	// The challenge is the decoded-agnostic text of the 334 line; PLAIN
	// and LOGIN ignore its content and answer positionally.
	Respond(challenge string) (string, error)
}
