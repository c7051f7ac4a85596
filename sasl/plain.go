package sasl

import (
	"encoding/base64"
)

// Plain implements the PLAIN SASL mechanism (RFC 4616).
// Use only over TLS - credentials are transmitted in clear text.
type Plain struct {
	creds Credentials
	sent  bool
}

// NewPlain creates a PLAIN mechanism for the given credentials.
func NewPlain(creds Credentials) *Plain {
	return &Plain{creds: creds}
}

// Name returns "PLAIN".
func (p *Plain) Name() string {
	return "PLAIN"
}

// Respond answers the single empty challenge with
// base64(authzid NUL authcid NUL passwd), with an empty authzid.
// A second challenge means the server did not accept the credentials
// blob, which PLAIN has no way to recover from.
func (p *Plain) Respond(challenge string) (string, error) {
	if p.sent {
		return "", ErrUnexpectedChallenge
	}
	p.sent = true

	raw := make([]byte, 0, len(p.creds.Username)+len(p.creds.Password)+2)
	raw = append(raw, 0)
	raw = append(raw, p.creds.Username...)
	raw = append(raw, 0)
	raw = append(raw, p.creds.Password...)

	return base64.StdEncoding.EncodeToString(raw), nil
}
