package sasl

import (
	"encoding/base64"
)

// Login exchange progress.
const (
	loginStateInitial = iota
	loginStateUsernameSent
	loginStatePasswordSent
)

// Base64-encoded challenge strings servers conventionally send for LOGIN.
const (
	// LoginChallengeUsername is "Username:" encoded in base64.
	LoginChallengeUsername = "VXNlcm5hbWU6"
	// LoginChallengePassword is "Password:" encoded in base64.
	LoginChallengePassword = "UGFzc3dvcmQ6"
)

// Login implements the LOGIN SASL mechanism.
// DEPRECATED by the IETF in favor of PLAIN; kept for legacy servers.
type Login struct {
	creds Credentials
	state int
}

// NewLogin creates a LOGIN mechanism for the given credentials.
func NewLogin(creds Credentials) *Login {
	return &Login{creds: creds}
}

// Name returns "LOGIN".
func (l *Login) Name() string {
	return "LOGIN"
}

// Respond answers the first challenge with the base64 username and the
// second with the base64 password. LOGIN servers do not issue a third
// challenge.
func (l *Login) Respond(challenge string) (string, error) {
	switch l.state {
	case loginStateInitial:
		l.state = loginStateUsernameSent
		return base64.StdEncoding.EncodeToString([]byte(l.creds.Username)), nil
	case loginStateUsernameSent:
		l.state = loginStatePasswordSent
		return base64.StdEncoding.EncodeToString([]byte(l.creds.Password)), nil
	default:
		return "", ErrUnexpectedChallenge
	}
}
