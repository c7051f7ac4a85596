package corvus

import (
	"github.com/synqronlabs/corvus/sasl"
)

// opKind discriminates queued operations.
type opKind int

const (
	opConnect opKind = iota
	opDisconnect
	opStartTLS
	opAuthenticate
	opMail
	opMailBURL
	opRaw
)

// String returns the operation name for logging and metrics.
func (k opKind) String() string {
	switch k {
	case opConnect:
		return "connect"
	case opDisconnect:
		return "disconnect"
	case opStartTLS:
		return "starttls"
	case opAuthenticate:
		return "authenticate"
	case opMail:
		return "mail"
	case opMailBURL:
		return "mailburl"
	case opRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// operation is one queued request. Only the head of the queue is ever
// touched by the driver; stage tracks progress inside the head's
// sub-state machine and disambiguates reply codes that recur (250 after
// EHLO vs 250 after MAIL FROM).
type operation struct {
	id       int
	kind     opKind
	stage    int
	finished bool

	// connect
	host        string
	port        int
	implicitTLS bool

	// authenticate
	mode  AuthMode
	creds sasl.Credentials
	mech  sasl.Client

	// mail / mailburl
	from  string
	rcpts []string
	body  []byte
	burl  string

	// raw
	raw string
}
