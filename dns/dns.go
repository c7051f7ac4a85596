// Package dns resolves SMTP submission targets.
//
// The engine dials a host the caller names. Before dialing, the transport
// can consult a Resolver to turn that name into addresses, and callers
// relaying to a bare domain can ask for its MX hosts. Two implementations
// are provided: DNSResolver queries nameservers directly through
// github.com/miekg/dns, StdResolver delegates to the standard library.
// MockResolver serves fixed records in tests.
package dns

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotFound indicates the name does not exist (NXDOMAIN) or has no
	// records of the requested type.
	ErrNotFound = errors.New("dns: name not found")

	// ErrServFail indicates the nameserver failed to answer.
	ErrServFail = errors.New("dns: server failure")

	// ErrRefused indicates the nameserver refused the query.
	ErrRefused = errors.New("dns: query refused")
)

// Result carries the records of a lookup.
type Result[T any] struct {
	// Records holds the answer records, in server order.
	Records []T
}

// Resolver is the lookup interface the transport dialer consumes.
type Resolver interface {
	// LookupIP retrieves A and AAAA records for the given host name.
	LookupIP(ctx context.Context, host string) (Result[net.IP], error)

	// LookupMX retrieves MX records for the given domain, sorted by
	// preference.
	LookupMX(ctx context.Context, domain string) (Result[*net.MX], error)
}
