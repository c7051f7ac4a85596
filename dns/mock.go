package dns

import (
	"context"
	"net"
	"slices"
)

// MockResolver is a Resolver used for testing.
// Set DNS records in the fields, which map FQDNs (with trailing dot) to values.
type MockResolver struct {
	A    map[string][]string
	AAAA map[string][]string
	MX   map[string][]*net.MX

	// Fail contains records that will return a temporary error (SERVFAIL).
	// Format: "type name", e.g. "a mail.example.com." where type is lowercase.
	Fail []string
}

var _ Resolver = MockResolver{}

func (r MockResolver) failed(kind, name string) bool {
	return slices.Contains(r.Fail, kind+" "+name)
}

// LookupIP serves A and AAAA records from the mock tables.
func (r MockResolver) LookupIP(ctx context.Context, host string) (Result[net.IP], error) {
	if err := ctx.Err(); err != nil {
		return Result[net.IP]{}, err
	}
	name := ensureAbsolute(host)

	if r.failed("a", name) || r.failed("aaaa", name) {
		return Result[net.IP]{}, ErrServFail
	}

	var ips []net.IP
	for _, s := range r.A[name] {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}
	for _, s := range r.AAAA[name] {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return Result[net.IP]{}, ErrNotFound
	}
	return Result[net.IP]{Records: ips}, nil
}

// LookupMX serves MX records from the mock tables.
func (r MockResolver) LookupMX(ctx context.Context, domain string) (Result[*net.MX], error) {
	if err := ctx.Err(); err != nil {
		return Result[*net.MX]{}, err
	}
	name := ensureAbsolute(domain)

	if r.failed("mx", name) {
		return Result[*net.MX]{}, ErrServFail
	}

	records := r.MX[name]
	if len(records) == 0 {
		return Result[*net.MX]{}, ErrNotFound
	}
	return Result[*net.MX]{Records: records}, nil
}
