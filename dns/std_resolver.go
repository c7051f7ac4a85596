package dns

import (
	"context"
	"errors"
	"net"
	"strings"
)

// StdResolver implements the Resolver interface using the standard library
// net package. Useful when the process should respect the platform's name
// resolution configuration (nsswitch, mDNS, etc.).
type StdResolver struct {
	resolver *net.Resolver
}

var _ Resolver = (*StdResolver)(nil)

// NewStdResolver creates a resolver using the standard library.
func NewStdResolver() *StdResolver {
	return &StdResolver{
		resolver: net.DefaultResolver,
	}
}

// NewStdResolverWithDialer creates a resolver using a custom dialer.
// This allows configuring custom DNS servers while using the stdlib interface.
func NewStdResolverWithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) *StdResolver {
	return &StdResolver{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial:     dial,
		},
	}
}

// LookupIP retrieves A and AAAA records using the standard library.
func (r *StdResolver) LookupIP(ctx context.Context, host string) (Result[net.IP], error) {
	host = strings.TrimSuffix(host, ".")

	ips, err := r.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return Result[net.IP]{}, convertError(err)
	}
	if len(ips) == 0 {
		return Result[net.IP]{}, ErrNotFound
	}

	return Result[net.IP]{Records: ips}, nil
}

// LookupMX retrieves MX records using the standard library.
func (r *StdResolver) LookupMX(ctx context.Context, domain string) (Result[*net.MX], error) {
	domain = strings.TrimSuffix(domain, ".")

	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return Result[*net.MX]{}, convertError(err)
	}
	if len(records) == 0 {
		return Result[*net.MX]{}, ErrNotFound
	}

	return Result[*net.MX]{Records: records}, nil
}

// convertError maps stdlib resolver errors onto the package sentinels.
func convertError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return ErrNotFound
		}
		if dnsErr.IsTemporary {
			return ErrServFail
		}
	}
	return err
}
