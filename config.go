package corvus

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/synqronlabs/corvus/dns"
	"github.com/synqronlabs/corvus/transport"
)

// Config contains configuration options for the engine.
type Config struct {
	// LocalName is the hostname sent in EHLO/HELO. Default: "localhost".
	LocalName string

	// LocalNameEncrypted, when non-empty, replaces LocalName in EHLO/HELO
	// once the stream is under TLS. Useful when the plaintext greeting
	// must not reveal the internal hostname.
	LocalNameEncrypted string

	// TLSConfig is the base TLS configuration for implicit TLS and
	// STARTTLS. ServerName is filled in from the dialed host when empty.
	TLSConfig *tls.Config

	// Resolver, when set, resolves hostnames before dialing. When nil
	// the standard dialer resolves names itself.
	Resolver dns.Resolver

	// DialTimeout bounds connection establishment. Default 30s.
	DialTimeout time.Duration

	// QuitFlushTimeout bounds the wait for the QUIT command to reach the
	// wire before the stream is closed. Default 1s.
	QuitFlushTimeout time.Duration

	// JournalLimit caps the in-memory wire transcript. Default 1024
	// entries.
	JournalLimit int

	// Events holds the notification callbacks. A nil Events means no
	// notifications.
	Events *Events

	// Logger receives engine debug logging. Default slog.Default().
	Logger *slog.Logger

	// Metrics, when set, registers the engine's Prometheus collectors on
	// the given registerer.
	Metrics prometheus.Registerer

	// Transport overrides the engine's transport. When nil a TCP
	// transport is built from the fields above. Mainly for tests.
	Transport transport.Transport
}

// DefaultConfig returns a Config with the defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		LocalName:        "localhost",
		DialTimeout:      30 * time.Second,
		QuitFlushTimeout: time.Second,
	}
}
