// Package transport provides the byte-stream layer for the SMTP engine.
//
// A Transport is a bidirectional stream to a mail server that reports its
// lifecycle through an event channel instead of blocking calls: the dialog
// driver subscribes to Events and reacts to connection, encryption, data,
// and error events as they occur. The TCP implementation can open in
// plaintext (port 25/587), open with implicit TLS (SMTPS, port 465), and
// upgrade an open plaintext stream to TLS in place after the server accepts
// STARTTLS.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"time"

	"github.com/synqronlabs/corvus/dns"
)

var (
	// ErrNotConnected is returned by Write when no stream is open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned by Connect variants when a stream
	// is already open.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrAlreadyEncrypted is returned by StartClientEncryption when the
	// stream is already under TLS.
	ErrAlreadyEncrypted = errors.New("transport: already encrypted")
)

// EventKind discriminates transport events.
type EventKind int

const (
	// EventConnected fires once the stream is open and, for implicit
	// TLS, the handshake has completed.
	EventConnected EventKind = iota

	// EventEncrypted fires when a StartClientEncryption handshake
	// completes on an already-open stream.
	EventEncrypted

	// EventDisconnected fires exactly once when the stream ends, whether
	// by Close, remote shutdown, or a fatal error.
	EventDisconnected

	// EventData carries bytes read from the server.
	EventData

	// EventSocketError carries a fatal stream error. It always precedes
	// the EventDisconnected for the same failure.
	EventSocketError

	// EventTLSErrors carries certificate verification errors. If the
	// transport was told to ignore them the handshake proceeds and the
	// event is informational; otherwise a socket error follows.
	EventTLSErrors
)

// Event is a transport lifecycle or data notification.
type Event struct {
	Kind EventKind

	// Data is set for EventData.
	Data []byte

	// Err is set for EventSocketError.
	Err error

	// TLSErrors is set for EventTLSErrors.
	TLSErrors []error
}

// Transport is the stream abstraction the dialog driver writes commands to.
// All methods are safe for use from a single driver goroutine; Events is
// the only read path.
type Transport interface {
	// Connect opens a plaintext stream to host:port. The outcome arrives
	// as EventConnected or EventSocketError+EventDisconnected.
	Connect(ctx context.Context, host string, port int) error

	// ConnectEncrypted opens a stream with implicit TLS (SMTPS).
	ConnectEncrypted(ctx context.Context, host string, port int) error

	// StartClientEncryption upgrades the open plaintext stream to TLS in
	// place. Call only after the server accepted STARTTLS; the transport
	// stops reading until the handshake concludes, so bytes the server
	// sends before completing the handshake are never consumed as
	// plaintext. Completion arrives as EventEncrypted.
	StartClientEncryption() error

	// Write sends bytes to the server.
	Write(p []byte) error

	// Shutdown closes the stream, allowing up to flushWait for written
	// bytes to drain to the wire.
	Shutdown(flushWait time.Duration) error

	// Close closes the stream immediately.
	Close() error

	// IsEncrypted reports whether the stream is under TLS.
	IsEncrypted() bool

	// IgnoreTLSErrors makes subsequent handshakes proceed despite
	// certificate verification failures. Verification errors are still
	// reported through EventTLSErrors.
	IgnoreTLSErrors()

	// Events returns the transport's event stream.
	Events() <-chan Event
}

// Config configures a TCP transport.
type Config struct {
	// TLSConfig is the base TLS configuration for implicit TLS and
	// STARTTLS. A nil config uses defaults; ServerName is filled in from
	// the dialed host when empty.
	TLSConfig *tls.Config

	// Resolver, when set, resolves the host to addresses before dialing.
	// When nil the standard dialer resolves the name itself.
	Resolver dns.Resolver

	// DialTimeout bounds connection establishment. Default 30s.
	DialTimeout time.Duration

	// WriteTimeout bounds individual writes. Default 5 minutes.
	WriteTimeout time.Duration

	// Logger receives transport debug logging. Default slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the defaults filled in.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		Logger:       slog.Default(),
	}
}
