package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/idna"

	"github.com/synqronlabs/corvus/utils"
)

// TCP is the production Transport over a TCP socket, optionally under TLS.
//
// The zero value is not usable; create one with NewTCP. A TCP can be
// reconnected after a disconnect, which is how a caller retries a session
// on the same engine.
type TCP struct {
	cfg Config

	mu sync.Mutex
	// origConn is the raw TCP connection. We close origConn instead of
	// conn: closing the TLS wrapper sends a close notification, which can
	// block for seconds when the server is not reading.
	origConn   net.Conn
	conn       net.Conn // origConn, or a tls.Client around it
	serverName string
	encrypted  bool
	ignoreTLS  bool
	upgrading  bool
	closed     bool // Close/Shutdown requested; suppress the error event
	ended      bool // EventDisconnected emitted for this stream
	readerDone chan struct{}

	events chan Event
}

var _ Transport = (*TCP)(nil)

// NewTCP creates a TCP transport.
func NewTCP(cfg Config) *TCP {
	def := DefaultConfig()
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &TCP{
		cfg:    cfg,
		events: make(chan Event, 128),
	}
}

// Events returns the transport's event stream.
func (t *TCP) Events() <-chan Event {
	return t.events
}

// IsEncrypted reports whether the stream is under TLS.
func (t *TCP) IsEncrypted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encrypted
}

// IgnoreTLSErrors makes subsequent handshakes proceed despite certificate
// verification failures. Unlike a synchronous socket API there is no way to
// pause a Go TLS handshake mid-verification, so the caller decides before
// the handshake starts; verification errors are still reported through
// EventTLSErrors either way.
func (t *TCP) IgnoreTLSErrors() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignoreTLS = true
}

// Connect opens a plaintext stream to host:port.
func (t *TCP) Connect(ctx context.Context, host string, port int) error {
	return t.connect(ctx, host, port, false)
}

// ConnectEncrypted opens a stream with implicit TLS (SMTPS).
func (t *TCP) ConnectEncrypted(ctx context.Context, host string, port int) error {
	return t.connect(ctx, host, port, true)
}

func (t *TCP) connect(ctx context.Context, host string, port int, encrypted bool) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.ended = false
	t.closed = false
	t.mu.Unlock()

	go t.dial(ctx, host, port, encrypted)
	return nil
}

// dial resolves and connects, then emits the outcome.
func (t *TCP) dial(ctx context.Context, host string, port int, encrypted bool) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	ascii := host
	if utils.ContainsNonASCII(host) {
		var err error
		ascii, err = idna.Lookup.ToASCII(host)
		if err != nil {
			t.fail(fmt.Errorf("transport: invalid hostname %q: %w", host, err))
			return
		}
	}

	t.mu.Lock()
	t.serverName = ascii
	t.mu.Unlock()

	addrs := []string{ascii}
	if t.cfg.Resolver != nil && net.ParseIP(ascii) == nil {
		res, err := t.cfg.Resolver.LookupIP(ctx, ascii)
		if err != nil {
			t.fail(fmt.Errorf("transport: resolving %q: %w", ascii, err))
			return
		}
		addrs = addrs[:0]
		for _, ip := range res.Records {
			addrs = append(addrs, ip.String())
		}
	}

	var conn net.Conn
	var lastErr error
	dialer := net.Dialer{}
	for _, addr := range addrs {
		conn, lastErr = dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if lastErr == nil {
			break
		}
		t.cfg.Logger.Debug("transport: dial attempt failed", "addr", addr, "err", lastErr)
	}
	if conn == nil {
		t.fail(fmt.Errorf("transport: connecting to %s:%d: %w", host, port, lastErr))
		return
	}

	if encrypted {
		tlsConn := tls.Client(conn, t.tlsConfig(ascii))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			t.fail(fmt.Errorf("transport: tls handshake with %s: %w", host, err))
			return
		}
		t.install(conn, tlsConn, true)
	} else {
		t.install(conn, conn, false)
	}

	t.emit(Event{Kind: EventConnected})
}

// install publishes the new stream and starts its reader.
func (t *TCP) install(orig, conn net.Conn, encrypted bool) {
	t.mu.Lock()
	t.origConn = orig
	t.conn = conn
	t.encrypted = encrypted
	t.readerDone = make(chan struct{})
	done := t.readerDone
	t.mu.Unlock()

	go t.readLoop(conn, done)
}

// fail reports a connection-phase error: no stream was established.
func (t *TCP) fail(err error) {
	t.cfg.Logger.Debug("transport: connect failed", "err", err)
	t.emit(Event{Kind: EventSocketError, Err: err})
	t.emit(Event{Kind: EventDisconnected})
}

// readLoop moves bytes from the stream into EventData events until the
// stream ends or a STARTTLS upgrade pauses reading.
func (t *TCP) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 8192)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.emit(Event{Kind: EventData, Data: data})
		}
		if err != nil {
			t.mu.Lock()
			upgrading := t.upgrading
			t.mu.Unlock()
			if upgrading && isTimeout(err) {
				// Kicked out deliberately; the upgrade goroutine owns
				// the connection now.
				return
			}
			t.end(err)
			return
		}
	}
}

// end tears the stream down and emits the terminal events exactly once.
func (t *TCP) end(err error) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	closed := t.closed
	orig := t.origConn
	t.origConn = nil
	t.conn = nil
	t.encrypted = false
	t.upgrading = false
	t.mu.Unlock()

	if orig != nil {
		orig.Close()
	}

	if err != nil && !closed && err != io.EOF && !isClosedErr(err) {
		t.emit(Event{Kind: EventSocketError, Err: err})
	}
	t.emit(Event{Kind: EventDisconnected})
}

// StartClientEncryption upgrades the open plaintext stream to TLS in place.
func (t *TCP) StartClientEncryption() error {
	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	if t.encrypted {
		t.mu.Unlock()
		return ErrAlreadyEncrypted
	}
	t.upgrading = true
	conn := t.conn
	sn := t.serverName
	done := t.readerDone
	t.mu.Unlock()

	// Interrupt the reader's blocking Read. It sees the timeout while
	// upgrading is set and exits without ending the stream.
	conn.SetReadDeadline(time.Now())

	go t.upgrade(conn, sn, done)
	return nil
}

func (t *TCP) upgrade(conn net.Conn, serverName string, readerDone chan struct{}) {
	<-readerDone
	conn.SetReadDeadline(time.Time{})

	tlsConn := tls.Client(conn, t.tlsConfig(serverName))

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DialTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		t.end(fmt.Errorf("transport: starttls handshake: %w", err))
		return
	}

	t.mu.Lock()
	t.conn = tlsConn
	t.encrypted = true
	t.upgrading = false
	t.readerDone = make(chan struct{})
	done := t.readerDone
	t.mu.Unlock()

	t.emit(Event{Kind: EventEncrypted})
	go t.readLoop(tlsConn, done)
}

// tlsConfig builds the handshake configuration. Verification runs through
// VerifyConnection so failures surface as EventTLSErrors and can be waived
// with IgnoreTLSErrors, mirroring how interactive mail clients let the user
// accept a certificate.
func (t *TCP) tlsConfig(serverName string) *tls.Config {
	var cfg *tls.Config
	if t.cfg.TLSConfig != nil {
		cfg = t.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	if cfg.InsecureSkipVerify {
		return cfg
	}

	sn := cfg.ServerName
	roots := cfg.RootCAs
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		errs := verifyPeer(cs, sn, roots)
		if len(errs) == 0 {
			return nil
		}
		t.emit(Event{Kind: EventTLSErrors, TLSErrors: errs})

		t.mu.Lock()
		ignore := t.ignoreTLS
		t.mu.Unlock()
		if ignore {
			t.cfg.Logger.Warn("transport: ignoring tls verification errors", "server", sn, "errs", errs)
			return nil
		}
		return errs[0]
	}
	return cfg
}

// verifyPeer performs standard PKIX chain and hostname verification.
func verifyPeer(cs tls.ConnectionState, serverName string, roots *x509.CertPool) []error {
	if len(cs.PeerCertificates) == 0 {
		return []error{fmt.Errorf("transport: server presented no certificate")}
	}

	opts := x509.VerifyOptions{
		DNSName:       serverName,
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}

	if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
		return []error{err}
	}
	return nil
}

// Write sends bytes to the server.
func (t *TCP) Write(p []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	_, err := conn.Write(p)
	return err
}

// Shutdown closes the stream, allowing up to flushWait for written bytes to
// drain to the wire.
func (t *TCP) Shutdown(flushWait time.Duration) error {
	t.mu.Lock()
	orig := t.origConn
	t.closed = true
	t.mu.Unlock()
	if orig == nil {
		return nil
	}

	if tc, ok := orig.(*net.TCPConn); ok && flushWait > 0 {
		secs := int(flushWait / time.Second)
		if secs < 1 {
			secs = 1
		}
		tc.SetLinger(secs)
	}
	return orig.Close()
}

// Close closes the stream immediately.
func (t *TCP) Close() error {
	t.mu.Lock()
	orig := t.origConn
	t.closed = true
	t.mu.Unlock()
	if orig == nil {
		return nil
	}
	return orig.Close()
}

// emit delivers an event to the consumer. The engine drains the channel for
// the transport's whole lifetime, so a blocking send here only throttles
// the reader while the driver catches up.
func (t *TCP) emit(ev Event) {
	t.events <- ev
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
